package ollama

import (
	"time"

	"github.com/koscakluka/hopper/core/llms"
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type requestBody struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type streamingResponseBody struct {
	Model      string  `json:"model"`
	Message    message `json:"message"`
	Done       bool    `json:"done"`
	DoneReason string  `json:"done_reason,omitempty"`
	Error      string  `json:"error,omitempty"`

	// Durations are reported in nanoseconds.
	TotalDuration      int64 `json:"total_duration,omitempty"`
	PromptEvalCount    int   `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64 `json:"prompt_eval_duration,omitempty"`
	EvalCount          int   `json:"eval_count,omitempty"`
}

func (r streamingResponseBody) usage() llms.Usage {
	return llms.Usage{
		InputTokens:          r.PromptEvalCount,
		OutputTokens:         r.EvalCount,
		TotalTokens:          r.PromptEvalCount + r.EvalCount,
		InputProcessingTimes: time.Duration(r.PromptEvalDuration).Seconds(),
		TotalTime:            time.Duration(r.TotalDuration).Seconds(),
	}
}
