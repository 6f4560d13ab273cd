package llms

import "context"

// Stream is a single streamed reply. Chunks yields chunks in the order the
// backend produced them; a non-nil error ends the reply.
type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	FinishReason() *string
}

type StreamContentChunk interface {
	StreamChunk
	Content() string
}

type StreamUsageChunk interface {
	StreamChunk
	Usage() Usage
}

type Usage struct {
	// InputTokens represents the number of input tokens.
	InputTokens int
	// OutputTokens represents the number of output tokens.
	OutputTokens int
	// TotalTokens represents the total number of tokens used.
	TotalTokens int

	// InputProcessingTimes represents the time it took to process the input.
	InputProcessingTimes float64
	// TotalTime represents the total time it took to complete the request.
	TotalTime float64
}
