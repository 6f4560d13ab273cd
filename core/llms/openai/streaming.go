package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/koscakluka/hopper/core/conversations"
	"github.com/koscakluka/hopper/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultURL   = "https://api.openai.com/v1/responses"
	defaultModel = "gpt-4"

	eventPrefix = "event:"
	chunkPrefix = "data:"

	maxLineSize = 1024 * 1024
)

// Client streams replies from the OpenAI Responses API.
type Client struct {
	apiKey       string
	url          string
	model        string
	instructions string
	httpClient   *http.Client
}

type Option func(*Client)

// WithAPIKey overrides the OPENAI_API_KEY environment variable.
func WithAPIKey(apiKey string) Option {
	return func(c *Client) { c.apiKey = apiKey }
}

func WithURL(url string) Option {
	return func(c *Client) { c.url = url }
}

func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithInstructions sets the developer message sent ahead of the history.
func WithInstructions(instructions string) Option {
	return func(c *Client) { c.instructions = instructions }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		apiKey:     os.Getenv("OPENAI_API_KEY"),
		url:        defaultURL,
		model:      defaultModel,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiKey == "" {
		return nil, errors.New("openai api key not found")
	}
	return c, nil
}

func (c *Client) Model() string { return c.model }

// ChatStream prepares a streamed request. Nothing is sent until the returned
// stream's chunks are ranged over.
func (c *Client) ChatStream(_ context.Context, messages []conversations.ChatMessage) llms.Stream {
	return &Stream{
		client:   c,
		messages: toOpenAIMessages(c.instructions, messages),
	}
}

type Stream struct {
	client   *Client
	messages []openAIMessage
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.client.model))
		span.SetAttributes(attribute.Int("request.messages", len(s.messages)))

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, err)
		}

		requestBodyBytes, err := json.Marshal(requestBody{
			Model:  s.client.model,
			Input:  s.messages,
			Stream: true,
		})
		if err != nil {
			fail(fmt.Errorf("error marshalling JSON: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.url, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			fail(fmt.Errorf("error creating HTTP request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.client.apiKey)

		resp, err := s.client.httpClient.Do(req)
		if err != nil {
			fail(fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			if errorBody, err := io.ReadAll(resp.Body); err == nil {
				span.SetAttributes(attribute.String("response.error", string(errorBody)))
			}
			fail(fmt.Errorf("non-OK HTTP status: %s", resp.Status))
			return
		}

		usage := llms.Usage{}
		start := time.Now()
		lapTime := start
		event := streamingEventType("")

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			switch {
			case strings.HasPrefix(line, eventPrefix):
				event = streamingEventType(strings.TrimSpace(strings.TrimPrefix(line, eventPrefix)))
				continue
			case !strings.HasPrefix(line, chunkPrefix):
				continue
			}
			chunk := []byte(strings.TrimSpace(strings.TrimPrefix(line, chunkPrefix)))

			switch event {
			case streamingEventResponseCreated, streamingEventResponseQueued, streamingEventResponseInProgress:
				lapTime = time.Now()

			case streamingEventResponseOutputItemAdded:
				usage.InputProcessingTimes = time.Since(lapTime).Seconds()

			case streamingEventResponseOutputTextDelta:
				var responseBody streamingBodyResponseTextDelta
				if err := json.Unmarshal(chunk, &responseBody); err != nil {
					if !yield(nil, fmt.Errorf("error unmarshalling JSON: %w", err)) {
						return
					}
					continue
				}
				if !yield(StreamContentChunk{content: responseBody.Delta}, nil) {
					return
				}

			case streamingEventResponseFailed, streamingEventError:
				var responseBody streamingBodyError
				_ = json.Unmarshal(chunk, &responseBody)
				fail(fmt.Errorf("openai error: %s", responseBody.message()))
				return

			case streamingEventResponseCompleted:
				usage.TotalTime = time.Since(start).Seconds()

				var responseBody streamingBodyResponseCompleted
				if err := json.Unmarshal(chunk, &responseBody); err == nil && responseBody.Response.Usage != nil {
					usage.InputTokens = responseBody.Response.Usage.InputTokens
					usage.OutputTokens = responseBody.Response.Usage.OutputTokens
					usage.TotalTokens = responseBody.Response.Usage.TotalTokens
				}
				span.SetAttributes(attribute.Int("usage.input", usage.InputTokens))
				span.SetAttributes(attribute.Int("usage.output", usage.OutputTokens))
				logger.Debug("llm stream finished",
					"model", s.client.model,
					"input_tokens", usage.InputTokens,
					"output_tokens", usage.OutputTokens)

				finishReason := "stop"
				yield(StreamUsageChunk{finishReason: &finishReason, usage: usage}, nil)
				return
			}
		}

		if err := scanner.Err(); err != nil {
			fail(fmt.Errorf("error reading streamed response: %w", err))
			return
		}
		fail(errors.New("stream ended before the response completed"))
	}
}

type streamingEventType string

const (
	streamingEventResponseOutputTextDelta streamingEventType = "response.output_text.delta"
	streamingEventResponseOutputItemAdded streamingEventType = "response.output_item.added"
	streamingEventResponseCreated         streamingEventType = "response.created"
	streamingEventResponseQueued          streamingEventType = "response.queued"
	streamingEventResponseInProgress      streamingEventType = "response.in_progress"
	streamingEventResponseCompleted       streamingEventType = "response.completed"
	streamingEventResponseFailed          streamingEventType = "response.failed"
	streamingEventError                   streamingEventType = "error"
)

type streamingBodyResponseTextDelta struct {
	Delta string `json:"delta"`
}

type streamingBodyResponseCompleted struct {
	Response struct {
		Usage *responseBodyUsage `json:"usage"`
	} `json:"response"`
}

// streamingBodyError covers both the top level error event and a failed
// response.
type streamingBodyError struct {
	Message  string `json:"message"`
	Response struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"response"`
}

func (b streamingBodyError) message() string {
	switch {
	case b.Message != "":
		return b.Message
	case b.Response.Error != nil:
		return b.Response.Error.Message
	default:
		return "unknown error"
	}
}

type StreamContentChunk struct {
	finishReason *string
	content      string
}

func (s StreamContentChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamContentChunk) Content() string {
	return s.content
}

type StreamUsageChunk struct {
	finishReason *string
	usage        llms.Usage
}

func (s StreamUsageChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamUsageChunk) Usage() llms.Usage {
	return s.usage
}
