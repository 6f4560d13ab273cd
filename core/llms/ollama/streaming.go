package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/hopper/core/conversations"
	"github.com/koscakluka/hopper/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const chatPath = "/api/chat"

// maxLineSize bounds a single NDJSON line of the reply.
const maxLineSize = 1024 * 1024

// Client talks to the chat endpoint of an Ollama server.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

func NewClient(baseURL, model string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Model() string { return c.model }

// ChatStream prepares a streamed chat request. Nothing is sent until the
// returned stream's chunks are ranged over.
func (c *Client) ChatStream(_ context.Context, messages []conversations.ChatMessage) llms.Stream {
	var converted []message
	if err := copier.Copy(&converted, messages); err != nil {
		return &Stream{err: fmt.Errorf("error converting messages: %w", err)}
	}

	return &Stream{
		client:   c,
		messages: converted,
	}
}

type Stream struct {
	client   *Client
	messages []message
	err      error
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	requestToFirstTokenTime := time.Time{}
	setRequestToFirstTokenTime := func(span trace.Span) {
		if requestToFirstTokenTime.IsZero() {
			return
		}
		span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestToFirstTokenTime).Seconds()))
		span.AddEvent("received first chunk")
		requestToFirstTokenTime = time.Time{}
	}

	return func(yield func(llms.StreamChunk, error) bool) {
		if s.err != nil {
			yield(nil, s.err)
			return
		}

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
			Model:    s.client.model,
			Messages: s.messages,
			Stream:   true,
		})
		if err != nil {
			fail(fmt.Errorf("error marshalling JSON: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.baseURL+chatPath, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			fail(fmt.Errorf("error creating HTTP request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		span.SetAttributes(attribute.String("request.url", req.URL.String()))
		requestToFirstTokenTime = time.Now()
		span.AddEvent("request started")
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

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			setRequestToFirstTokenTime(span)
			if len(line) == 0 {
				continue
			}

			var responseBody streamingResponseBody
			if err := json.Unmarshal(line, &responseBody); err != nil {
				err = fmt.Errorf("error unmarshalling JSON: %w", err)
				span.RecordError(err)
				if !yield(nil, err) {
					return
				}
				continue
			}

			if responseBody.Error != "" {
				fail(fmt.Errorf("ollama error: %s", responseBody.Error))
				return
			}

			var finishReason *string
			if responseBody.DoneReason != "" {
				finishReason = &responseBody.DoneReason
			}

			if responseBody.Message.Content != "" {
				if !yield(StreamContentChunk{
					finishReason: finishReason,
					content:      responseBody.Message.Content,
				}, nil) {
					return
				}
			}

			if responseBody.Done {
				usage := responseBody.usage()
				span.SetAttributes(attribute.Int("usage.input", usage.InputTokens))
				span.SetAttributes(attribute.Int("usage.output", usage.OutputTokens))
				span.SetAttributes(attribute.Float64("usage.total_time", usage.TotalTime))
				logger.Debug("llm stream finished",
					"model", s.client.model,
					"input_tokens", usage.InputTokens,
					"output_tokens", usage.OutputTokens)

				yield(StreamUsageChunk{finishReason: finishReason, usage: usage}, nil)
				return
			}
		}

		if err := scanner.Err(); err != nil {
			fail(fmt.Errorf("error reading streamed response: %w", err))
			return
		}
		fail(errors.New("stream ended before the response was done"))
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
