package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/hopper/core/conversations"
	"github.com/koscakluka/hopper/core/llms"
	"github.com/koscakluka/hopper/core/sentences"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Sentence is one item handed to the render stage. End marks the terminator
// of a turn and carries no text.
type Sentence struct {
	TurnID uuid.UUID
	Text   string
	End    bool
}

type SentenceSink interface {
	Send(ctx context.Context, sentence Sentence) error
}

type SentenceSinkFunc func(ctx context.Context, sentence Sentence) error

func (f SentenceSinkFunc) Send(ctx context.Context, sentence Sentence) error {
	return f(ctx, sentence)
}

// ChatBackend streams a reply to the given conversation.
type ChatBackend interface {
	ChatStream(ctx context.Context, messages []conversations.ChatMessage) llms.Stream
}

// GenerationClient drives a single conversational turn against the chat
// backend, cutting the streamed reply into sentences as it arrives.
type GenerationClient struct {
	backend                    ChatBackend
	suppressEmptyFinalSentence bool
	logger                     *slog.Logger
}

func NewGenerationClient(backend ChatBackend, suppressEmptyFinalSentence bool, logger *slog.Logger) *GenerationClient {
	return &GenerationClient{
		backend:                    backend,
		suppressEmptyFinalSentence: suppressEmptyFinalSentence,
		logger:                     logger,
	}
}

// Respond pushes userText to history, streams the reply and forwards every
// completed sentence to sink in order. Exactly one terminator is sent per
// call, whatever the outcome. The assistant reply is pushed to history only
// when the stream completes.
func (c *GenerationClient) Respond(
	ctx context.Context,
	turnID uuid.UUID,
	userText string,
	history *conversations.History,
	sink SentenceSink,
) (reply string, err error) {
	ctx, span := tracer.Start(ctx, "generate response")
	defer span.End()
	span.SetAttributes(attribute.String("turn.id", turnID.String()))
	start := time.Now()

	terminated := false
	terminate := func() error {
		terminated = true
		if err := sink.Send(ctx, Sentence{TurnID: turnID, End: true}); err != nil {
			return fmt.Errorf("failed to send terminator: %w", err)
		}
		return nil
	}
	defer func() {
		if !terminated {
			err = errors.Join(err, terminate())
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		llmDuration.Record(ctx, time.Since(start).Seconds())
	}()

	history.Push(conversations.NewUserMessage(userText))

	forward := func(text string) error {
		c.logger.Debug("sentence received", "text", text)
		if err := sink.Send(ctx, Sentence{TurnID: turnID, Text: text}); err != nil {
			return fmt.Errorf("failed to forward sentence: %w", err)
		}
		return nil
	}

	segmenter := sentences.NewSegmenter()
	var fullReply strings.Builder
	stream := c.backend.ChatStream(ctx, history.Snapshot())
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			return fullReply.String(), fmt.Errorf("%w: %w", ErrBackendTransport, err)
		}

		switch chunk := chunk.(type) {
		case llms.StreamContentChunk:
			fragment := chunk.Content()
			fullReply.WriteString(fragment)
			for _, sentence := range segmenter.Append(fragment) {
				if err := forward(sentence); err != nil {
					return fullReply.String(), err
				}
			}
		case llms.StreamUsageChunk:
			usage := chunk.Usage()
			span.SetAttributes(
				attribute.Int("usage.input", usage.InputTokens),
				attribute.Int("usage.output", usage.OutputTokens))
		}
	}

	if final := segmenter.Flush(); final != "" || !c.suppressEmptyFinalSentence {
		if err := forward(final); err != nil {
			return fullReply.String(), err
		}
	}
	if err := terminate(); err != nil {
		return fullReply.String(), err
	}

	history.Push(conversations.NewAssistantMessage(fullReply.String()))
	c.logger.Debug("reply generated", "seconds", time.Since(start).Seconds())
	return fullReply.String(), nil
}
