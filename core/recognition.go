package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/koscakluka/hopper/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AudioInput is a capture device that can be started and stopped between
// listen cycles.
type AudioInput interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

// Utterance is the text heard between two endpoints. Text is empty when
// nothing was recognized.
type Utterance struct {
	Text string
}

// RecognitionGate turns captured audio into utterances. Each NextUtterance
// call opens its own capture session on the same recognizer.
type RecognitionGate struct {
	input      AudioInput
	recognizer speechtotext.Recognizer
	logger     *slog.Logger

	// frameBuffer is how many captured frames may wait for the recognizer.
	frameBuffer int
}

func NewRecognitionGate(input AudioInput, recognizer speechtotext.Recognizer, logger *slog.Logger) *RecognitionGate {
	return &RecognitionGate{
		input:       input,
		recognizer:  recognizer,
		logger:      logger,
		frameBuffer: 64,
	}
}

// NextUtterance blocks until the recognizer reports an endpoint. Failing to
// start capture is reported as ErrDeviceUnavailable, recognizer failures as
// ErrRecognitionStream.
func (g *RecognitionGate) NextUtterance(ctx context.Context) (Utterance, error) {
	ctx, span := tracer.Start(ctx, "listen")
	defer span.End()
	start := time.Now()

	frames := make(chan []byte, g.frameBuffer)
	onAudio := func(audio []byte) {
		// Devices reuse their buffers.
		select {
		case frames <- slices.Clone(audio):
		default:
			g.logger.Warn("dropping audio frame, recognizer is falling behind")
		}
	}

	if err := g.input.StartCapture(ctx, onAudio); err != nil {
		err = fmt.Errorf("%w: failed to start capture: %w", ErrDeviceUnavailable, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Utterance{}, err
	}
	defer func() {
		if err := g.input.StopCapture(); err != nil {
			g.logger.Warn("failed to stop capture", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return Utterance{}, ctx.Err()
		case frame := <-frames:
			endpoint, err := g.recognizer.Accept(frame)
			if err != nil {
				err = fmt.Errorf("%w: %w", ErrRecognitionStream, err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return Utterance{}, err
			}
			if !endpoint {
				continue
			}

			utterance := Utterance{Text: strings.TrimSpace(g.recognizer.Result())}
			elapsed := time.Since(start).Seconds()
			sttDuration.Record(ctx, elapsed)
			span.SetAttributes(attribute.Int("utterance.length", len(utterance.Text)))
			g.logger.Debug("utterance recognized", "text", utterance.Text, "stt_seconds", elapsed)
			return utterance, nil
		}
	}
}
