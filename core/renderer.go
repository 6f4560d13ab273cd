package orchestration

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/koscakluka/hopper/core/audio"
	"github.com/koscakluka/hopper/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SpeechRenderer synthesizes one sentence and prepares the result for the
// output device.
type SpeechRenderer struct {
	synthesizer texttospeech.Synthesizer
	volume      float64
	sampleRate  int
}

func NewSpeechRenderer(synthesizer texttospeech.Synthesizer, volume float64, sampleRate int) *SpeechRenderer {
	return &SpeechRenderer{
		synthesizer: synthesizer,
		volume:      volume,
		sampleRate:  sampleRate,
	}
}

// Render returns an empty clip for empty text without calling the backend.
// A rejected or undecodable synthesis is reported as
// texttospeech.ErrSynthesisFailure, anything else as ErrBackendTransport.
func (r *SpeechRenderer) Render(ctx context.Context, text string) (audio.Clip, error) {
	if text == "" {
		return audio.Clip{}, nil
	}

	ctx, span := tracer.Start(ctx, "render sentence")
	defer span.End()
	span.SetAttributes(attribute.Int("sentence.length", len(text)))

	fail := func(err error) (audio.Clip, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return audio.Clip{}, err
	}

	wav, err := r.synthesizer.Synthesize(ctx, text)
	if errors.Is(err, texttospeech.ErrSynthesisFailure) {
		return fail(err)
	} else if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrBackendTransport, err))
	}

	clip, err := audio.DecodeWAV(bytes.NewReader(wav))
	if err != nil {
		return fail(fmt.Errorf("%w: %w", texttospeech.ErrSynthesisFailure, err))
	}

	clip, err = clip.Prepare(r.volume, r.sampleRate)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", texttospeech.ErrSynthesisFailure, err))
	}
	span.SetAttributes(attribute.Float64("clip.seconds", clip.Duration().Seconds()))

	return clip, nil
}
