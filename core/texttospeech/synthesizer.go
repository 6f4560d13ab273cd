// Package texttospeech holds the contract for one-shot speech synthesis
// backends.
package texttospeech

import (
	"context"
	"errors"
)

// ErrSynthesisFailure marks a non-success answer from the synthesis backend
// for a single piece of text. Callers skip that text and carry on.
var ErrSynthesisFailure = errors.New("synthesis failure")

// Synthesizer turns text into an encoded waveform (WAV).
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
