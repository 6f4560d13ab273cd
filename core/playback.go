package orchestration

import (
	"context"
	"fmt"
	"sync"

	"github.com/koscakluka/hopper/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AudioPlayer plays a clip and returns once it has been played.
type AudioPlayer interface {
	Play(ctx context.Context, clip audio.Clip) error
}

// Indicator is switched on for the duration of every played clip, e.g. a
// status LED.
type Indicator interface {
	SetActive(active bool)
}

type noopIndicator struct{}

func (noopIndicator) SetActive(bool) {}

// PlaybackSequencer owns the output device. Clips never overlap; callers
// that share it are served one at a time.
type PlaybackSequencer struct {
	player    AudioPlayer
	indicator Indicator
	mu        sync.Mutex
}

func NewPlaybackSequencer(player AudioPlayer, indicator Indicator) *PlaybackSequencer {
	if indicator == nil {
		indicator = noopIndicator{}
	}
	return &PlaybackSequencer{player: player, indicator: indicator}
}

func (p *PlaybackSequencer) Play(ctx context.Context, clip audio.Clip) error {
	if clip.IsEmpty() {
		return nil
	}

	ctx, span := tracer.Start(ctx, "play clip")
	defer span.End()
	span.SetAttributes(attribute.Float64("clip.seconds", clip.Duration().Seconds()))

	p.mu.Lock()
	defer p.mu.Unlock()

	p.indicator.SetActive(true)
	defer p.indicator.SetActive(false)

	if err := p.player.Play(ctx, clip); err != nil {
		err = fmt.Errorf("failed to play clip: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
