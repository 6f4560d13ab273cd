package orchestration

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/hopper/core/audio"
)

func TestPlaybackSequencerTogglesIndicator(t *testing.T) {
	player := &testPlayer{}
	indicator := &testIndicator{}
	sequencer := NewPlaybackSequencer(player, indicator)

	if err := sequencer.Play(context.Background(), audio.Clip{Samples: []float32{0.1}, SampleRate: 8000}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !slices.Equal(indicator.events, []bool{true, false}) {
		t.Fatalf("expected indicator on then off, got %v", indicator.events)
	}
	if len(player.Played()) != 1 {
		t.Fatalf("expected one clip to be played")
	}
}

func TestPlaybackSequencerSkipsEmptyClips(t *testing.T) {
	player := &testPlayer{}
	if err := NewPlaybackSequencer(player, nil).Play(context.Background(), audio.Clip{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(player.Played()) != 0 {
		t.Fatalf("expected empty clip not to reach the device")
	}
}

func TestPlaybackSequencerNeverOverlaps(t *testing.T) {
	player := &testPlayer{delay: 2 * time.Millisecond}
	sequencer := NewPlaybackSequencer(player, nil)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sequencer.Play(context.Background(), audio.Clip{Samples: []float32{0.1}, SampleRate: 8000})
		}()
	}
	wg.Wait()

	if player.overlapped.Load() {
		t.Fatalf("expected playbacks to be serialized")
	}
	if len(player.Played()) != 5 {
		t.Fatalf("expected five clips, got %d", len(player.Played()))
	}
}
