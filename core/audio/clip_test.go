package audio

import (
	"math"
	"testing"
	"time"
)

func TestClipScaled(t *testing.T) {
	clip := Clip{Samples: []float32{0.5, -0.25, 0}, SampleRate: 16000}

	scaled := clip.Scaled(2)

	expected := []float32{1, -0.5, 0}
	for i, sample := range scaled.Samples {
		if sample != expected[i] {
			t.Fatalf("expected sample %d to be %v, got %v", i, expected[i], sample)
		}
	}
	if clip.Samples[0] != 0.5 {
		t.Fatalf("expected original clip to stay unchanged, got %v", clip.Samples[0])
	}
}

func TestClipResampledSameRateIsUnchanged(t *testing.T) {
	clip := Clip{Samples: []float32{0.1, 0.2, 0.3}, SampleRate: 22050}

	resampled, err := clip.Resampled(22050)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resampled.Samples) != 3 || resampled.SampleRate != 22050 {
		t.Fatalf("expected unchanged clip, got %d samples at %d Hz", len(resampled.Samples), resampled.SampleRate)
	}
}

func TestClipResampledChangesLength(t *testing.T) {
	tests := []struct {
		from, to int
		input    int
		expected int
	}{
		{from: 22050, to: 44100, input: 100, expected: 200},
		{from: 48000, to: 16000, input: 300, expected: 100},
		{from: 16000, to: 24000, input: 100, expected: 150},
	}

	for _, tt := range tests {
		clip := Clip{Samples: make([]float32, tt.input), SampleRate: tt.from}
		resampled, err := clip.Resampled(tt.to)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(resampled.Samples) != tt.expected {
			t.Fatalf("%d -> %d Hz: expected %d samples, got %d", tt.from, tt.to, tt.expected, len(resampled.Samples))
		}
		if resampled.SampleRate != tt.to {
			t.Fatalf("expected sample rate %d, got %d", tt.to, resampled.SampleRate)
		}
	}
}

func TestClipResampledInterpolates(t *testing.T) {
	clip := Clip{Samples: []float32{0, 1}, SampleRate: 1}

	resampled, err := clip.Resampled(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []float32{0, 0.5, 1, 1}
	if len(resampled.Samples) != len(expected) {
		t.Fatalf("expected %d samples, got %d", len(expected), len(resampled.Samples))
	}
	for i, sample := range resampled.Samples {
		if sample != expected[i] {
			t.Fatalf("expected sample %d to be %v, got %v", i, expected[i], sample)
		}
	}
}

func TestClipResampledRejectsInvalidRates(t *testing.T) {
	if _, err := (Clip{SampleRate: 0}).Resampled(16000); err == nil {
		t.Fatalf("expected error for zero source rate")
	}
	if _, err := (Clip{SampleRate: 16000}).Resampled(-1); err == nil {
		t.Fatalf("expected error for negative target rate")
	}
}

func TestClipLinear16RoundTripsAndClips(t *testing.T) {
	clip := Clip{Samples: []float32{0, 1, -1, 2, -2}, SampleRate: 8000}

	decoded := ClipFromLinear16(clip.Linear16(), 8000)

	expected := []float32{0, 1, -1, 1, -1}
	for i, sample := range decoded.Samples {
		if math.Abs(float64(sample-expected[i])) > 1e-4 {
			t.Fatalf("expected sample %d to be %v, got %v", i, expected[i], sample)
		}
	}
}

func TestClipDuration(t *testing.T) {
	clip := Clip{Samples: make([]float32, 24000), SampleRate: 48000}
	if got := clip.Duration(); got != 500*time.Millisecond {
		t.Fatalf("expected 500ms, got %v", got)
	}
}
