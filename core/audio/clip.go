package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Clip is a decoded mono sample buffer with amplitudes nominally in [-1, 1].
// Clips are treated as immutable; every transformation returns a new one.
type Clip struct {
	Samples    []float32
	SampleRate int
}

func (c Clip) IsEmpty() bool { return len(c.Samples) == 0 }

func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Scaled multiplies every sample by volume.
func (c Clip) Scaled(volume float64) Clip {
	samples := make([]float32, len(c.Samples))
	for i, sample := range c.Samples {
		samples[i] = float32(float64(sample) * volume)
	}
	return Clip{Samples: samples, SampleRate: c.SampleRate}
}

// Resampled converts the clip to sampleRate using linear interpolation. A
// clip already at sampleRate is returned unchanged.
func (c Clip) Resampled(sampleRate int) (Clip, error) {
	if c.SampleRate <= 0 || sampleRate <= 0 {
		return Clip{}, fmt.Errorf("invalid sample rates: from=%d, to=%d", c.SampleRate, sampleRate)
	}
	if c.SampleRate == sampleRate {
		return c, nil
	}

	inputSamples := len(c.Samples)
	outputSamples := int(float64(inputSamples) * float64(sampleRate) / float64(c.SampleRate))
	samples := make([]float32, outputSamples)
	if inputSamples == 0 {
		return Clip{Samples: samples, SampleRate: sampleRate}, nil
	}

	ratio := float64(c.SampleRate) / float64(sampleRate)
	for i := range samples {
		position := float64(i) * ratio
		index := int(position)
		if index >= inputSamples-1 {
			samples[i] = c.Samples[inputSamples-1]
			continue
		}

		frac := float32(position - float64(index))
		s0, s1 := c.Samples[index], c.Samples[index+1]
		samples[i] = s0 + frac*(s1-s0)
	}

	return Clip{Samples: samples, SampleRate: sampleRate}, nil
}

// Prepare applies the output volume and converts the clip to the output
// sample rate, the two steps every clip goes through before playback.
func (c Clip) Prepare(volume float64, sampleRate int) (Clip, error) {
	return c.Scaled(volume).Resampled(sampleRate)
}

// Linear16 encodes the clip as little-endian signed 16-bit PCM, clipping
// samples outside [-1, 1].
func (c Clip) Linear16() []byte {
	out := make([]byte, len(c.Samples)*2)
	for i, sample := range c.Samples {
		value := math.Round(float64(sample) * math.MaxInt16)
		value = max(math.MinInt16, min(math.MaxInt16, value))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(value)))
	}
	return out
}

// ClipFromLinear16 decodes little-endian signed 16-bit PCM.
func ClipFromLinear16(pcm []byte, sampleRate int) Clip {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		value := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(value) / math.MaxInt16
	}
	return Clip{Samples: samples, SampleRate: sampleRate}
}
