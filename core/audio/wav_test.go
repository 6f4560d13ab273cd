package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeTestWAV(t *testing.T, sampleRate, bitDepth, channels int, data []int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clip.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create wav file: %v", err)
	}
	defer file.Close()

	encoder := wav.NewEncoder(file, sampleRate, bitDepth, channels, wavFormatPCM)
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := encoder.Write(buffer); err != nil {
		t.Fatalf("failed to write wav samples: %v", err)
	}
	if err := encoder.Close(); err != nil {
		t.Fatalf("failed to close wav encoder: %v", err)
	}

	return path
}

func TestLoadWAVNormalizesInt16(t *testing.T) {
	path := writeTestWAV(t, 22050, 16, 1, []int{0, math.MaxInt16, -math.MaxInt16, 16384})

	clip, err := LoadWAV(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if clip.SampleRate != 22050 {
		t.Fatalf("expected sample rate 22050, got %d", clip.SampleRate)
	}
	expected := []float32{0, 1, -1, 0.5}
	if len(clip.Samples) != len(expected) {
		t.Fatalf("expected %d samples, got %d", len(expected), len(clip.Samples))
	}
	for i, sample := range clip.Samples {
		if math.Abs(float64(sample-expected[i])) > 1e-3 {
			t.Fatalf("expected sample %d to be %v, got %v", i, expected[i], sample)
		}
	}
}

func TestLoadWAVDownmixesStereo(t *testing.T) {
	path := writeTestWAV(t, 16000, 16, 2, []int{math.MaxInt16, 0, -math.MaxInt16, -math.MaxInt16})

	clip, err := LoadWAV(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(clip.Samples) != 2 {
		t.Fatalf("expected 2 mono samples, got %d", len(clip.Samples))
	}
	if math.Abs(float64(clip.Samples[0]-0.5)) > 1e-3 || math.Abs(float64(clip.Samples[1]+1)) > 1e-3 {
		t.Fatalf("unexpected down-mixed samples: %v", clip.Samples)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	_, err := DecodeWAV(bytes.NewReader([]byte("definitely not a wav file")))
	if !errors.Is(err, ErrInvalidWAV) {
		t.Fatalf("expected ErrInvalidWAV, got %v", err)
	}
}

func TestLoadWAVMissingFile(t *testing.T) {
	if _, err := LoadWAV(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

// buildWAV assembles a WAV container around raw sample bytes. A non-zero
// subFormat writes a WAVE_FORMAT_EXTENSIBLE fmt chunk.
func buildWAV(t *testing.T, format, subFormat uint16, sampleRate, bitDepth, channels int, data []byte) []byte {
	t.Helper()

	blockAlign := channels * bitDepth / 8
	var fmtChunk bytes.Buffer
	fields := []any{
		format,
		uint16(channels),
		uint32(sampleRate),
		uint32(sampleRate * blockAlign),
		uint16(blockAlign),
		uint16(bitDepth),
	}
	if subFormat != 0 {
		guidTail := [14]byte{0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71}
		fields = append(fields, uint16(22), uint16(bitDepth), uint32(0), subFormat, guidTail)
	}
	for _, field := range fields {
		if err := binary.Write(&fmtChunk, binary.LittleEndian, field); err != nil {
			t.Fatalf("failed to write fmt field: %v", err)
		}
	}

	var out bytes.Buffer
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(4+8+fmtChunk.Len()+8+len(data)))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	_ = binary.Write(&out, binary.LittleEndian, uint32(fmtChunk.Len()))
	out.Write(fmtChunk.Bytes())
	out.WriteString("data")
	_ = binary.Write(&out, binary.LittleEndian, uint32(len(data)))
	out.Write(data)
	return out.Bytes()
}

func float32Bytes(samples ...float32) []byte {
	out := make([]byte, 0, 4*len(samples))
	for _, sample := range samples {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(sample))
	}
	return out
}

func TestDecodeWAVFloatSamples(t *testing.T) {
	float64Data := make([]byte, 0, 16)
	for _, sample := range []float64{0.25, -0.75} {
		float64Data = binary.LittleEndian.AppendUint64(float64Data, math.Float64bits(sample))
	}

	tests := []struct {
		name       string
		wav        []byte
		sampleRate int
		expected   []float32
	}{
		{
			name:       "float32",
			wav:        buildWAV(t, wavFormatIEEEFloat, 0, 22050, 32, 1, float32Bytes(0, 0.5, -0.5, 1)),
			sampleRate: 22050,
			expected:   []float32{0, 0.5, -0.5, 1},
		},
		{
			name:       "float64",
			wav:        buildWAV(t, wavFormatIEEEFloat, 0, 16000, 64, 1, float64Data),
			sampleRate: 16000,
			expected:   []float32{0.25, -0.75},
		},
		{
			name:       "extensible float32 stereo",
			wav:        buildWAV(t, wavFormatExtensible, wavFormatIEEEFloat, 24000, 32, 2, float32Bytes(1, 0, -0.5, -0.5)),
			sampleRate: 24000,
			expected:   []float32{0.5, -0.5},
		},
		{
			name: "extensible pcm",
			wav: buildWAV(t, wavFormatExtensible, wavFormatPCM, 16000, 16, 1,
				binary.LittleEndian.AppendUint16(binary.LittleEndian.AppendUint16(nil, 0), uint16(math.MaxInt16))),
			sampleRate: 16000,
			expected:   []float32{0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clip, err := DecodeWAV(bytes.NewReader(tt.wav))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if clip.SampleRate != tt.sampleRate {
				t.Fatalf("expected sample rate %d, got %d", tt.sampleRate, clip.SampleRate)
			}
			if len(clip.Samples) != len(tt.expected) {
				t.Fatalf("expected %d samples, got %d", len(tt.expected), len(clip.Samples))
			}
			for i, sample := range clip.Samples {
				if math.Abs(float64(sample-tt.expected[i])) > 1e-3 {
					t.Fatalf("expected sample %d to be %v, got %v", i, tt.expected[i], sample)
				}
			}
		})
	}
}

func TestDecodeWAVRejectsUnknownFormat(t *testing.T) {
	alaw := buildWAV(t, 6, 0, 8000, 8, 1, []byte{1, 2, 3, 4})
	if _, err := DecodeWAV(bytes.NewReader(alaw)); !errors.Is(err, ErrInvalidWAV) {
		t.Fatalf("expected ErrInvalidWAV, got %v", err)
	}
}
