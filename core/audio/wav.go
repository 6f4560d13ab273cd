package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/riff"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatIEEEFloat  = 3
	wavFormatExtensible = 0xFFFE
)

var ErrInvalidWAV = errors.New("invalid wav data")

// DecodeWAV reads an integer PCM or IEEE float WAV stream into a mono clip.
// WAVE_FORMAT_EXTENSIBLE streams are decoded by their sub-format.
// Multi-channel audio is down-mixed by averaging the channels.
func DecodeWAV(r io.ReadSeeker) (Clip, error) {
	format, err := sampleFormat(r)
	if err != nil {
		return Clip{}, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Clip{}, fmt.Errorf("failed to rewind wav data: %w", err)
	}

	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return Clip{}, ErrInvalidWAV
	}

	switch format {
	case wavFormatPCM:
		return decodePCM(decoder)
	case wavFormatIEEEFloat:
		return decodeFloat(decoder)
	default:
		return Clip{}, fmt.Errorf("%w: unsupported audio format %d", ErrInvalidWAV, format)
	}
}

// sampleFormat returns the format tag of the fmt chunk, with extensible
// streams resolved to the first two bytes of their sub-format GUID.
func sampleFormat(r io.Reader) (uint16, error) {
	parser := riff.New(r)
	if err := parser.ParseHeaders(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
	}

	for {
		chunk, err := parser.NextChunk()
		if err != nil {
			return 0, fmt.Errorf("%w: fmt chunk not found", ErrInvalidWAV)
		}
		if chunk.ID != riff.FmtID {
			chunk.Drain()
			continue
		}

		header := make([]byte, chunk.Size)
		if _, err := io.ReadFull(chunk, header); err != nil || len(header) < 16 {
			return 0, fmt.Errorf("%w: truncated fmt chunk", ErrInvalidWAV)
		}
		format := binary.LittleEndian.Uint16(header[0:2])
		if format == wavFormatExtensible {
			if len(header) < 26 {
				return 0, fmt.Errorf("%w: truncated extensible fmt chunk", ErrInvalidWAV)
			}
			format = binary.LittleEndian.Uint16(header[24:26])
		}
		return format, nil
	}
}

func decodePCM(decoder *wav.Decoder) (Clip, error) {
	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("failed to decode wav samples: %w", err)
	}

	channels := buffer.Format.NumChannels
	if channels < 1 {
		return Clip{}, fmt.Errorf("%w: no channels", ErrInvalidWAV)
	}
	bitDepth := buffer.SourceBitDepth
	if bitDepth < 8 || bitDepth > 32 {
		return Clip{}, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, bitDepth)
	}

	// 8-bit WAV is unsigned, every other depth is signed.
	offset := 0.0
	fullScale := float64(int64(1)<<(bitDepth-1) - 1)
	if bitDepth == 8 {
		offset = 128
		fullScale = 127
	}

	samples := downmix(len(buffer.Data)/channels, channels, func(i int) float64 {
		return (float64(buffer.Data[i]) - offset) / fullScale
	})
	return Clip{Samples: samples, SampleRate: buffer.Format.SampleRate}, nil
}

// decodeFloat keeps float samples as they are, without rescaling.
func decodeFloat(decoder *wav.Decoder) (Clip, error) {
	channels := int(decoder.NumChans)
	if channels < 1 {
		return Clip{}, fmt.Errorf("%w: no channels", ErrInvalidWAV)
	}

	var width int
	var sample func([]byte) float64
	switch decoder.BitDepth {
	case 32:
		width = 4
		sample = func(b []byte) float64 { return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))) }
	case 64:
		width = 8
		sample = func(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }
	default:
		return Clip{}, fmt.Errorf("%w: unsupported float bit depth %d", ErrInvalidWAV, decoder.BitDepth)
	}

	if err := decoder.FwdToPCM(); err != nil {
		return Clip{}, fmt.Errorf("failed to find wav samples: %w", err)
	}
	if decoder.PCMChunk == nil {
		return Clip{}, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
	}

	data, err := io.ReadAll(io.LimitReader(decoder.PCMChunk.R, int64(decoder.PCMChunk.Size)))
	if err != nil {
		return Clip{}, fmt.Errorf("failed to decode wav samples: %w", err)
	}

	samples := downmix(len(data)/(width*channels), channels, func(i int) float64 {
		return sample(data[i*width : (i+1)*width])
	})
	return Clip{Samples: samples, SampleRate: int(decoder.SampleRate)}, nil
}

// downmix averages interleaved channel samples into one sample per frame.
func downmix(frames, channels int, sample func(i int) float64) []float32 {
	samples := make([]float32, frames)
	for frame := range frames {
		sum := 0.0
		for channel := range channels {
			sum += sample(frame*channels + channel)
		}
		samples[frame] = float32(sum / float64(channels))
	}
	return samples
}

// LoadWAV decodes the WAV file at path.
func LoadWAV(path string) (Clip, error) {
	file, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer file.Close()

	clip, err := DecodeWAV(file)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return clip, nil
}
