package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/hopper/core/audio"
)

// Client is a blocking PortAudio capture and playback pair. Capture and
// playback use separate default streams so they can run at different rates.
type Client struct {
	bufferSize         int
	captureSampleRate  int
	playbackSampleRate int
	logger             *slog.Logger

	input  *portaudio.Stream
	output *portaudio.Stream

	in  []int16
	out []float32

	captureMu   sync.Mutex
	stopCapture context.CancelFunc
	captureDone chan struct{}

	playbackMu sync.Mutex
}

type Option func(*Client)

func WithCaptureSampleRate(sampleRate int) Option {
	return func(c *Client) { c.captureSampleRate = sampleRate }
}

func WithPlaybackSampleRate(sampleRate int) Option {
	return func(c *Client) { c.playbackSampleRate = sampleRate }
}

// WithLogger sets where stream read failures are reported.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(bufferSize int, opts ...Option) (*Client, error) {
	c := &Client{
		bufferSize:         bufferSize,
		captureSampleRate:  audio.DefaultSampleRate,
		playbackSampleRate: audio.DefaultOutputSampleRate,
		logger:             logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	c.in = make([]int16, bufferSize)
	c.out = make([]float32, bufferSize)

	var err error
	if c.input, err = portaudio.OpenDefaultStream(1, 0, float64(c.captureSampleRate), bufferSize, c.in); err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio input stream: %w", err)
	}
	if c.output, err = portaudio.OpenDefaultStream(0, 1, float64(c.playbackSampleRate), bufferSize, c.out); err != nil {
		c.input.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio output stream: %w", err)
	}
	if err := c.output.Start(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to start PortAudio output stream: %w", err)
	}

	return c, nil
}

// StartCapture reads frames on a separate goroutine until StopCapture is
// called or ctx is done.
func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	if c.stopCapture != nil {
		return fmt.Errorf("capture already started")
	}

	if err := c.input.Start(); err != nil {
		return fmt.Errorf("failed to start PortAudio input stream: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.stopCapture = cancel
	c.captureDone = done

	go func() {
		defer close(done)
		frame := make([]byte, len(c.in)*2)
		for ctx.Err() == nil {
			if err := c.input.Read(); err != nil {
				c.logger.Warn("failed to read from PortAudio stream", "error", err)
				continue
			}

			for i, sample := range c.in {
				binary.LittleEndian.PutUint16(frame[i*2:], uint16(sample))
			}
			onAudio(frame)
		}
	}()

	return nil
}

func (c *Client) StopCapture() error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	if c.stopCapture == nil {
		return nil
	}

	c.stopCapture()
	<-c.captureDone
	c.stopCapture = nil
	c.captureDone = nil

	return c.input.Stop()
}

// Play writes the clip to the output stream and returns once the last
// buffer has been accepted. The final buffer is padded with silence.
func (c *Client) Play(ctx context.Context, clip audio.Clip) error {
	clip, err := clip.Resampled(c.playbackSampleRate)
	if err != nil {
		return fmt.Errorf("failed to prepare clip for playback: %w", err)
	}

	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()

	for start := 0; start < len(clip.Samples); start += c.bufferSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := copy(c.out, clip.Samples[start:])
		clear(c.out[n:])
		if err := c.output.Write(); err != nil {
			return fmt.Errorf("failed to write to PortAudio stream: %w", err)
		}
	}

	return nil
}

func (c *Client) Close() {
	_ = c.StopCapture()
	if c.output != nil {
		_ = c.output.Stop()
		c.output.Close()
	}
	if c.input != nil {
		c.input.Close()
	}
	portaudio.Terminate()
}

func (c *Client) CaptureEncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: c.captureSampleRate,
		Format:     audio.EncodingLinear16,
	}
}
