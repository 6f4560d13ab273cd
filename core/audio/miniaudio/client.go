package miniaudio

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/hopper/core/audio"
)

type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	options      options
	playbackClient
	captureClient
}

type options struct {
	captureSampleRate  int
	playbackSampleRate int
	captureDevice      int
	playbackDevice     int
	logMessages        func(string)
}

type Option func(*options)

func WithCaptureSampleRate(sampleRate int) Option {
	return func(o *options) { o.captureSampleRate = sampleRate }
}

func WithPlaybackSampleRate(sampleRate int) Option {
	return func(o *options) { o.playbackSampleRate = sampleRate }
}

// WithCaptureDevice selects the capture device by its enumeration index.
// Negative values select the system default.
func WithCaptureDevice(index int) Option {
	return func(o *options) { o.captureDevice = index }
}

// WithPlaybackDevice selects the playback device by its enumeration index.
// Negative values select the system default.
func WithPlaybackDevice(index int) Option {
	return func(o *options) { o.playbackDevice = index }
}

func WithBackendLog(callback func(message string)) Option {
	return func(o *options) { o.logMessages = callback }
}

func NewClient(opts ...Option) (*Client, error) {
	options := options{
		captureSampleRate:  audio.DefaultSampleRate,
		playbackSampleRate: audio.DefaultOutputSampleRate,
		captureDevice:      -1,
		playbackDevice:     -1,
		logMessages:        func(string) {},
	}
	for _, opt := range opts {
		opt(&options)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, options.logMessages)
	if err != nil {
		return nil, fmt.Errorf("malgo context initialisation failed: %w", err)
	}

	client := Client{
		audioContext: audioCtx,
		options:      options,
	}

	playbackID, err := client.deviceID(malgo.Playback, options.playbackDevice)
	if err != nil {
		client.Close()
		return nil, err
	}
	if err := client.playbackClient.Init(audioCtx, options.playbackSampleRate, playbackID); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}

	if err := client.playbackClient.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	captureID, err := client.deviceID(malgo.Capture, options.captureDevice)
	if err != nil {
		client.Close()
		return nil, err
	}
	if err := client.captureClient.Init(audioCtx, options.captureSampleRate, captureID); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

func (c *Client) deviceID(deviceType malgo.DeviceType, index int) (*malgo.DeviceID, error) {
	if index < 0 {
		return nil, nil
	}

	devices, err := c.audioContext.Devices(deviceType)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	if index >= len(devices) {
		return nil, fmt.Errorf("device index %d out of range (%d devices)", index, len(devices))
	}

	return &devices[index].ID, nil
}

func (c *Client) StartCapture(_ context.Context, onAudio func(audio []byte)) error {
	return c.captureClient.Start(onAudio)
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

// Play queues the clip on the playback device and blocks until all of it
// has been handed to the device, or ctx is done.
func (c *Client) Play(ctx context.Context, clip audio.Clip) error {
	clip, err := clip.Resampled(c.options.playbackSampleRate)
	if err != nil {
		return fmt.Errorf("failed to prepare clip for playback: %w", err)
	}

	if err := c.playbackClient.SendAudio(clip.Linear16()); err != nil {
		return err
	}

	return c.playbackClient.AwaitMark(ctx)
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()
	_ = c.playbackClient.Uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}

func (c *Client) CaptureEncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: c.options.captureSampleRate,
		Format:     audio.EncodingLinear16,
	}
}

func (c *Client) PlaybackEncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: c.options.playbackSampleRate,
		Format:     audio.EncodingLinear16,
	}
}
