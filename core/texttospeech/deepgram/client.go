package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"

	"github.com/koscakluka/hopper/core/texttospeech"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultSpeakURL = "https://api.deepgram.com/v1/speak"

type deepgramVoice string

const defaultVoice deepgramVoice = "aura-2-thalia-en"

// sampleRates are the rates the speak endpoint accepts for linear16.
var sampleRates = []int{8000, 16000, 24000, 32000, 48000}

func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{
		"aura-2-thalia-en",
		"aura-2-andromeda-en",
		"aura-2-helena-en",
		"aura-2-apollo-en",
		"aura-2-arcas-en",
		"aura-2-aries-en",
		"aura-asteria-en",
		"aura-luna-en",
		"aura-orion-en",
	}
}

// TextToSpeechClient renders text through Deepgram's REST speak endpoint as
// a 16-bit WAV.
type TextToSpeechClient struct {
	apiKey     string
	speakURL   string
	voice      deepgramVoice
	sampleRate int
	httpClient *http.Client
}

type Option func(*TextToSpeechClient)

// WithAPIKey overrides the DEEPGRAM_API_KEY environment variable.
func WithAPIKey(apiKey string) Option {
	return func(c *TextToSpeechClient) { c.apiKey = apiKey }
}

func WithSpeakURL(speakURL string) Option {
	return func(c *TextToSpeechClient) { c.speakURL = speakURL }
}

func WithSampleRate(sampleRate int) Option {
	return func(c *TextToSpeechClient) { c.sampleRate = sampleRate }
}

func NewTextToSpeechClient(voice string, opts ...Option) (*TextToSpeechClient, error) {
	client := &TextToSpeechClient{
		apiKey:     os.Getenv("DEEPGRAM_API_KEY"),
		speakURL:   defaultSpeakURL,
		voice:      defaultVoice,
		sampleRate: 24000,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(client)
	}

	if voice != "" {
		if !slices.Contains(GetAvailableVoices(), deepgramVoice(voice)) {
			return nil, fmt.Errorf("invalid voice %q", voice)
		}
		client.voice = deepgramVoice(voice)
	}
	if !slices.Contains(sampleRates, client.sampleRate) {
		return nil, fmt.Errorf("unsupported sample rate %d, expected one of %v", client.sampleRate, sampleRates)
	}
	if client.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	return client, nil
}

func (c *TextToSpeechClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "synthesize")
	defer span.End()
	span.SetAttributes(attribute.String("request.voice", string(c.voice)))

	speakURL, err := url.Parse(c.speakURL)
	if err != nil {
		return nil, fmt.Errorf("invalid speak url: %w", err)
	}
	urlValues := speakURL.Query()
	urlValues.Set("model", string(c.voice))
	urlValues.Set("encoding", "linear16")
	urlValues.Set("container", "wav")
	urlValues.Set("sample_rate", strconv.Itoa(c.sampleRate))
	speakURL.RawQuery = urlValues.Encode()

	body, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, speakURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		err := fmt.Errorf("%w: status %s", texttospeech.ErrSynthesisFailure, resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	return wav, nil
}
