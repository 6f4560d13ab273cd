package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/hopper/core/audio"
	"github.com/koscakluka/hopper/internal/utils"
)

const defaultListenURL = "wss://api.deepgram.com/v1/listen"

var ErrConnectionClosed = errors.New("deepgram connection closed")

// Recognizer streams audio to Deepgram and reports an endpoint whenever
// Deepgram finalizes speech or signals the end of an utterance.
type Recognizer struct {
	apiKey    string
	listenURL string
	encoding  streamEncoding
	model     string
	language  string
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	conn      *websocket.Conn
	connMu    sync.Mutex
	lastMsgTs time.Time

	mu             sync.Mutex
	transcript     []string
	unendedSegment bool
	endpoint       bool
	readErr        error
}

type Option func(*Recognizer)

// WithAPIKey overrides the DEEPGRAM_API_KEY environment variable.
func WithAPIKey(apiKey string) Option {
	return func(r *Recognizer) { r.apiKey = apiKey }
}

func WithListenURL(listenURL string) Option {
	return func(r *Recognizer) { r.listenURL = listenURL }
}

func WithModel(model string) Option {
	return func(r *Recognizer) { r.model = model }
}

func WithLanguage(language string) Option {
	return func(r *Recognizer) { r.language = language }
}

// WithLogger sets where connection problems are reported. By default they
// only reach the OpenTelemetry log bridge.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recognizer) { r.logger = l }
}

// NewRecognizer opens the streaming connection. encodingInfo must describe
// the frames that will be passed to Accept.
func NewRecognizer(ctx context.Context, encodingInfo audio.EncodingInfo, opts ...Option) (*Recognizer, error) {
	encoding, err := newStreamEncoding(encodingInfo)
	if err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}

	r := &Recognizer{
		apiKey:    os.Getenv("DEEPGRAM_API_KEY"),
		listenURL: defaultListenURL,
		encoding:  encoding,
		model:     "nova-3",
		language:  "en-US",
		logger:    logger,
		lastMsgTs: time.Now(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	if err := r.connect(); err != nil {
		r.cancel()
		return nil, err
	}

	go r.generateSilence(r.ctx, encodingInfo)

	return r, nil
}

func (r *Recognizer) connect() error {
	listenUrl, err := url.Parse(r.listenURL)
	if err != nil {
		return fmt.Errorf("invalid listen url: %w", err)
	}
	queryParams := listenUrl.Query()
	r.encoding.setQuery(queryParams)
	queryParams.Set("model", r.model)
	queryParams.Set("language", r.language)
	queryParams.Set("smart_format", "true")
	queryParams.Set("utterance_end_ms", "1000")
	queryParams.Set("interim_results", "true")
	queryParams.Set("endpointing", "300")
	queryParams.Set("vad_events", "true")
	listenUrl.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(r.ctx, listenUrl.String(),
		http.Header{"Authorization": {"Token " + r.apiKey}})
	if err != nil {
		return fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	r.connMu.Lock()
	r.conn = conn
	r.connMu.Unlock()

	go r.readAndProcessMessages(conn)
	return nil
}

// Accept sends one frame. A dropped connection is reported once and
// reestablished on the next call.
func (r *Recognizer) Accept(frame []byte) (bool, error) {
	r.mu.Lock()
	readErr := r.readErr
	r.readErr = nil
	r.mu.Unlock()
	if readErr != nil {
		return false, readErr
	}

	r.connMu.Lock()
	connected := r.conn != nil
	r.connMu.Unlock()
	if !connected {
		if err := r.connect(); err != nil {
			return false, err
		}
	}

	if err := r.sendAudio(frame); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	endpoint := r.endpoint
	r.endpoint = false
	return endpoint, nil
}

func (r *Recognizer) Result() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	text := strings.Join(r.transcript, " ")
	r.transcript = nil
	return text
}

// Close asks Deepgram to close the stream and stops the background loops.
func (r *Recognizer) Close() error {
	r.cancel()

	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.conn == nil {
		return nil
	}
	conn := r.conn
	r.conn = nil
	defer conn.Close()

	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return fmt.Errorf("failed to close deepgram stream: %w", err)
	}
	return nil
}

func (r *Recognizer) sendAudio(audio []byte) error {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	r.lastMsgTs = time.Now()
	if r.conn == nil {
		return ErrConnectionClosed
	}
	if err := r.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (r *Recognizer) sendSilence(audio []byte) error {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.conn == nil {
		return nil
	}
	if err := r.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (r *Recognizer) sendKeepAlive() {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.conn == nil {
		return
	}
	if err := r.conn.WriteJSON(
		struct {
			Type string `json:"type"`
		}{
			Type: "KeepAlive",
		}); err != nil {
		r.logger.Warn("failed to write to deepgram client", "error", err)
	}
}

func (r *Recognizer) sinceLastMessage() time.Duration {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	return time.Since(r.lastMsgTs)
}

func (r *Recognizer) readAndProcessMessages(conn *websocket.Conn) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && r.ctx.Err() == nil {
				r.logger.Error("failed to read deepgram websocket message", "error", err)
			}

			if r.ctx.Err() == nil {
				r.mu.Lock()
				r.readErr = fmt.Errorf("%w: %w", ErrConnectionClosed, err)
				r.mu.Unlock()
			}

			r.connMu.Lock()
			if r.conn == conn {
				r.conn = nil
			}
			r.connMu.Unlock()
			conn.Close()
			return
		}
		if msgType != websocket.BinaryMessage {
			r.processMessage(msg)
		}
	}
}

func (r *Recognizer) processMessage(msg []byte) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		r.logger.Warn("failed to unmarshal deepgram message", "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			r.logger.Warn("failed to unmarshal deepgram message", "error", err)
			return
		}
		if !msgResp.IsFinal {
			return
		}

		if len(msgResp.Channel.Alternatives) > 0 {
			transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
			if len(transcript) > 0 {
				r.transcript = append(r.transcript, transcript)
			}
		}
		if msgResp.SpeechFinal {
			r.unendedSegment = false
			r.endpoint = true
		}

	case api.TypeUtteranceEndResponse:
		if r.unendedSegment {
			r.unendedSegment = false
			r.endpoint = true
		}

	case api.TypeSpeechStartedResponse:
		r.unendedSegment = true
	}
}

// generateSilence keeps the stream alive while capture is paused, first
// with silent audio so pending speech gets finalized and then with
// KeepAlive messages.
func (r *Recognizer) generateSilence(ctx context.Context, encoding audio.EncodingInfo) {
	type silenceGeneratorState string
	const (
		silenceGeneratorStateWaiting   silenceGeneratorState = "waiting"
		silenceGeneratorStateSilence   silenceGeneratorState = "silence"
		silenceGeneratorStateKeepAlive silenceGeneratorState = "keepAlive"
	)

	const durationMs = 50
	const milisecondsPerSecond = 1000
	ticker := time.NewTicker(durationMs * time.Millisecond)
	defer ticker.Stop()

	chunk := make([]byte, encoding.FrameBytes(encoding.SampleRate*durationMs/milisecondsPerSecond))
	for i := range chunk {
		chunk[i] = encoding.SilenceValue()
	}

	var state = silenceGeneratorStateWaiting
	var firstSilenceTime *time.Time
	var lastKeepAliveTime *time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idle := r.sinceLastMessage()
			switch state {
			case silenceGeneratorStateWaiting:
				if idle.Milliseconds() > durationMs {
					state = silenceGeneratorStateSilence
					firstSilenceTime = utils.Ptr(time.Now())
				}

			case silenceGeneratorStateSilence:
				if idle.Milliseconds() < durationMs {
					state = silenceGeneratorStateWaiting
					firstSilenceTime = nil
					continue
				}
				if time.Since(*firstSilenceTime).Milliseconds() >= 1000 {
					state = silenceGeneratorStateKeepAlive
					lastKeepAliveTime = utils.Ptr(time.Now())
					firstSilenceTime = nil
					continue
				}

				if err := r.sendSilence(chunk); err != nil {
					r.logger.Warn("failed to send silence", "error", err)
				}

			case silenceGeneratorStateKeepAlive:
				if idle.Milliseconds() < durationMs {
					state = silenceGeneratorStateWaiting
					continue
				}

				if time.Since(*lastKeepAliveTime).Seconds() >= 5 {
					lastKeepAliveTime = utils.Ptr(time.Now())
					r.sendKeepAlive()
				}
			}
		}
	}
}
