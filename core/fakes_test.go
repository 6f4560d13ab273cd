package orchestration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/koscakluka/hopper/core/audio"
	"github.com/koscakluka/hopper/core/conversations"
	"github.com/koscakluka/hopper/core/llms"
	"github.com/koscakluka/hopper/core/texttospeech"
)

const testSampleRate = 16000

type testAudioInput struct {
	startErr error

	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	starts int
}

func (f *testAudioInput) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	if f.startErr != nil {
		return f.startErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stop != nil {
		return errors.New("capture already started")
	}
	stop, done := make(chan struct{}), make(chan struct{})
	f.stop, f.done = stop, done
	f.starts++

	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		frame := make([]byte, 320)
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				onAudio(frame)
			}
		}
	}()
	return nil
}

func (f *testAudioInput) StopCapture() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stop == nil {
		return nil
	}
	close(f.stop)
	<-f.done
	f.stop, f.done = nil, nil
	return nil
}

// testRecognizer reports an endpoint on every frame until its script runs
// out, then closes exhausted and goes quiet.
type testRecognizer struct {
	mu         sync.Mutex
	utterances []string
	next       int
	failOnce   error

	exhausted     chan struct{}
	exhaustedOnce sync.Once
}

func newTestRecognizer(utterances ...string) *testRecognizer {
	return &testRecognizer{utterances: utterances, exhausted: make(chan struct{})}
}

func (r *testRecognizer) Accept([]byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failOnce != nil {
		err := r.failOnce
		r.failOnce = nil
		return false, err
	}
	if r.next < len(r.utterances) {
		return true, nil
	}
	r.exhaustedOnce.Do(func() { close(r.exhausted) })
	return false, nil
}

func (r *testRecognizer) Result() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	text := r.utterances[r.next]
	r.next++
	return text
}

type testContentChunk struct{ content string }

func (c testContentChunk) FinishReason() *string { return nil }
func (c testContentChunk) Content() string       { return c.content }

type testStream struct {
	fragments []string
	err       error
}

func (s testStream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for _, fragment := range s.fragments {
			if !yield(testContentChunk{content: fragment}, nil) {
				return
			}
		}
		if s.err != nil {
			yield(nil, s.err)
		}
	}
}

type testChatBackend struct {
	fragments []string
	err       error

	mu       sync.Mutex
	requests [][]conversations.ChatMessage
}

func (b *testChatBackend) ChatStream(_ context.Context, messages []conversations.ChatMessage) llms.Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, messages)
	return testStream{fragments: b.fragments, err: b.err}
}

func (b *testChatBackend) Requests() [][]conversations.ChatMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests
}

// testSynthesizer answers every text with a WAV of a distinct length, so
// that played clips can be traced back to their sentence.
type testSynthesizer struct {
	t        *testing.T
	failures map[string]error

	mu           sync.Mutex
	synthesized  []string
	textByLength map[int]string
}

func newTestSynthesizer(t *testing.T) *testSynthesizer {
	return &testSynthesizer{t: t, failures: map[string]error{}, textByLength: map[int]string{}}
}

func (s *testSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.synthesized = append(s.synthesized, text)
	if err := s.failures[text]; err != nil {
		return nil, err
	}

	length := 100 + 10*len(s.synthesized)
	s.textByLength[length] = text
	return makeWAV(s.t, length), nil
}

func (s *testSynthesizer) Synthesized() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.synthesized...)
}

func (s *testSynthesizer) TextFor(clip audio.Clip) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.textByLength[len(clip.Samples)]
}

func makeWAV(t *testing.T, samples int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clip.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create wav: %v", err)
	}

	data := make([]int, samples)
	for i := range data {
		data[i] = 1000
	}
	encoder := wav.NewEncoder(file, testSampleRate, 16, 1, 1)
	if err := encoder.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: testSampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatalf("failed to encode wav: %v", err)
	}
	if err := encoder.Close(); err != nil {
		t.Fatalf("failed to close wav encoder: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("failed to close wav file: %v", err)
	}

	wavBytes, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read wav: %v", err)
	}
	return wavBytes
}

type testPlayer struct {
	delay time.Duration

	active     atomic.Int32
	overlapped atomic.Bool

	mu     sync.Mutex
	played []audio.Clip
}

func (p *testPlayer) Play(ctx context.Context, clip audio.Clip) error {
	if p.active.Add(1) > 1 {
		p.overlapped.Store(true)
	}
	defer p.active.Add(-1)

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, clip)
	return nil
}

func (p *testPlayer) Played() []audio.Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]audio.Clip(nil), p.played...)
}

type testIndicator struct {
	mu     sync.Mutex
	events []bool
}

func (i *testIndicator) SetActive(active bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.events = append(i.events, active)
}

type sentenceRecorder struct {
	mu        sync.Mutex
	sentences []Sentence
}

func (r *sentenceRecorder) Send(_ context.Context, sentence Sentence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sentences = append(r.sentences, sentence)
	return nil
}

var errTestTransport = errors.New("connection refused")

var _ texttospeech.Synthesizer = (*testSynthesizer)(nil)
