package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/hopper/core/audio"
	"github.com/koscakluka/hopper/core/conversations"
	"github.com/koscakluka/hopper/core/sentences"
	"github.com/koscakluka/hopper/core/speechtotext"
	"github.com/koscakluka/hopper/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const clearConfirmation = "OK. My chat history is cleared."

type Orchestrator struct {
	input       AudioInput
	recognizer  speechtotext.Recognizer
	backend     ChatBackend
	synthesizer texttospeech.Synthesizer
	player      AudioPlayer
	indicator   Indicator

	notification *audio.Clip

	wakePhrases  []string
	clearPhrases []string
	stopPhrases  []string

	historyCapacity            int
	maxReplySentences          int
	volume                     float64
	outputSampleRate           int
	ttsEnabled                 bool
	suppressEmptyFinalSentence bool
	queueCapacity              int

	logger  *slog.Logger
	history *conversations.History
	state   atomic.Value
	running atomic.Bool

	gate       *RecognitionGate
	generation *GenerationClient
	sequencer  *PlaybackSequencer
	pipeline   *speechPipeline

	orchestrateOptions OrchestrateOptions
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		wakePhrases:      []string{"hey hopper"},
		clearPhrases:     []string{"clear chat history"},
		stopPhrases:      []string{"nevermind"},
		historyCapacity:  20,
		volume:           1.0,
		outputSampleRate: audio.DefaultOutputSampleRate,
		ttsEnabled:       true,
		queueCapacity:    16,
		logger:           logger,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.history = conversations.NewHistory(o.historyCapacity)
	o.state.Store(StateWaitingWake)

	if o.notification != nil {
		clip, err := o.notification.Prepare(o.volume, o.outputSampleRate)
		if err != nil {
			o.logger.Warn("notification clip disabled", "error", err)
			o.notification = nil
		} else {
			o.notification = &clip
		}
	}

	return o
}

// History is the conversation window used for generation requests.
func (o *Orchestrator) History() *conversations.History { return o.history }

func (o *Orchestrator) State() State { return o.state.Load().(State) }

// Orchestrate runs the wake, listen and respond loop until ctx is done or an
// audio device becomes unavailable. Every other error is reported and the
// loop goes back to waiting for the wake phrase.
//
// Orchestrate may only run once at a time.
func (o *Orchestrator) Orchestrate(ctx context.Context, opts ...OrchestrateOption) error {
	if !o.running.CompareAndSwap(false, true) {
		return errors.New("orchestrator is already running")
	}
	defer o.running.Store(false)

	if err := o.validate(); err != nil {
		return err
	}

	o.orchestrateOptions = OrchestrateOptions{}
	for _, opt := range opts {
		opt(&o.orchestrateOptions)
	}

	o.gate = NewRecognitionGate(o.input, o.recognizer, o.logger)
	o.generation = NewGenerationClient(o.backend, o.suppressEmptyFinalSentence, o.logger)
	o.sequencer = NewPlaybackSequencer(o.player, o.indicator)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if o.ttsEnabled {
		o.pipeline = newSpeechPipeline(
			NewSpeechRenderer(o.synthesizer, o.volume, o.outputSampleRate),
			o.sequencer,
			o.queueCapacity,
			o.logger,
		)
		o.pipeline.onError = o.notifyError
		if o.orchestrateOptions.onSentencePlay != nil {
			o.pipeline.onPlayed = o.orchestrateOptions.onSentencePlay
		}
		o.pipeline.start(ctx)
		defer func() {
			cancel()
			if err := o.pipeline.close(); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Warn("speech pipeline stopped with error", "error", err)
			}
			o.pipeline = nil
		}()
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := o.runTurn(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrDeviceUnavailable) || errors.Is(err, errPipelineStopped) {
				o.reportError(err)
				return err
			}
			o.reportError(err)
		}
	}
}

func (o *Orchestrator) validate() error {
	var errs []error
	if o.input == nil {
		errs = append(errs, errors.New("audio input not configured"))
	}
	if o.recognizer == nil {
		errs = append(errs, errors.New("recognizer not configured"))
	}
	if o.backend == nil {
		errs = append(errs, errors.New("chat backend not configured"))
	}
	if o.player == nil && (o.ttsEnabled || o.notification != nil) {
		errs = append(errs, errors.New("audio player not configured"))
	}
	if o.ttsEnabled && o.synthesizer == nil {
		errs = append(errs, errors.New("synthesizer not configured"))
	}
	return errors.Join(errs...)
}

// runTurn walks the states once, from waiting for the wake phrase back to
// waiting for it.
func (o *Orchestrator) runTurn(ctx context.Context) error {
	o.setState(StateWaitingWake)
	wake, err := o.gate.NextUtterance(ctx)
	if err != nil {
		return err
	}
	o.heard(wake.Text)
	if !o.matches(o.wakePhrases, wake.Text) {
		return nil
	}
	o.logger.Info("wake phrase detected", "text", wake.Text)
	turnStart := time.Now()

	o.setState(StateNotifying)
	if o.notification != nil {
		if err := o.sequencer.Play(ctx, *o.notification); err != nil {
			o.reportError(fmt.Errorf("failed to play notification: %w", err))
		}
	}

	o.setState(StateListeningQuery)
	query, err := o.gate.NextUtterance(ctx)
	if err != nil {
		return err
	}
	o.heard(query.Text)

	switch {
	case query.Text == "":
		o.logger.Info("no query heard")
		return nil

	case o.matches(o.clearPhrases, query.Text):
		o.setState(StateAction)
		o.history.Clear()
		o.logger.Info("chat history cleared")
		return o.speak(ctx, clearConfirmation)

	case o.matches(o.stopPhrases, query.Text):
		o.setState(StateAction)
		o.logger.Info("query dismissed", "text", query.Text)
		return nil
	}

	o.setState(StateGenerating)
	turnID := uuid.New()
	var sink SentenceSink = SentenceSinkFunc(func(context.Context, Sentence) error { return nil })
	var gate *completionGate
	if o.pipeline != nil {
		gate = o.pipeline.beginTurn(turnID)
		sink = o.pipeline
	}

	reply, genErr := o.generation.Respond(ctx, turnID, o.withReplyCap(query.Text), o.history, o.observe(sink))
	if genErr != nil {
		// Sentences already queued are still played.
		o.reportError(genErr)
	}

	o.setState(StatePlaying)
	if gate != nil {
		if err := o.pipeline.awaitTurn(ctx, gate); err != nil {
			o.pipeline.abandonTurn(turnID)
			return err
		}
	}

	elapsed := time.Since(turnStart).Seconds()
	turnDuration.Record(ctx, elapsed, metricAttributes(genErr))
	o.logger.Debug("turn finished", "turn_id", turnID, "seconds", elapsed)
	if genErr == nil && o.orchestrateOptions.onResponseEnd != nil {
		o.orchestrateOptions.onResponseEnd(reply)
	}
	return nil
}

// speak plays a fixed message through the render and playback stages and
// waits for it to finish.
func (o *Orchestrator) speak(ctx context.Context, text string) error {
	if o.pipeline == nil {
		return nil
	}

	turnID := uuid.New()
	gate := o.pipeline.beginTurn(turnID)
	send := func(sentence Sentence) error {
		if err := o.pipeline.Send(ctx, sentence); err != nil {
			o.pipeline.abandonTurn(turnID)
			return err
		}
		return nil
	}
	for _, sentence := range sentences.Split(text) {
		if err := send(Sentence{TurnID: turnID, Text: sentence}); err != nil {
			return err
		}
	}
	if err := send(Sentence{TurnID: turnID, End: true}); err != nil {
		return err
	}

	return o.pipeline.awaitTurn(ctx, gate)
}

func (o *Orchestrator) withReplyCap(text string) string {
	if o.maxReplySentences <= 0 {
		return text
	}
	return fmt.Sprintf("%s. Your response must be %d sentences or fewer.", text, o.maxReplySentences)
}

func (o *Orchestrator) observe(sink SentenceSink) SentenceSink {
	onSentence := o.orchestrateOptions.onSentence
	if onSentence == nil {
		return sink
	}
	return SentenceSinkFunc(func(ctx context.Context, sentence Sentence) error {
		if !sentence.End && sentence.Text != "" {
			onSentence(sentence.Text)
		}
		return sink.Send(ctx, sentence)
	})
}

func (o *Orchestrator) matches(phrases []string, text string) bool {
	return slices.Contains(phrases, normalizePhrase(text))
}

func (o *Orchestrator) heard(text string) {
	if text != "" {
		o.logger.Info("heard", "text", text)
	}
	if o.orchestrateOptions.onTranscription != nil {
		o.orchestrateOptions.onTranscription(text)
	}
}

func (o *Orchestrator) setState(state State) {
	if previous := o.state.Swap(state); previous == state {
		return
	}
	o.logger.Debug("state changed", "state", state)
	if o.orchestrateOptions.onStateChange != nil {
		o.orchestrateOptions.onStateChange(state)
	}
}

func (o *Orchestrator) reportError(err error) {
	switch {
	case errors.Is(err, ErrDeviceUnavailable):
		o.logger.Error("audio device unavailable", "error", err)
	case errors.Is(err, ErrRecognitionStream):
		o.logger.Warn("recognition failed, listening again", "error", err)
	case errors.Is(err, ErrBackendTransport):
		o.logger.Error("backend call failed, turn abandoned", "error", err)
	case errors.Is(err, texttospeech.ErrSynthesisFailure):
		o.logger.Warn("sentence skipped", "error", err)
	default:
		o.logger.Error("turn failed", "error", err)
	}
	o.notifyError(err)
}

func (o *Orchestrator) notifyError(err error) {
	if o.orchestrateOptions.onError != nil {
		o.orchestrateOptions.onError(err)
	}
}

func metricAttributes(err error) metric.RecordOption {
	return metric.WithAttributes(attribute.Bool("failed", err != nil))
}
