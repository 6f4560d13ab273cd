package orchestration

import (
	"log/slog"

	"github.com/koscakluka/hopper/core/audio"
	"github.com/koscakluka/hopper/core/speechtotext"
	"github.com/koscakluka/hopper/core/texttospeech"
)

type OrchestratorOption func(*Orchestrator)

func WithAudioInput(input AudioInput) OrchestratorOption {
	return func(o *Orchestrator) { o.input = input }
}

func WithRecognizer(recognizer speechtotext.Recognizer) OrchestratorOption {
	return func(o *Orchestrator) { o.recognizer = recognizer }
}

func WithChatBackend(backend ChatBackend) OrchestratorOption {
	return func(o *Orchestrator) { o.backend = backend }
}

func WithSynthesizer(synthesizer texttospeech.Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) { o.synthesizer = synthesizer }
}

func WithAudioPlayer(player AudioPlayer) OrchestratorOption {
	return func(o *Orchestrator) { o.player = player }
}

func WithIndicator(indicator Indicator) OrchestratorOption {
	return func(o *Orchestrator) { o.indicator = indicator }
}

// WithNotificationClip sets the clip played after the wake phrase. It is
// scaled and resampled once, when the orchestrator is built.
func WithNotificationClip(clip audio.Clip) OrchestratorOption {
	return func(o *Orchestrator) { o.notification = &clip }
}

func WithWakePhrases(phrases ...string) OrchestratorOption {
	return func(o *Orchestrator) { o.wakePhrases = normalizePhrases(phrases) }
}

func WithClearPhrases(phrases ...string) OrchestratorOption {
	return func(o *Orchestrator) { o.clearPhrases = normalizePhrases(phrases) }
}

func WithStopPhrases(phrases ...string) OrchestratorOption {
	return func(o *Orchestrator) { o.stopPhrases = normalizePhrases(phrases) }
}

func WithHistoryCapacity(capacity int) OrchestratorOption {
	return func(o *Orchestrator) { o.historyCapacity = capacity }
}

// WithMaxReplySentences asks the model to keep replies to n sentences. Zero
// leaves replies unbounded.
func WithMaxReplySentences(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.maxReplySentences = n }
}

func WithVolume(volume float64) OrchestratorOption {
	return func(o *Orchestrator) { o.volume = volume }
}

func WithOutputSampleRate(sampleRate int) OrchestratorOption {
	return func(o *Orchestrator) { o.outputSampleRate = sampleRate }
}

// WithTextToSpeech toggles speech output. When disabled replies are still
// generated and recorded in history but nothing is rendered or played.
func WithTextToSpeech(enabled bool) OrchestratorOption {
	return func(o *Orchestrator) { o.ttsEnabled = enabled }
}

// WithSuppressEmptyFinalSentence drops the empty remainder some replies end
// with instead of forwarding it. The terminator is sent either way.
func WithSuppressEmptyFinalSentence(suppress bool) OrchestratorOption {
	return func(o *Orchestrator) { o.suppressEmptyFinalSentence = suppress }
}

// WithQueueCapacity sets the buffer of the sentence and clip queues.
func WithQueueCapacity(capacity int) OrchestratorOption {
	return func(o *Orchestrator) { o.queueCapacity = capacity }
}

func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

type OrchestrateOptions struct {
	onStateChange   func(state State)
	onTranscription func(transcript string)
	onSentence      func(sentence string)
	onSentencePlay  func(sentence string)
	onResponseEnd   func(response string)
	onError         func(err error)
}

type OrchestrateOption func(*OrchestrateOptions)

func WithStateCallback(callback func(state State)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onStateChange = callback }
}

// WithTranscriptionCallback registers a callback for every utterance heard,
// including ones that are not the wake phrase.
func WithTranscriptionCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onTranscription = callback }
}

// WithSentenceCallback registers a callback for every generated sentence,
// whether or not speech output is enabled.
func WithSentenceCallback(callback func(sentence string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onSentence = callback }
}

// WithSentencePlayedCallback registers a callback that runs on the playback
// stage after each sentence has been played.
func WithSentencePlayedCallback(callback func(sentence string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onSentencePlay = callback }
}

func WithResponseEndCallback(callback func(response string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onResponseEnd = callback }
}

// WithErrorCallback registers a callback for non-fatal errors. It may be
// called from the render and playback stages.
func WithErrorCallback(callback func(err error)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onError = callback }
}
