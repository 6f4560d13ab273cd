// Command hopper is a voice assistant: it waits for a wake phrase, sends the
// following question to an Ollama server and speaks the reply.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/koscakluka/hopper/core"
	"github.com/koscakluka/hopper/core/audio"
	"github.com/koscakluka/hopper/core/audio/miniaudio"
	"github.com/koscakluka/hopper/core/audio/portaudio"
	"github.com/koscakluka/hopper/core/llms/ollama"
	"github.com/koscakluka/hopper/core/llms/openai"
	"github.com/koscakluka/hopper/core/speechtotext/deepgram"
	"github.com/koscakluka/hopper/core/texttospeech"
	deepgramtts "github.com/koscakluka/hopper/core/texttospeech/deepgram"
	"github.com/koscakluka/hopper/core/texttospeech/piper"
	"github.com/koscakluka/hopper/internal/config"
	"github.com/koscakluka/hopper/internal/logging"
)

const tuiLogPath = "hopper.log"

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML configuration file")
	useTUI := flag.Bool("tui", false, "show the interactive console instead of plain logs")
	printSchema := flag.Bool("print-schema", false, "print the configuration JSON schema and exit")
	flag.Parse()

	if *printSchema {
		schema, err := config.Schema()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Stdout.Write(schema)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(cfg, *useTUI))
}

// audioDevice is a capture and playback pair that can be released.
type audioDevice interface {
	orchestration.AudioInput
	orchestration.AudioPlayer
	CaptureEncodingInfo() audio.EncodingInfo
	Close()
}

func run(cfg config.Config, useTUI bool) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logOutput io.Writer = os.Stderr
	if useTUI {
		logFile, err := tea.LogToFile(tuiLogPath, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			return 1
		}
		defer logFile.Close()
		logOutput = logFile
	}
	logger := logging.New(logOutput, cfg.Debug)
	slog.SetDefault(logger)

	if !useTUI {
		fmt.Println(banner(cfg))
	}

	device, err := openAudio(cfg)
	if err != nil {
		logger.Error("audio device unavailable", "error", err)
		return 1
	}
	defer device.Close()

	recognizer, err := deepgram.NewRecognizer(ctx, device.CaptureEncodingInfo(),
		deepgram.WithModel(cfg.Deepgram.Model),
		deepgram.WithLanguage(cfg.Deepgram.Language),
		deepgram.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to start speech recognition", "error", err)
		return 1
	}
	defer recognizer.Close()

	backend, err := newChatBackend(cfg)
	if err != nil {
		logger.Error("failed to set up the chat backend", "error", err)
		return 1
	}

	opts := []orchestration.OrchestratorOption{
		orchestration.WithLogger(logger),
		orchestration.WithAudioInput(device),
		orchestration.WithAudioPlayer(device),
		orchestration.WithRecognizer(recognizer),
		orchestration.WithChatBackend(backend),
		orchestration.WithWakePhrases(cfg.Phrases.Wake...),
		orchestration.WithClearPhrases(cfg.Phrases.Clear...),
		orchestration.WithStopPhrases(cfg.Phrases.Stop...),
		orchestration.WithHistoryCapacity(cfg.Chat.HistoryCapacity),
		orchestration.WithMaxReplySentences(cfg.Chat.MaxReplySentences),
		orchestration.WithSuppressEmptyFinalSentence(cfg.Chat.SuppressEmptyFinalSentence),
		orchestration.WithQueueCapacity(cfg.Chat.QueueCapacity),
		orchestration.WithVolume(cfg.Audio.Volume),
		orchestration.WithOutputSampleRate(cfg.Audio.OutputSampleRate),
		orchestration.WithTextToSpeech(cfg.TTS.Enabled),
	}

	if cfg.TTS.Enabled {
		synthesizer, err := newSynthesizer(cfg)
		if err != nil {
			logger.Error("failed to set up speech synthesis", "error", err)
			return 1
		}
		opts = append(opts, orchestration.WithSynthesizer(synthesizer))
	}

	if cfg.Audio.NotificationPath != "" {
		clip, err := audio.LoadWAV(cfg.Audio.NotificationPath)
		if err != nil {
			logger.Warn("notification sound disabled", "path", cfg.Audio.NotificationPath, "error", err)
		} else {
			opts = append(opts, orchestration.WithNotificationClip(clip))
		}
	}

	orchestrator := orchestration.NewOrchestrator(opts...)

	if useTUI {
		err = runTUI(ctx, stop, orchestrator, cfg)
	} else {
		err = orchestrator.Orchestrate(ctx)
	}

	switch {
	case errors.Is(err, orchestration.ErrDeviceUnavailable):
		return 1
	case err != nil:
		logger.Error("hopper stopped", "error", err)
		return 1
	}
	logger.Info("hopper stopped")
	return 0
}

func openAudio(cfg config.Config) (audioDevice, error) {
	switch cfg.Audio.Backend {
	case config.AudioBackendPortaudio:
		if cfg.Audio.CaptureDevice >= 0 || cfg.Audio.PlaybackDevice >= 0 {
			slog.Warn("portaudio uses the default devices, device indexes are ignored")
		}
		return portaudio.NewClient(cfg.Audio.BufferSize,
			portaudio.WithCaptureSampleRate(cfg.Audio.CaptureSampleRate),
			portaudio.WithPlaybackSampleRate(cfg.Audio.OutputSampleRate),
			portaudio.WithLogger(slog.Default()),
		)
	default:
		return miniaudio.NewClient(
			miniaudio.WithCaptureSampleRate(cfg.Audio.CaptureSampleRate),
			miniaudio.WithPlaybackSampleRate(cfg.Audio.OutputSampleRate),
			miniaudio.WithCaptureDevice(cfg.Audio.CaptureDevice),
			miniaudio.WithPlaybackDevice(cfg.Audio.PlaybackDevice),
			miniaudio.WithBackendLog(func(message string) { slog.Debug("miniaudio", "message", message) }),
		)
	}
}

func newChatBackend(cfg config.Config) (orchestration.ChatBackend, error) {
	switch cfg.Chat.Backend {
	case config.ChatBackendOpenAI:
		return openai.NewClient(
			openai.WithModel(cfg.OpenAI.Model),
			openai.WithInstructions(cfg.OpenAI.Instructions),
		)
	default:
		return ollama.NewClient(cfg.OllamaURL(), cfg.Ollama.Model), nil
	}
}

func newSynthesizer(cfg config.Config) (texttospeech.Synthesizer, error) {
	switch cfg.TTS.Backend {
	case config.TTSBackendDeepgram:
		return deepgramtts.NewTextToSpeechClient(cfg.TTS.Voice,
			deepgramtts.WithSampleRate(cfg.Audio.OutputSampleRate))
	default:
		return piper.NewClient(cfg.PiperURL()), nil
	}
}
