// Package config loads the hopper configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "hopper.yaml"

// DeepgramSampleRates are the linear16 rates Deepgram accepts for both
// streaming recognition and speech synthesis.
var DeepgramSampleRates = []int{8000, 16000, 24000, 32000, 48000}

const (
	AudioBackendMiniaudio = "miniaudio"
	AudioBackendPortaudio = "portaudio"

	ChatBackendOllama = "ollama"
	ChatBackendOpenAI = "openai"

	TTSBackendPiper    = "piper"
	TTSBackendDeepgram = "deepgram"
)

type Config struct {
	Debug bool `yaml:"debug" jsonschema:"description=Log at debug level"`

	Audio    Audio    `yaml:"audio"`
	Phrases  Phrases  `yaml:"phrases"`
	Chat     Chat     `yaml:"chat"`
	Server   Server   `yaml:"server"`
	Ollama   Ollama   `yaml:"ollama"`
	OpenAI   OpenAI   `yaml:"openai"`
	Deepgram Deepgram `yaml:"deepgram"`
	TTS      TTS      `yaml:"tts"`
}

type Audio struct {
	Backend           string  `yaml:"backend" jsonschema:"enum=miniaudio,enum=portaudio,default=miniaudio"`
	CaptureDevice     int     `yaml:"capture_device" jsonschema:"description=Capture device index (-1 for the system default)"`
	PlaybackDevice    int     `yaml:"playback_device" jsonschema:"description=Playback device index (-1 for the system default)"`
	CaptureSampleRate int     `yaml:"capture_sample_rate" jsonschema:"enum=8000,enum=16000,enum=24000,enum=32000,enum=48000,default=16000"`
	OutputSampleRate  int     `yaml:"output_sample_rate" jsonschema:"minimum=1,default=48000"`
	BufferSize        int     `yaml:"buffer_size" jsonschema:"minimum=1,description=Frames per PortAudio buffer"`
	Volume            float64 `yaml:"volume" jsonschema:"minimum=0,default=1"`
	NotificationPath  string  `yaml:"notification_path" jsonschema:"description=WAV played after the wake phrase; empty disables it"`
}

type Phrases struct {
	Wake  []string `yaml:"wake" jsonschema:"minItems=1"`
	Clear []string `yaml:"clear"`
	Stop  []string `yaml:"stop"`
}

type Chat struct {
	Backend                    string `yaml:"backend" jsonschema:"enum=ollama,enum=openai,default=ollama"`
	HistoryCapacity            int    `yaml:"history_capacity" jsonschema:"minimum=1,default=20"`
	MaxReplySentences          int    `yaml:"max_reply_sentences" jsonschema:"minimum=0,description=0 leaves replies unlimited"`
	SuppressEmptyFinalSentence bool   `yaml:"suppress_empty_final_sentence"`
	QueueCapacity              int    `yaml:"queue_capacity" jsonschema:"minimum=1,default=16"`
}

type Server struct {
	IP string `yaml:"ip" jsonschema:"description=Host running the generation and synthesis servers"`
}

type Ollama struct {
	Port  int    `yaml:"port" jsonschema:"minimum=1,maximum=65535,default=10802"`
	Model string `yaml:"model" jsonschema:"default=llama3:8b"`
}

// OpenAI reads its API key from OPENAI_API_KEY.
type OpenAI struct {
	Model        string `yaml:"model" jsonschema:"default=gpt-4"`
	Instructions string `yaml:"instructions" jsonschema:"description=Developer message sent before the history"`
}

type Deepgram struct {
	Model    string `yaml:"model" jsonschema:"default=nova-3"`
	Language string `yaml:"language" jsonschema:"default=en-US"`
}

type TTS struct {
	Enabled   bool   `yaml:"enabled" jsonschema:"default=true"`
	Backend   string `yaml:"backend" jsonschema:"enum=piper,enum=deepgram,default=piper"`
	PiperPort int    `yaml:"piper_port" jsonschema:"minimum=1,maximum=65535,default=10803"`
	Voice     string `yaml:"voice" jsonschema:"description=Deepgram Aura voice"`
}

func Default() Config {
	return Config{
		Audio: Audio{
			Backend:           AudioBackendMiniaudio,
			CaptureDevice:     -1,
			PlaybackDevice:    -1,
			CaptureSampleRate: 16000,
			OutputSampleRate:  48000,
			BufferSize:        1600,
			Volume:            1.0,
			NotificationPath:  "./sounds/cowbell.wav",
		},
		Phrases: Phrases{
			Wake:  []string{"hey hopper"},
			Clear: []string{"clear chat history"},
			Stop:  []string{"nevermind"},
		},
		Chat: Chat{
			Backend:         ChatBackendOllama,
			HistoryCapacity: 20,
			QueueCapacity:   16,
		},
		Server: Server{IP: "127.0.0.1"},
		Ollama: Ollama{Port: 10802, Model: "llama3:8b"},
		OpenAI: OpenAI{Model: "gpt-4"},
		Deepgram: Deepgram{
			Model:    "nova-3",
			Language: "en-US",
		},
		TTS: TTS{
			Enabled:   true,
			Backend:   TTSBackendPiper,
			PiperPort: 10803,
			Voice:     "aura-2-thalia-en",
		},
	}
}

// Load reads the configuration file at path on top of the defaults, then
// applies .env and environment overrides. A missing file at DefaultPath is
// not an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		if err := Decode(file, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
	default:
		return Config{}, fmt.Errorf("failed to open config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.normalize()

	return cfg, cfg.Validate()
}

// Decode reads YAML into cfg. Keys that are absent keep their current value.
func Decode(r io.Reader, cfg *Config) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	if ip, ok := os.LookupEnv("HOPPER_SERVER_IP"); ok && ip != "" {
		c.Server.IP = ip
	}
	if model, ok := os.LookupEnv("HOPPER_OLLAMA_MODEL"); ok && model != "" {
		c.Ollama.Model = model
	}
	if debug, ok := os.LookupEnv("HOPPER_DEBUG"); ok && debug != "" {
		value, err := strconv.ParseBool(debug)
		if err != nil {
			return fmt.Errorf("invalid HOPPER_DEBUG: %w", err)
		}
		c.Debug = value
	}
	return nil
}

func (c *Config) normalize() {
	c.Phrases.Wake = NormalizePhrases(c.Phrases.Wake)
	c.Phrases.Clear = NormalizePhrases(c.Phrases.Clear)
	c.Phrases.Stop = NormalizePhrases(c.Phrases.Stop)
	c.Chat.Backend = strings.ToLower(strings.TrimSpace(c.Chat.Backend))
	c.Audio.Backend = strings.ToLower(strings.TrimSpace(c.Audio.Backend))
	c.TTS.Backend = strings.ToLower(strings.TrimSpace(c.TTS.Backend))
}

// NormalizePhrases trims, unquotes and lowercases every phrase and drops the
// empty ones.
func NormalizePhrases(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, phrase := range phrases {
		phrase = strings.TrimSpace(phrase)
		phrase = strings.Trim(phrase, `"'`)
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase != "" {
			out = append(out, phrase)
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	if c.Chat.HistoryCapacity < 1 {
		errs = append(errs, fmt.Errorf("chat.history_capacity must be at least 1, got %d", c.Chat.HistoryCapacity))
	}
	if c.Chat.MaxReplySentences < 0 {
		errs = append(errs, fmt.Errorf("chat.max_reply_sentences must not be negative, got %d", c.Chat.MaxReplySentences))
	}
	if c.Chat.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("chat.queue_capacity must be at least 1, got %d", c.Chat.QueueCapacity))
	}
	if c.Audio.Volume < 0 {
		errs = append(errs, fmt.Errorf("audio.volume must not be negative, got %v", c.Audio.Volume))
	}
	if c.Audio.OutputSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate must be positive, got %d", c.Audio.OutputSampleRate))
	}
	if !slices.Contains(DeepgramSampleRates, c.Audio.CaptureSampleRate) {
		errs = append(errs, fmt.Errorf("audio.capture_sample_rate must be one of %v for deepgram recognition, got %d",
			DeepgramSampleRates, c.Audio.CaptureSampleRate))
	}
	if c.Audio.Backend == AudioBackendPortaudio && c.Audio.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.buffer_size must be positive, got %d", c.Audio.BufferSize))
	}
	if !slices.Contains([]string{AudioBackendMiniaudio, AudioBackendPortaudio}, c.Audio.Backend) {
		errs = append(errs, fmt.Errorf("unknown audio.backend %q", c.Audio.Backend))
	}
	if len(c.Phrases.Wake) == 0 {
		errs = append(errs, errors.New("phrases.wake needs at least one phrase"))
	}
	if c.Server.IP == "" {
		errs = append(errs, errors.New("server.ip is required"))
	}
	switch c.Chat.Backend {
	case ChatBackendOllama:
		if c.Ollama.Model == "" {
			errs = append(errs, errors.New("ollama.model is required"))
		}
	case ChatBackendOpenAI:
		if c.OpenAI.Model == "" {
			errs = append(errs, errors.New("openai.model is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown chat.backend %q", c.Chat.Backend))
	}
	if c.TTS.Enabled && !slices.Contains([]string{TTSBackendPiper, TTSBackendDeepgram}, c.TTS.Backend) {
		errs = append(errs, fmt.Errorf("unknown tts.backend %q", c.TTS.Backend))
	}
	if c.TTS.Enabled && c.TTS.Backend == TTSBackendDeepgram && !slices.Contains(DeepgramSampleRates, c.Audio.OutputSampleRate) {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate must be one of %v for deepgram speech, got %d",
			DeepgramSampleRates, c.Audio.OutputSampleRate))
	}
	return errors.Join(errs...)
}

func (c Config) OllamaURL() string {
	return "http://" + net.JoinHostPort(c.Server.IP, strconv.Itoa(c.Ollama.Port))
}

func (c Config) PiperURL() string {
	return "http://" + net.JoinHostPort(c.Server.IP, strconv.Itoa(c.TTS.PiperPort))
}

// Schema returns the JSON schema of the configuration file.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
		FieldNameTag:              "yaml",
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&Config{})
	schema.Title = "hopper configuration"

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(schema); err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	return buf.Bytes(), nil
}
