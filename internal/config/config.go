package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration for the dialogue client.
type Config struct {
	API     APIConfig
	Audio   AudioConfig
	Session SessionConfig
	UI      UIConfig
	Log     LogConfig
	EnvFile string
}

type APIConfig struct {
	BaseURL        string
	UploadTimeout  time.Duration
	RequestTimeout time.Duration
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	ChunkInterval   time.Duration
}

type SessionConfig struct {
	MaxRecordingSeconds int
	TickInterval        time.Duration
}

type UIConfig struct {
	Locale           string
	LanguageDebounce time.Duration
}

type LogConfig struct {
	Level       string
	Development bool
}

// Load resolves configuration from an optional env file, environment
// variables and defaults. Variables already set in the environment win over
// the env file.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	envFile := strings.TrimSpace(os.Getenv("DIALOGUE_ENV_FILE"))
	if envFile == "" {
		envFile = firstExisting(
			filepath.Join(home, ".config", "dialoguerec", "config.env"),
			".env",
		)
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("failed to read %s: %w", envFile, err)
			}
			envFile = ""
		}
	}

	cfg := Config{
		API: APIConfig{
			BaseURL:        strings.TrimRight(envOrDefault("DIALOGUE_API_BASE_URL", "http://localhost:3000"), "/"),
			UploadTimeout:  time.Duration(envOrDefaultInt("DIALOGUE_UPLOAD_TIMEOUT_SECONDS", 300)) * time.Second,
			RequestTimeout: time.Duration(envOrDefaultInt("DIALOGUE_REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("DIALOGUE_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("DIALOGUE_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     envOrDefault("DIALOGUE_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:      envOrDefaultInt("DIALOGUE_SAMPLE_RATE", 48000),
			Channels:        envOrDefaultInt("DIALOGUE_CHANNELS", 1),
			ChunkInterval:   time.Duration(envOrDefaultInt("DIALOGUE_CHUNK_INTERVAL_MS", 1000)) * time.Millisecond,
		},
		Session: SessionConfig{
			MaxRecordingSeconds: envOrDefaultInt("DIALOGUE_MAX_RECORDING_SECONDS", 1800),
			TickInterval:        time.Second,
		},
		UI: UIConfig{
			Locale:           envOrDefault("DIALOGUE_LOCALE", "en"),
			LanguageDebounce: time.Duration(envOrDefaultInt("DIALOGUE_LANGUAGE_DEBOUNCE_MS", 1000)) * time.Millisecond,
		},
		Log: LogConfig{
			Level:       envOrDefault("DIALOGUE_LOG_LEVEL", "info"),
			Development: envOrDefaultBool("DIALOGUE_DEV", false),
		},
		EnvFile: envFile,
	}

	if cfg.API.UploadTimeout <= 0 {
		cfg.API.UploadTimeout = 5 * time.Minute
	}
	if cfg.API.RequestTimeout <= 0 {
		cfg.API.RequestTimeout = 30 * time.Second
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 48000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkInterval < 100*time.Millisecond {
		cfg.Audio.ChunkInterval = time.Second
	}
	if cfg.Session.MaxRecordingSeconds <= 0 {
		cfg.Session.MaxRecordingSeconds = 1800
	}
	if cfg.UI.LanguageDebounce <= 0 {
		cfg.UI.LanguageDebounce = time.Second
	}

	return cfg, nil
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
