// Package config handles recorder configuration
package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"assistant-wake-recorder/app_errors"
)

const DefaultModelID = "ctron.hey.rodney:1.0.0"

type Config struct {
	Endpoint string
	DeviceID string
	ModelID  string

	AudioDevice int // -1 selects the default input device
	SampleRate  int
	BufferSize  int // bytes per frame

	Keyphrase       string
	KeyphraseStrict bool
	DecoderOptions  string // path to a YAML options file
	NoSearch        bool
	FullUtterance   bool
	Verbose         bool

	SoundStart   string
	SoundEnd     string
	OutputDevice string
	Player       string

	MaxDuration  time.Duration
	SilenceGrace time.Duration

	UploadTimeout time.Duration
	AsyncUpload   bool
	ArchiveDir    string

	MetricsAddr string
	LogLevel    slog.Level
}

// Load reads the configuration from the environment. Missing ENDPOINT or
// DEVICE_ID is reported as a configuration error.
func Load() (*Config, error) {
	cfg := &Config{
		Endpoint:        getEnv("ENDPOINT", ""),
		DeviceID:        getEnv("DEVICE_ID", ""),
		ModelID:         getEnv("MODEL_ID", DefaultModelID),
		AudioDevice:     getEnvInt("AUDIO_DEVICE", -1),
		SampleRate:      getEnvInt("SAMPLE_RATE", 16000),
		BufferSize:      getEnvInt("BUFFER_SIZE", 2048),
		Keyphrase:       getEnv("KEYPHRASE", ""),
		KeyphraseStrict: getEnvBool("KEYPHRASE_STRICT", false),
		DecoderOptions:  getEnv("DECODER_OPTIONS", ""),
		NoSearch:        getEnvBool("NO_SEARCH", false),
		FullUtterance:   getEnvBool("FULL_UTT", false),
		Verbose:         getEnvBool("VERBOSE", false),
		SoundStart:      getEnv("SOUND_START", ""),
		SoundEnd:        getEnv("SOUND_END", ""),
		OutputDevice:    getEnv("OUTPUT_DEVICE", ""),
		Player:          getEnv("PLAYER", "paplay"),
		MaxDuration:     getEnvDuration("MAX_DURATION", 30*time.Second),
		SilenceGrace:    getEnvDuration("SILENCE_GRACE", 2*time.Second),
		UploadTimeout:   getEnvDuration("UPLOAD_TIMEOUT", 30*time.Second),
		AsyncUpload:     getEnvBool("ASYNC_UPLOAD", false),
		ArchiveDir:      getEnv("ARCHIVE_DIR", ""),
		MetricsAddr:     getEnv("METRICS_ADDR", ""),
		LogLevel:        getEnvLevel("LOG_LEVEL", slog.LevelInfo),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values and ranges, joining every failure found.
func (c *Config) Validate() error {
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("ENDPOINT is required"))
	}
	if c.DeviceID == "" {
		errs = append(errs, errors.New("DEVICE_ID is required"))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, errors.New("SAMPLE_RATE must be positive"))
	}
	if c.BufferSize <= 0 || c.BufferSize%2 != 0 {
		errs = append(errs, errors.New("BUFFER_SIZE must be a positive even number of bytes"))
	}
	if c.SilenceGrace <= 0 || c.MaxDuration <= 0 {
		errs = append(errs, errors.New("MAX_DURATION and SILENCE_GRACE must be positive"))
	}
	if len(errs) > 0 {
		return app_errors.Configuration("validate", errors.Join(errs...))
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

// getEnvDuration accepts Go durations ("2s", "500ms") or plain seconds ("30").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return def
}

func getEnvLevel(key string, def slog.Level) slog.Level {
	switch strings.ToLower(os.Getenv(key)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return def
	}
}
