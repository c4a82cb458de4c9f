package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Log struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type Gemini struct {
	APIKey            string `toml:"api_key"`
	Model             string `toml:"model"`
	ProofreadModel    string `toml:"proofread_model"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

type Whisper struct {
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	Model             string `toml:"model"`
	Language          string `toml:"language"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

type Generation struct {
	ChunkSeconds       float64 `toml:"chunk_seconds"`
	Concurrency        int     `toml:"concurrency"`
	TranslateBatchSize int     `toml:"translate_batch_size"`
}

type Regeneration struct {
	BatchSize            int `toml:"batch_size"`
	Concurrency          int `toml:"concurrency"`
	ProofreadConcurrency int `toml:"proofread_concurrency"`
}

type Retry struct {
	MaxRetries  int `toml:"max_retries"`
	BaseDelayMS int `toml:"base_delay_ms"`
	MaxJitterMS int `toml:"max_jitter_ms"`
}

type Continuation struct {
	MaxAttempts int `toml:"max_attempts"`
}

type Server struct {
	Port string `toml:"port"`
	// MediaRoot confines media_path in API requests. Empty allows any path readable by the server.
	MediaRoot string `toml:"media_root"`
}

// Config is built once at startup and passed explicitly to every component.
type Config struct {
	Environment           string       `toml:"environment"`
	TargetLanguage        string       `toml:"target_language"`
	GlossaryPath          string       `toml:"glossary_path"`
	FFmpegPath            string       `toml:"ffmpeg_path"`
	RequestTimeoutSeconds int          `toml:"request_timeout_seconds"`
	Log                   Log          `toml:"log"`
	Gemini                Gemini       `toml:"gemini"`
	Whisper               Whisper      `toml:"whisper"`
	Generation            Generation   `toml:"generation"`
	Regeneration          Regeneration `toml:"regeneration"`
	Retry                 Retry        `toml:"retry"`
	Continuation          Continuation `toml:"continuation"`
	Server                Server       `toml:"server"`
}

func Default() *Config {
	return &Config{
		Environment:    "local",
		TargetLanguage: "Simplified Chinese",
		FFmpegPath:     "ffmpeg",
		Log:            Log{Level: "info"},
		Gemini: Gemini{
			Model:          "gemini-2.5-flash",
			ProofreadModel: "gemini-2.5-pro",
		},
		Whisper: Whisper{
			Model:    "whisper-1",
			Language: "auto",
		},
		Generation: Generation{
			ChunkSeconds:       300,
			Concurrency:        5,
			TranslateBatchSize: 20,
		},
		Regeneration: Regeneration{
			BatchSize:            20,
			Concurrency:          5,
			ProofreadConcurrency: 2,
		},
		Retry: Retry{
			MaxRetries:  3,
			BaseDelayMS: 1000,
			MaxJitterMS: 1000,
		},
		Continuation: Continuation{MaxAttempts: 3},
		Server:       Server{Port: "8080"},
	}
}

// Load reads defaults, then the optional TOML file at path, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("ENVIRONMENT", &c.Environment)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)
	str("TARGET_LANGUAGE", &c.TargetLanguage)
	str("GLOSSARY_PATH", &c.GlossaryPath)
	str("FFMPEG_PATH", &c.FFmpegPath)
	str("GEMINI_API_KEY", &c.Gemini.APIKey)
	str("GEMINI_MODEL", &c.Gemini.Model)
	str("GEMINI_PROOFREAD_MODEL", &c.Gemini.ProofreadModel)
	num("GEMINI_RPM", &c.Gemini.RequestsPerMinute)
	str("OPENAI_API_KEY", &c.Whisper.APIKey)
	str("WHISPER_BASE_URL", &c.Whisper.BaseURL)
	str("WHISPER_MODEL", &c.Whisper.Model)
	str("WHISPER_LANGUAGE", &c.Whisper.Language)
	num("WHISPER_RPM", &c.Whisper.RequestsPerMinute)
	num("GENERATION_CONCURRENCY", &c.Generation.Concurrency)
	num("REGENERATION_BATCH_SIZE", &c.Regeneration.BatchSize)
	num("REQUEST_TIMEOUT_SECONDS", &c.RequestTimeoutSeconds)
	str("PORT", &c.Server.Port)
	str("MEDIA_ROOT", &c.Server.MediaRoot)
	if v := strings.TrimSpace(getenv("CHUNK_SECONDS")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("CHUNK_SECONDS: %w", err))
		} else {
			c.Generation.ChunkSeconds = f
		}
	}
	return errors.Join(errs...)
}

// Validate checks sizes and limits. API keys are checked when adapters are built.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	if c.Generation.ChunkSeconds <= 0 {
		errs = append(errs, fmt.Errorf("generation.chunk_seconds must be positive, got %v", c.Generation.ChunkSeconds))
	}
	positive("generation.concurrency", c.Generation.Concurrency)
	positive("generation.translate_batch_size", c.Generation.TranslateBatchSize)
	positive("regeneration.batch_size", c.Regeneration.BatchSize)
	positive("regeneration.concurrency", c.Regeneration.Concurrency)
	positive("regeneration.proofread_concurrency", c.Regeneration.ProofreadConcurrency)
	positive("continuation.max_attempts", c.Continuation.MaxAttempts)
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry.max_retries must not be negative"))
	}
	if c.Retry.BaseDelayMS < 0 || c.Retry.MaxJitterMS < 0 {
		errs = append(errs, fmt.Errorf("retry delays must not be negative"))
	}
	return errors.Join(errs...)
}

func (r Retry) BaseDelay() time.Duration { return time.Duration(r.BaseDelayMS) * time.Millisecond }
func (r Retry) MaxJitter() time.Duration { return time.Duration(r.MaxJitterMS) * time.Millisecond }

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
