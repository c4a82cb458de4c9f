package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"subforge-go/internal/audio"
	"subforge-go/internal/config"
	"subforge-go/internal/gemini"
	"subforge-go/internal/glossary"
	"subforge-go/internal/metrics"
	"subforge-go/internal/processor"
	"subforge-go/internal/transcription"
)

// App bundles the wired processor and the media decoder shared by both binaries.
type App struct {
	Processor *processor.Processor
	Decoder   *audio.Decoder
	Metrics   *metrics.Metrics

	gem *gemini.Client
}

// Options toggles the adapters a caller needs. Regeneration alone does not need speech-to-text.
type Options struct {
	Speech bool
}

func New(ctx context.Context, cfg *config.Config, log *logrus.Entry, reg prometheus.Registerer, opts Options) (*App, error) {
	m := metrics.New(reg)

	var terms glossary.Glossary
	if cfg.GlossaryPath != "" {
		g, err := glossary.Load(cfg.GlossaryPath)
		if err != nil {
			return nil, fmt.Errorf("load glossary: %w", err)
		}
		terms = g
		log.WithFields(logrus.Fields{"path": cfg.GlossaryPath, "terms": len(terms)}).Info("glossary loaded")
	}

	gem, err := gemini.New(ctx, gemini.Options{
		APIKey:            cfg.Gemini.APIKey,
		Model:             cfg.Gemini.Model,
		RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
		Timeout:           cfg.RequestTimeout(),
		Log:               log.WithField("component", "gemini"),
	})
	if err != nil {
		return nil, err
	}

	deps := processor.Deps{
		Generator:      gem,
		ModelTransient: gemini.IsTransient,
		Glossary:       terms,
		Log:            log.WithField("component", "processor"),
		Metrics:        m,
	}
	if opts.Speech {
		stt, err := transcription.New(transcription.Options{
			APIKey:            cfg.Whisper.APIKey,
			BaseURL:           cfg.Whisper.BaseURL,
			Model:             cfg.Whisper.Model,
			Language:          cfg.Whisper.Language,
			RequestsPerMinute: cfg.Whisper.RequestsPerMinute,
			Timeout:           cfg.RequestTimeout(),
			Log:               log.WithField("component", "whisper"),
		})
		if err != nil {
			_ = gem.Close()
			return nil, err
		}
		deps.Transcriber = stt
		deps.SpeechTransient = transcription.IsTransient
	}

	return &App{
		Processor: processor.New(cfg, deps),
		Decoder:   audio.NewDecoder(cfg.FFmpegPath, log.WithField("component", "audio")),
		Metrics:   m,
		gem:       gem,
	}, nil
}

// Decode loads media for a run; an empty path yields no audio.
func (a *App) Decode(ctx context.Context, path string) (audio.Source, error) {
	if path == "" {
		return nil, nil
	}
	buf, err := a.Decoder.Decode(ctx, path)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (a *App) Close() error { return a.gem.Close() }
