package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"subforge-go/internal/config"
	"subforge-go/internal/logger"
)

func TestNewRequiresGeminiKey(t *testing.T) {
	_, err := New(context.Background(), config.Default(), logger.Discard(), prometheus.NewRegistry(), Options{})
	assert.Error(t, err)
}

func TestNewReportsGlossaryErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Gemini.APIKey = "test"
	cfg.GlossaryPath = filepath.Join(t.TempDir(), "missing.xlsx")
	_, err := New(context.Background(), cfg, logger.Discard(), prometheus.NewRegistry(), Options{})
	assert.ErrorContains(t, err, "load glossary")
}
