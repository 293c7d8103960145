package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magnusmanske/mixnmatch-go/internal/config"
)

func TestBuildLoggerDefaultsToJSON(t *testing.T) {
	logger := buildLogger(config.LogConfig{Level: "info", Format: "json"})
	assert.NotNil(t, logger)
	_, ok := logger.Handler().(*slog.JSONHandler)
	assert.True(t, ok)
}

func TestBuildLoggerTextFormat(t *testing.T) {
	logger := buildLogger(config.LogConfig{Level: "debug", Format: "text"})
	_, ok := logger.Handler().(*slog.TextHandler)
	assert.True(t, ok)
}

func TestBuildLoggerInvalidLevelFallsBackToInfo(t *testing.T) {
	logger := buildLogger(config.LogConfig{Level: "not-a-level", Format: "json"})
	ctx := context.Background()
	assert.True(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.False(t, logger.Enabled(ctx, slog.LevelDebug))
}

func TestVersionCommandRuns(t *testing.T) {
	rootCmd.SetArgs([]string{"version"})
	err := rootCmd.Execute()
	assert.NoError(t, err)
}
