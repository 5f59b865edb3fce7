package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/stash/pkg/logger"
)

func TestNewWithWriter(t *testing.T) {
	t.Parallel()

	t.Run("json with cache key", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log, err := logger.NewWithWriter(&buf, logger.DefaultConfig(), logger.CacheKeyExtractor())
		require.NoError(t, err)

		ctx := logger.WithCacheKey(context.Background(), "fetch:/api/articles")
		log.InfoContext(ctx, "refreshed", slog.Int("status", 200))

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "refreshed", rec["msg"])
		assert.Equal(t, "fetch:/api/articles", rec["cache_key"])
		assert.InDelta(t, 200, rec["status"], 0)
	})

	t.Run("level filters records", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		cfg := logger.DefaultConfig()
		cfg.Level = "warn"
		log, err := logger.NewWithWriter(&buf, cfg)
		require.NoError(t, err)

		log.Info("dropped")
		assert.Zero(t, buf.Len())
		log.Warn("kept")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("text format", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		cfg := logger.DefaultConfig()
		cfg.Format = logger.FormatText
		log, err := logger.NewWithWriter(&buf, cfg)
		require.NoError(t, err)

		log.Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("invalid settings", func(t *testing.T) {
		t.Parallel()

		cfg := logger.DefaultConfig()
		cfg.Format = "xml"
		_, err := logger.NewWithWriter(&bytes.Buffer{}, cfg)
		require.ErrorIs(t, err, logger.ErrUnknownFormat)

		cfg = logger.DefaultConfig()
		cfg.Level = "loud"
		_, err = logger.NewWithWriter(&bytes.Buffer{}, cfg)
		require.ErrorIs(t, err, logger.ErrUnknownLevel)
	})
}

func TestCacheKeyExtractor_NoKey(t *testing.T) {
	t.Parallel()

	_, ok := logger.CacheKeyExtractor()(context.Background())
	assert.False(t, ok)

	_, ok = logger.CacheKeyFromContext(logger.WithCacheKey(context.Background(), ""))
	assert.False(t, ok)
}

func TestLogHandlerDecorator_SkipsNilExtractors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := logger.NewLogHandlerDecorator(slog.NewJSONHandler(&buf, nil), nil, logger.CacheKeyExtractor())
	log := slog.New(h).With(slog.String("component", "retrieve"))

	log.InfoContext(logger.WithCacheKey(context.Background(), "k"), "ok")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "retrieve", rec["component"])
	assert.Equal(t, "k", rec["cache_key"])
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := logger.ParseLevel(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
