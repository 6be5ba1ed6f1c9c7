package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "therapy-api", "production", "info")

	logger.Info().Str("booking_id", "b-1").Msg("booking created")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "therapy-api", line["service"])
	assert.Equal(t, "b-1", line["booking_id"])
	assert.Equal(t, "booking created", line["message"])
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "svc", "production", "warn")

	logger.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).With().Str("request_id", "req-42").Logger()

	ctx := WithContext(context.Background(), logger)
	FromContext(ctx).Info().Msg("hello")
	assert.Contains(t, buf.String(), "req-42")

	assert.NotNil(t, FromContext(context.Background()))
}
