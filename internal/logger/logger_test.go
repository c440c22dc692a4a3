package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithContextAddsRequestAndUser(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "debug", "json")

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	ctx = WithUserID(ctx, "user-7")

	WithContext(ctx).Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "user-7", line["user_id"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "warn", "text")

	Get().Info("dropped")
	assert.Zero(t, buf.Len())

	Get().Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}
