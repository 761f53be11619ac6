package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestSetup_AddsServiceAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("giftcard", "1.2.3", "json", slog.LevelInfo, &buf)

	ctx := WithRequestID(context.Background(), "req-42")
	logger.InfoContext(ctx, "hello", "k", "v")

	m := decode(t, &buf)
	assert.Equal(t, "hello", m["msg"])
	assert.Equal(t, "giftcard", m["service"])
	assert.Equal(t, "1.2.3", m["version"])
	assert.Equal(t, "req-42", m["request_id"])
	assert.Equal(t, "v", m["k"])
}

func TestSetup_OmitsEmptyRequestID(t *testing.T) {
	var buf bytes.Buffer
	Setup("giftcard", "dev", "json", slog.LevelInfo, &buf).Info("no request")

	m := decode(t, &buf)
	_, ok := m["request_id"]
	assert.False(t, ok)
}

func TestSetup_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("giftcard", "dev", "text", slog.LevelWarn, &buf)

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.With("a", 1).WithGroup("g").Warn("kept", "b", 2)
	out := buf.String()
	assert.True(t, strings.Contains(out, "msg=kept"), out)
	assert.True(t, strings.Contains(out, "service=giftcard"), out)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		" warn": slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLogError_OopsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("giftcard", "dev", "json", slog.LevelInfo, &buf)

	err := oops.Code("AUTH_FAILED").With("site", "everyday").Wrap(errors.New("no result page"))
	LogError(context.Background(), logger, "login failed", err, "session_id", "abc")

	m := decode(t, &buf)
	assert.Equal(t, "ERROR", m["level"])
	assert.Equal(t, "AUTH_FAILED", m["code"])
	assert.Equal(t, "abc", m["session_id"])
	ctx, ok := m["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "everyday", ctx["site"])
}

func TestLogError_PlainError(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("giftcard", "dev", "json", slog.LevelInfo, &buf)

	LogError(context.Background(), logger, "boom", errors.New("plain"))

	m := decode(t, &buf)
	assert.Equal(t, "plain", m["error"])
	_, ok := m["code"]
	assert.False(t, ok)
}
