package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug").With("runID", "r1")
	l.Info("开始", "entity", "v1", "page", 2)
	l.Err(errors.New("boom"), "失败", "facet", "reach")

	out := buf.String()
	assert.Contains(t, out, `"runID":"r1"`)
	assert.Contains(t, out, `"entity":"v1"`)
	assert.Contains(t, out, `"page":2`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"facet":"reach"`)
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn")
	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestLoggerOddKeyValues(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "info").Info("odd", "lonely")
	assert.Contains(t, buf.String(), `"lonely":"(missing)"`)
}

func TestNopDiscards(t *testing.T) {
	l := NewNop()
	l.Error("nothing")
	l.With("a", 1).Info("still nothing")
}
