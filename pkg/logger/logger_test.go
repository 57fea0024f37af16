package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	l := newLogger()

	formatter, ok := l.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.Equal(t, time.RFC3339Nano, formatter.TimestampFormat)
	assert.True(t, formatter.FullTimestamp)
}

func TestGetLogger_FallsBackToGlobal(t *testing.T) {
	entry := G(context.Background())
	assert.Equal(t, L.Logger, entry.Logger)
}

func TestWithField(t *testing.T) {
	ctx := WithField(context.Background(), "method", "tools/call")

	entry := G(ctx)
	assert.Equal(t, "tools/call", entry.Data["method"])
}

func TestWithLogger(t *testing.T) {
	custom := logrus.NewEntry(logrus.New()).WithField("component", "test")
	ctx := WithLogger(context.Background(), custom)

	assert.Equal(t, "test", G(ctx).Data["component"])
}

func TestConfigure(t *testing.T) {
	origLevel := L.Logger.GetLevel()
	origFormatter := L.Logger.Formatter
	origOut := L.Logger.Out
	t.Cleanup(func() {
		L.Logger.SetLevel(origLevel)
		L.Logger.Formatter = origFormatter
		L.Logger.SetOutput(origOut)
	})

	require.NoError(t, Configure("debug", "json"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())

	var buf bytes.Buffer
	SetLogOutput(&buf)
	L.WithField("skill", "spring_reviewer").Info("discovered")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "discovered", decoded["message"])
	assert.Equal(t, "info", decoded["logLevel"])
	assert.Equal(t, "spring_reviewer", decoded["skill"])
	assert.Contains(t, decoded, "timestamp")
}

func TestConfigure_InvalidLevel(t *testing.T) {
	err := Configure("loud", "fmt")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}
