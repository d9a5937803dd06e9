package core

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint([]byte("0:-1;1:0;2:1;e:2"))
	require.NoError(t, err)
	b, err := Fingerprint([]byte("0:-1;1:0;2:1;e:2"))
	require.NoError(t, err)
	c, err := Fingerprint([]byte("0:-1;1:0;2:0;e:2"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestTaskID(t *testing.T) {
	a := NewTaskID()
	b := NewTaskID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a.Short(), 8)
	assert.Equal(t, "abc", TaskID("abc").Short())
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, InfoLevel, level)

	level, err = ParseLogLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, DebugLevel, level)

	_, err = ParseLogLevel("chatty")
	assert.Error(t, err)
}

func TestLogOutput(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer SetLogOutput(io.Discard)

	SetLogLevel(DebugLevel)
	LogDebug("bone %d residual %.3f", 3, 0.25)
	assert.Contains(t, buf.String(), "bone 3 residual 0.250")

	buf.Reset()
	SetLogLevel(WarnLevel)
	LogInfo("hidden")
	assert.Empty(t, buf.String())
	SetLogLevel(InfoLevel)
}

func TestMetricsRollingAverage(t *testing.T) {
	before, _ := MetricsSolves()
	for i := 0; i < int(AVG_COUNT); i++ {
		ObserveSolve(0.002, 0.5)
	}
	after, residual := MetricsSolves()
	assert.Equal(t, before+int64(AVG_COUNT), after)
	assert.Equal(t, 0.5, residual)
	assert.InDelta(t, 2.0, MetricsSolveTime(), 1e-9)

	CountFit(FitAccepted)
	CountRebuild()
}

func TestClock(t *testing.T) {
	c := NewClock()
	c.Update()
	assert.Zero(t, c.Elapsed())

	c.Start()
	time.Sleep(2 * time.Millisecond)
	c.Update()
	assert.Greater(t, c.Elapsed(), 0.0)

	c.Stop()
	elapsed := c.Elapsed()
	c.Update()
	assert.Equal(t, elapsed, c.Elapsed())
}
