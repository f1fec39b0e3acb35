package console

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcx/hopnet/log"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := log.DefaultLogger()
	buf := &bytes.Buffer{}
	l := log.NewLogger(&log.LogCfg{LogLevel: "debug"})
	l.AddAppender(log.NewWriterAppender(buf))
	log.SetDefaultLogger(l)
	t.Cleanup(func() { log.SetDefaultLogger(prev) })
	return buf
}

func TestStopCommand(t *testing.T) {
	buf := captureLog(t)
	stopped := 0
	c := New(func() { stopped++ })

	require.NoError(t, c.Execute("/stop"))
	assert.Equal(t, 1, stopped)
	assert.Contains(t, buf.String(), "stopping server")
}

func TestPlainLinesAreLogged(t *testing.T) {
	buf := captureLog(t)
	stopped := false
	c := New(func() { stopped = true })

	require.NoError(t, c.Execute("hello there"))
	require.NoError(t, c.Execute("   "))
	assert.False(t, stopped)
	assert.Contains(t, buf.String(), "hello there")
}

func TestUnknownCommand(t *testing.T) {
	buf := captureLog(t)
	c := New(func() { t.Fatal("stop must not run") })

	assert.Error(t, c.Execute("/reboot"))
	assert.Error(t, c.Execute("/stop now"))
	assert.Contains(t, buf.String(), "console command failed")
}

func TestRunReadsUntilEOF(t *testing.T) {
	captureLog(t)
	stopped := 0
	c := New(func() { stopped++ })

	require.NoError(t, c.Run(strings.NewReader("hi\n/stop\n\n/help\n")))
	assert.Equal(t, 1, stopped)
}
