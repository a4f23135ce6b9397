package log

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

var (
	sampleInt      = 3
	sampleBytes    = []byte("123")
	sampleList     = []int64{10, 0, -10}
	sampleDuration = time.Second

	errSample = errors.New("some error")
)

func doLogs() {
	Infof("user tree built with %d leaves, root %x", sampleInt, sampleBytes)
	Debugw("packing votes", "entries", sampleInt, "depth", 3)
	Errorf("cannot encrypt command: %v", errSample)
	Warnw("various types",
		"list", sampleList,
		"duration", sampleDuration,
	)
	Error(errSample)
}

func TestLogLevels(t *testing.T) {
	c := qt.New(t)
	t.Cleanup(func() { Init(LogLevelError, "stderr", nil) })

	buf := &bytes.Buffer{}
	logTestWriter = buf

	Init(LogLevelWarn, logTestWriterName, nil)
	c.Assert(Level(), qt.Equals, LogLevelWarn)
	Infow("hidden message", "key", "value")
	Warnw("visible message", "userIndex", 7)
	c.Assert(buf.String(), qt.Not(qt.Contains), "hidden message")
	c.Assert(buf.String(), qt.Contains, "visible message")
	c.Assert(buf.String(), qt.Contains, "userIndex=7")

	c.Assert(ValidLevel(LogLevelDebug), qt.IsTrue)
	c.Assert(ValidLevel("trace"), qt.IsFalse)
	c.Assert(func() { Init("trace", logTestWriterName, nil) }, qt.PanicMatches, `invalid log level: "trace"`)
}

func TestErrorOutput(t *testing.T) {
	c := qt.New(t)
	t.Cleanup(func() { Init(LogLevelError, "stderr", nil) })

	logTestWriter = io.Discard
	errBuf := &bytes.Buffer{}
	Init(LogLevelDebug, logTestWriterName, errBuf)
	Debugw("debug message")
	Errorw(errSample, "error message")
	c.Assert(errBuf.String(), qt.Not(qt.Contains), "debug message")
	c.Assert(errBuf.String(), qt.Contains, "error message")
}

func TestCheckInvalidChars(t *testing.T) {
	t.Cleanup(func() {
		panicOnInvalidChars = false
		Init(LogLevelError, "stderr", nil)
	})

	v := []byte{'h', 'e', 'l', 'l', 'o', 0xff, 'w', 'o', 'r', 'l', 'd'}
	panicOnInvalidChars = false
	Init(LogLevelDebug, "stderr", nil)
	Debugf("%s", v)
	// should not panic since env var is false. if it panics, test will fail

	// now enable panic and try again: should recover() and never reach t.Errorf()
	panicOnInvalidChars = true
	Init(LogLevelDebug, "stderr", nil)
	defer func() { recover() }()
	Debugf("%s", v)
	t.Errorf("Debugf(%s) should have panicked because of invalid char", v)
}

func BenchmarkLogger(b *testing.B) {
	logTestWriter = io.Discard // to not grow a buffer
	Init(LogLevelDebug, logTestWriterName, nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		doLogs()
	}
}
