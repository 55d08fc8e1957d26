package log

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

var (
	sampleHeight   = uint64(1024)
	sampleRoot     = []byte{0xca, 0xfe}
	sampleNonces   = []uint64{1, 2, 3}
	sampleDuration = 1500 * time.Millisecond

	errSample = errors.New("node unreachable")
)

func doLogs() {
	Infof("round at height %d produced root %x", sampleHeight, sampleRoot)
	Debugw("batch assembled", "kind", "update", "nonces", sampleNonces)
	Errorf("round failed: %v", errSample)
	Warnw("round skipped",
		"reason", errSample.Error(),
		"took", sampleDuration,
	)
	Error(errSample)
}

func TestErrorOutput(t *testing.T) {
	logTestWriter = io.Discard
	t.Cleanup(func() { Init(LogLevelError, "stderr", nil) })

	errOut := &bytes.Buffer{}
	Init(LogLevelDebug, logTestWriterName, errOut)
	if Level() != LogLevelDebug {
		t.Fatalf("unexpected level %q", Level())
	}
	Infow("round submitted", "height", sampleHeight)
	Warnw("round skipped", "reason", "height unchanged")
	Errorw(errSample, "round failed")

	out := errOut.String()
	if strings.Contains(out, "round submitted") {
		t.Errorf("info line written to the error output: %s", out)
	}
	if !strings.Contains(out, "round skipped") || !strings.Contains(out, "round failed") {
		t.Errorf("warn and error lines missing from the error output: %s", out)
	}
}

func TestCheckInvalidChars(t *testing.T) {
	t.Cleanup(func() { panicOnInvalidChars = false })

	v := []byte{'h', 'e', 'l', 'l', 'o', 0xff, 'w', 'o', 'r', 'l', 'd'}
	panicOnInvalidChars = false
	Init("debug", "stderr", nil)
	Debugf("%s", v)
	// should not panic since env var is false. if it panics, test will fail

	// now enable panic and try again: should recover() and never reach t.Errorf()
	panicOnInvalidChars = true
	Init("debug", "stderr", nil)
	defer func() { recover() }()
	Debugf("%s", v)
	t.Errorf("Debugf(%s) should have panicked because of invalid char", v)
}

func BenchmarkLogger(b *testing.B) {
	logTestWriter = io.Discard // to not grow a buffer
	Init("debug", logTestWriterName, nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		doLogs()
	}
}
