package testutil

import (
	"bytes"
	"log"
	"os"
	"testing"
)

func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[dmrelay-test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

// CaptureLogger returns a logger that writes into the returned buffer, for
// tests that assert on log output.
func CaptureLogger(t *testing.T) (*log.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := TestLogger(t)
	logger.SetOutput(buf)
	return logger, buf
}
