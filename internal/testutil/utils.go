package testutil

import (
	"bytes"
	"log"
	"sync"
	"testing"
)

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

// TestLogger returns a logger that writes through t.Log, so output is shown
// only for failing or verbose runs.
func TestLogger(t *testing.T) *log.Logger {
	return log.New(testWriter{t: t}, "[test] ", log.LstdFlags)
}

// SyncBuffer is a bytes.Buffer safe for a logger shared between goroutines.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// BufferLogger returns a logger whose output can be inspected by the test.
func BufferLogger() (*log.Logger, *SyncBuffer) {
	buf := &SyncBuffer{}
	return log.New(buf, "[test] ", 0), buf
}
