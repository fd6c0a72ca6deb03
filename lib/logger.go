package lib

import (
	"sync"
	"testing"
)

// Logger receives debugging traces
type Logger interface {
	Print(a ...any)
	Println(a ...any)
	Printf(format string, a ...any)
}

// OrNoLog returns a logger discarding everything when logger is nil
func OrNoLog(logger Logger) Logger {
	if logger == nil {
		return &NoLog{}
	}
	return logger
}

type NoLog struct{}

func (l *NoLog) Print(a ...any)                 {}
func (l *NoLog) Println(a ...any)               {}
func (l *NoLog) Printf(format string, a ...any) {}

// TestLogger sends traces to the test output.
// It stops logging once the test is over, as workers can still be draining.
type TestLogger struct {
	t      *testing.T
	prefix string
	mu     sync.Mutex
	done   bool
}

func NewTestLogger(t *testing.T, prefix string) *TestLogger {
	logger := &TestLogger{
		t:      t,
		prefix: prefix,
	}
	t.Cleanup(func() {
		logger.mu.Lock()
		defer logger.mu.Unlock()
		logger.done = true
	})
	return logger
}

func (l *TestLogger) Print(a ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return
	}
	if l.prefix == "" {
		l.t.Log(a...)
	} else {
		l.t.Log(append([]any{l.prefix + ":"}, a...)...)
	}
}

func (l *TestLogger) Println(a ...any) {
	l.Print(a...)
}

func (l *TestLogger) Printf(format string, a ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return
	}
	if l.prefix != "" {
		format = l.prefix + ": " + format
	}
	l.t.Logf(format, a...)
}
