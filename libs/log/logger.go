package log

import (
	"io"

	kitlog "github.com/go-kit/log"
)

// Logger is the interface all our logging wrappers satisfy. Trace is a level
// below Debug for very chatty protocol branches (stale responses, retries).
type Logger interface {
	Trace(msg string, keyvals ...interface{})
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})

	With(keyvals ...interface{}) Logger
}

// NewSyncWriter returns a writer that is safe for concurrent use by multiple
// goroutines.
func NewSyncWriter(w io.Writer) io.Writer {
	return kitlog.NewSyncWriter(w)
}
