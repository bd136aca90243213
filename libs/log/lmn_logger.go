package log

import (
	"io"

	kitlog "github.com/go-kit/log"
	kitlevel "github.com/go-kit/log/level"
)

const (
	msgKey   = "_msg" // "_" prefixed to avoid collisions
	levelKey = "level"
)

type lmnLogger struct {
	srcLogger kitlog.Logger
}

// Interface assertions
var _ Logger = (*lmnLogger)(nil)

// NewLMNLogger returns a logger that encodes msg and keyvals to the Writer
// using go-kit's logfmt encoding. The underlying logger could be swapped
// with something else.
func NewLMNLogger(w io.Writer) Logger {
	return &lmnLogger{kitlog.NewLogfmtLogger(w)}
}

// Trace logs a message at level Trace. Rendered as a custom level key since
// go-kit has no level below Debug.
func (l *lmnLogger) Trace(msg string, keyvals ...interface{}) {
	lWithLevel := kitlog.WithPrefix(l.srcLogger, levelKey, "trace")
	if err := kitlog.With(lWithLevel, msgKey, msg).Log(keyvals...); err != nil {
		errLog := kitlevel.Error(l.srcLogger)
		kitlog.With(errLog, msgKey, msg).Log("err", err) //nolint:errcheck // no place to log the logger's own error
	}
}

// Debug logs a message at level Debug.
func (l *lmnLogger) Debug(msg string, keyvals ...interface{}) {
	lWithLevel := kitlevel.Debug(l.srcLogger)
	if err := kitlog.With(lWithLevel, msgKey, msg).Log(keyvals...); err != nil {
		errLog := kitlevel.Error(l.srcLogger)
		kitlog.With(errLog, msgKey, msg).Log("err", err) //nolint:errcheck
	}
}

// Info logs a message at level Info.
func (l *lmnLogger) Info(msg string, keyvals ...interface{}) {
	lWithLevel := kitlevel.Info(l.srcLogger)
	if err := kitlog.With(lWithLevel, msgKey, msg).Log(keyvals...); err != nil {
		errLog := kitlevel.Error(l.srcLogger)
		kitlog.With(errLog, msgKey, msg).Log("err", err) //nolint:errcheck
	}
}

// Error logs a message at level Error.
func (l *lmnLogger) Error(msg string, keyvals ...interface{}) {
	lWithLevel := kitlevel.Error(l.srcLogger)
	lWithMsg := kitlog.With(lWithLevel, msgKey, msg)
	if err := lWithMsg.Log(keyvals...); err != nil {
		lWithMsg.Log("err", err) //nolint:errcheck
	}
}

// With returns a new contextual logger with keyvals prepended to those passed
// to calls to Trace, Debug, Info or Error.
func (l *lmnLogger) With(keyvals ...interface{}) Logger {
	return &lmnLogger{kitlog.With(l.srcLogger, keyvals...)}
}
