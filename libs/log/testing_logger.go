package log

import (
	"os"
	"testing"
)

var (
	// reuse the same logger across all tests
	_testingLogger Logger
)

// TestingLogger returns a LMNLogger which writes to STDOUT if testing being
// run with the verbose (-v) flag, NopLogger otherwise.
func TestingLogger() Logger {
	if _testingLogger != nil {
		return _testingLogger
	}

	if testing.Verbose() {
		_testingLogger = NewLMNLogger(NewSyncWriter(os.Stdout))
	} else {
		_testingLogger = NewNopLogger()
	}

	return _testingLogger
}
