package core

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/cockroachdb/errors"
)

// Assert reports a broken engine invariant. The failure is logged with the
// caller's location and then raised as a panic carrying an assertion failure,
// which errors.IsAssertionFailure recognises.
func Assert(condition bool, msg string, args ...interface{}) {
	if condition {
		return
	}
	fail(2, msg, args...)
}

// AssertNoError is Assert for calls whose only failure mode is an error return.
func AssertNoError(err error, msg string, args ...interface{}) {
	if err == nil {
		return
	}
	fail(2, "%s: %v", fmt.Sprintf(msg, args...), err)
}

func fail(skip int, msg string, args ...interface{}) {
	message := fmt.Sprintf(msg, args...)
	file, line, function := "unknown", 0, "unknown"
	if pc, f, l, ok := runtime.Caller(skip); ok {
		file, line = filepath.Base(f), l
		if fn := runtime.FuncForPC(pc); fn != nil {
			function = fn.Name()
		}
	}
	LogError("assertion failed: %s (%s:%d %s)", message, file, line, function)
	panic(errors.AssertionFailedf("%s", message))
}
