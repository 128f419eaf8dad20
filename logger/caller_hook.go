package logger

import (
	"reflect"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// callerHook replaces the caller logrus records, which is always one of the
// wrappers in this package, with the first frame that called into them.
type callerHook struct {
	pkg string
}

func newCallerHook() *callerHook {
	return &callerHook{pkg: reflect.TypeOf(callerHook{}).PkgPath() + "."}
}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// wrapper reports whether fn is logrus itself or one of the Log, Entry or
// Log* helpers exported here.
func (h *callerHook) wrapper(fn string) bool {
	if strings.HasPrefix(fn, "github.com/sirupsen/logrus.") {
		return true
	}
	rest, ok := strings.CutPrefix(fn, h.pkg)
	if !ok {
		return false
	}
	return strings.HasPrefix(rest, "(*Entry).") ||
		strings.HasPrefix(rest, "(*Log).") ||
		strings.HasPrefix(rest, "(*callerHook).") ||
		strings.HasPrefix(rest, "Log")
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !h.wrapper(frame.Function) {
			entry.Caller = &frame
			return nil
		}
		if !more {
			return nil
		}
	}
}
