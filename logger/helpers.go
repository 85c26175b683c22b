package logger

import (
	"fmt"
	"runtime"
)

// log captures the caller's source location and function name, the
// same information the POSEIDON_LOG_* macros attach in the original
// implementation, then enqueues the formatted message.
func (l *Logger) log(level Level, format string, args ...any) {
	pc, file, line, ok := runtime.Caller(2)
	function := "unknown"
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			function = fn.Name()
		}
	}
	l.Enqueue(level, function, file, line, fmt.Sprintf(format, args...))
}

func (l *Logger) Trace(format string, args ...any) { l.log(Trace, format, args...) }
func (l *Logger) Debug(format string, args ...any) { l.log(Debug, format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.log(Info, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log(Warn, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.log(Error, format, args...) }
func (l *Logger) Fatal(format string, args ...any) { l.log(Fatal, format, args...) }
