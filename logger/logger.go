// Package logger implements Poseidon's asynchronous logger (spec §4.1).
//
// enqueue() appends a record to a channel and returns immediately; one
// dedicated goroutine (pinned to its own OS thread the same way the
// teacher pins worker goroutines, see affinity.Pin) drains it, formats
// each record, and writes it to the sinks configured for its level.
// Record layout and the escape table are taken verbatim from
// original_source/poseidon/static/async_logger.cpp.
package logger

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lhmouse/poseidon/config"
)

// Level is one of the six fixed severities.
type Level int

const (
	Trace Level = iota
	Debug
	Info
	Warn
	Error
	Fatal
	numLevels
)

func (l Level) String() string {
	switch l {
	case Trace:
		return "trace"
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

func (l Level) tag() string {
	return "[" + strings.ToUpper(l.String()) + "]"
}

// backlogDropThreshold is the queue depth above which `trivial`-marked
// records are dropped instead of written (spec §4.1).
const backlogDropThreshold = 1024

// sinkConfig is the per-level sink configuration loaded from
// logger.<level>.{color,stdio,file,trivial}.
type sinkConfig struct {
	color   string
	stdio   *os.File
	file    *os.File
	trivial bool
}

// record is one queued log entry.
type record struct {
	level    Level
	file     string
	line     int
	function string
	thread   [16]byte // fixed inline buffer, avoids a heap alloc per record
	lwpid    int
	message  string
	flush    chan struct{} // non-nil for a synchronize() barrier token
}

// Logger is an async, bounded-latency logging sink with six fixed
// levels and per-level sink configuration.
type Logger struct {
	queue    chan record
	sinks    [numLevels]atomic.Pointer[sinkConfig]
	pending  atomic.Int64
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Logger with an unconfigured sink set (everything
// drops until Reload is called) and starts its drain goroutine.
func New() *Logger {
	l := &Logger{
		queue: make(chan record, 4096),
		done:  make(chan struct{}),
	}
	for lv := range l.sinks {
		l.sinks[lv].Store(&sinkConfig{})
	}
	go l.run()
	return l
}

// Reload rebuilds the per-level sink configuration from the six level
// keys under logger.<level>.* (spec §4.1, §6).
func (l *Logger) Reload(store *config.Store) error {
	for lv := Trace; lv < numLevels; lv++ {
		name := lv.String()
		sc := &sinkConfig{
			color:   store.String("", "logger", name, "color"),
			trivial: store.Bool(false, "logger", name, "trivial"),
		}
		switch store.String("", "logger", name, "stdio") {
		case "stdout":
			sc.stdio = os.Stdout
		case "stderr":
			sc.stdio = os.Stderr
		}
		if path := store.String("", "logger", name, "file"); path != "" {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("logger: open %s for level %s: %w", path, name, err)
			}
			sc.file = f
		}
		l.sinks[lv].Store(sc)
	}
	return nil
}

// Enqueue appends a record and returns immediately. For Error and
// Fatal it also blocks until Synchronize completes, matching spec
// §4.1 ("synchronize() ... is called on fatal/error records").
func (l *Logger) Enqueue(level Level, function, file string, line int, message string) {
	if level < Trace || level >= numLevels {
		return
	}

	sc := l.sinks[level].Load()
	backlog := l.pending.Load()
	if sc.trivial && backlog > backlogDropThreshold {
		return
	}

	r := record{
		level:    level,
		file:     file,
		line:     line,
		function: function,
		lwpid:    syscallTID(),
		message:  message,
	}
	copy(r.thread[:], currentThreadName())

	l.pending.Add(1)
	select {
	case l.queue <- r:
	case <-l.done:
		return
	}

	if level == Error || level == Fatal {
		l.Synchronize()
	}
}

// Synchronize blocks until every record enqueued so far has been
// written to its sinks.
func (l *Logger) Synchronize() {
	done := make(chan struct{})
	select {
	case l.queue <- record{flush: done}:
	case <-l.done:
		return
	}
	<-done
}

// Close stops the drain goroutine after flushing pending records.
func (l *Logger) Close() {
	l.stopOnce.Do(func() {
		l.Synchronize()
		close(l.done)
	})
}

func (l *Logger) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case r := <-l.queue:
			if r.flush != nil {
				close(r.flush)
				continue
			}
			l.write(r)
			l.pending.Add(-1)
		case <-l.done:
			// Drain whatever is left without blocking further.
			for {
				select {
				case r := <-l.queue:
					if r.flush != nil {
						close(r.flush)
						continue
					}
					l.write(r)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) write(r record) {
	defer func() {
		// A sink write must never take the logger thread down; swallow
		// and report to stderr once, per spec §4.1 "Failure".
		if rec := recover(); rec != nil {
			fmt.Fprintf(os.Stderr, "logger: sink panic: %v\n", rec)
		}
	}()

	line := formatRecord(r)
	sc := l.sinks[r.level].Load()

	if sc.stdio != nil {
		if sc.color != "" {
			fmt.Fprintf(sc.stdio, "\x1b[%sm%s\x1b[0m\n", sc.color, line)
		} else {
			fmt.Fprintln(sc.stdio, line)
		}
	}
	if sc.file != nil {
		if _, err := fmt.Fprintln(sc.file, line); err != nil {
			fmt.Fprintf(os.Stderr, "logger: write to file sink failed: %v\n", err)
		}
	}
}

func formatRecord(r record) string {
	now := time.Now()
	ts := now.Format("2006-01-02 15:04:05.000000000 -0700")

	var b strings.Builder
	b.WriteString(ts)
	b.WriteByte(' ')
	b.WriteString(r.level.tag())
	b.WriteString(" THREAD ")
	b.WriteString(fmt.Sprintf("%d", r.lwpid))
	b.WriteString(" \"")
	b.WriteString(strings.TrimRight(string(r.thread[:]), "\x00"))
	b.WriteString("\" FUNCTION `")
	b.WriteString(r.function)
	b.WriteString("` SOURCE '")
	b.WriteString(r.file)
	b.WriteByte(':')
	fmt.Fprintf(&b, "%d", r.line)
	b.WriteString("' ")
	b.WriteString(escapeMessage(r.message))
	return strings.TrimRight(b.String(), " \t")
}

// escapeMessage hex-escapes non-printable bytes. Tab and newline are
// preserved but wrapped in NEL+HT so a multi-line message stays
// indentable when viewed in a terminal that renders NEL, matching
// async_logger.cpp's escape table.
func escapeMessage(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\t' || c == '\n':
			b.WriteString("\x1bE\t")
			b.WriteByte(c)
		case c < 0x20 || c == 0x7f:
			fmt.Fprintf(&b, "\\x%02X", c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
