package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
)

func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name (any case) to its LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	for l := TRACE; l <= CRITICAL; l++ {
		if strings.EqualFold(s, l.String()) {
			return l, nil
		}
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

// sink is shared by a logger and every prefixed child derived from it.
type sink struct {
	mu       sync.Mutex
	minLevel LogLevel
	writers  []io.Writer
	file     *os.File
	now      func() time.Time
}

// Logger is a leveled printf-style logger. Safe for concurrent use.
type Logger struct {
	s      *sink
	prefix string
}

// NewLogger writes to w. A nil w discards everything.
func NewLogger(w io.Writer, minLevel LogLevel) *Logger {
	s := &sink{minLevel: minLevel, now: time.Now}
	if w != nil {
		s.writers = append(s.writers, w)
	}
	return &Logger{s: s}
}

// NewFileLogger appends to filePath and optionally mirrors to stdout.
func NewFileLogger(filePath string, minLevel LogLevel, alsoStdout bool) (*Logger, error) {
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	s := &sink{minLevel: minLevel, file: f, writers: []io.Writer{f}, now: time.Now}
	if alsoStdout {
		s.writers = append(s.writers, os.Stdout)
	}
	return &Logger{s: s}, nil
}

// WithPrefix returns a logger sharing this one's sink whose lines are tagged
// with prefix.
func (l *Logger) WithPrefix(prefix string) *Logger {
	p := prefix
	if l.prefix != "" {
		p = l.prefix + "/" + prefix
	}
	return &Logger{s: l.s, prefix: p}
}

func (l *Logger) Close() error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if l.s.file != nil {
		err := l.s.file.Close()
		l.s.file = nil
		l.s.writers = nil
		return err
	}
	return nil
}

func (l *Logger) SetMinLevel(level LogLevel) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.minLevel = level
}

// Enabled reports whether a message at level would be written.
func (l *Logger) Enabled(level LogLevel) bool {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return level >= l.s.minLevel && len(l.s.writers) > 0
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if level < s.minLevel || len(s.writers) == 0 {
		return
	}

	ts := s.now().Format(time.RFC3339Nano)
	body := fmt.Sprintf(msg, args...)
	var line string
	if l.prefix != "" {
		line = fmt.Sprintf("%s [%s] %s: %s\n", ts, level, l.prefix, body)
	} else {
		line = fmt.Sprintf("%s [%s] %s\n", ts, level, body)
	}

	for _, w := range s.writers {
		_, _ = io.WriteString(w, line)
	}
	if s.file != nil {
		_ = s.file.Sync()
	}
}

func (l *Logger) Trace(msg string, args ...any)    { l.log(TRACE, msg, args...) }
func (l *Logger) Debug(msg string, args ...any)    { l.log(DEBUG, msg, args...) }
func (l *Logger) Info(msg string, args ...any)     { l.log(INFO, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)     { l.log(WARN, msg, args...) }
func (l *Logger) Error(msg string, args ...any)    { l.log(ERROR, msg, args...) }
func (l *Logger) Critical(msg string, args ...any) { l.log(CRITICAL, msg, args...) }
