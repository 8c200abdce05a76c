package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Logger provides structured logging with redaction support
type Logger struct {
	debug   bool
	noColor bool

	mu   sync.Mutex
	out  io.Writer
	sink io.Writer // plain-text copy of every line, typically a log file
}

// New creates a new logger instance writing to stderr
func New(debug, noColor bool) *Logger {
	return NewWithWriter(os.Stderr, debug, noColor)
}

// NewWithWriter creates a logger that writes to w instead of stderr
func NewWithWriter(w io.Writer, debug, noColor bool) *Logger {
	return &Logger{
		debug:   debug,
		noColor: noColor,
		out:     w,
	}
}

// SetSink mirrors every subsequent line, uncoloured, to w.
// Passing nil removes the sink.
func (l *Logger) SetSink(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = w
}

// DebugEnabled reports whether debug messages are emitted
func (l *Logger) DebugEnabled() bool {
	return l.debug
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.emit("\033[32m✓\033[0m ", "✓ ", format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.emit("\033[33m⚠\033[0m ", "⚠ ", format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.emit("\033[31m✗\033[0m ", "✗ ", format, args...)
}

// Debug logs a debug message if debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.emit("\033[36m[DEBUG]\033[0m ", "[DEBUG] ", format, args...)
}

// Plain logs a message without any level marker. Used for indented detail
// lines under a step.
func (l *Logger) Plain(format string, args ...interface{}) {
	l.emit("", "", format, args...)
}

// Section prints a banner separating the stages of a run
func (l *Logger) Section(title string) {
	rule := strings.Repeat("=", 80)
	l.emit("", "", "%s", "")
	l.emit("", "", "%s", rule)
	if !l.noColor {
		l.emit("", "", "\033[1m%s\033[0m", title)
	} else {
		l.emit("", "", "%s", title)
	}
	l.emit("", "", "%s", rule)
}

func (l *Logger) emit(colorPrefix, plainPrefix, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.noColor {
		fmt.Fprintf(l.out, "%s%s\n", colorPrefix, msg)
	} else {
		fmt.Fprintf(l.out, "%s%s\n", plainPrefix, msg)
	}
	if l.sink != nil {
		fmt.Fprintf(l.sink, "%s%s\n", plainPrefix, stripANSI(msg))
	}
}

func stripANSI(s string) string {
	if !strings.Contains(s, "\033[") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\033' && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && s[j] != 'm' {
				j++
			}
			i = j
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Secret represents a value that should be redacted in logs
type Secret string

// String implements the Stringer interface, always returning a redacted value
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements the GoStringer interface for %#v formatting
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// Redact replaces sensitive values in a string with [REDACTED]
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if secret != "" && len(secret) > 3 { // Only redact non-trivial secrets
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}

// MaskKey shows only the first and last four characters of an API key.
// Keys of eight characters or fewer are fully masked.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
