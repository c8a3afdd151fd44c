package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color" // Import the fatih/color package for colored console output
)

// Colorized printing functions for the different log levels.
// They behave like fmt.Fprintf, but wrap the text in the color of the level.
var (
	infoColor  = color.New(color.FgGreen).FprintfFunc()
	warnColor  = color.New(color.FgHiMagenta).FprintfFunc()
	errorColor = color.New(color.FgRed).FprintfFunc()
	debugColor = color.New(color.FgCyan).FprintfFunc()
)

// Logger writes leveled, colored console messages.
// Info, Debug and progress marks go to the out writer; Warn and Error go to errOut
// so that remediation messages land on stderr.
type Logger struct {
	out    io.Writer
	errOut io.Writer
	debug  bool
}

// New returns a Logger bound to the given writers.
// When enableDebug is false, Debug calls are silently ignored.
func New(out, errOut io.Writer, enableDebug bool) *Logger {
	return &Logger{out: out, errOut: errOut, debug: enableDebug}
}

// Discard returns a Logger that drops everything. Handy as a default in options structs.
func Discard() *Logger {
	return New(io.Discard, io.Discard, false)
}

// Info logs informational messages in green.
func (l *Logger) Info(format string, a ...any) {
	infoColor(l.out, format, a...)
}

// Warn logs warnings in bright magenta on the error stream.
func (l *Logger) Warn(format string, a ...any) {
	warnColor(l.errOut, format, a...)
}

// Error logs errors in red on the error stream.
func (l *Logger) Error(format string, a ...any) {
	errorColor(l.errOut, format, a...)
}

// Debug logs debug messages in cyan, only when debug output is enabled.
func (l *Logger) Debug(format string, a ...any) {
	if !l.debug {
		return
	}
	debugColor(l.out, format, a...)
}

// Progress prints an uncolored mark without a trailing newline (e.g. one dot per poll).
func (l *Logger) Progress(mark string) {
	_, _ = fmt.Fprint(l.out, mark)
}

// std is the process-wide logger used by the cmd layer.
var std = New(os.Stdout, os.Stderr, false)

// Init initializes the default logger, enabling or disabling debug output.
// It is called once from the root command's PersistentPreRun.
func Init(enableDebug bool) {
	std = New(os.Stdout, os.Stderr, enableDebug)
}

// Default returns the process-wide logger configured by Init.
func Default() *Logger {
	return std
}

// Info logs through the default logger.
func Info(format string, a ...any) { std.Info(format, a...) }

// Warn logs through the default logger.
func Warn(format string, a ...any) { std.Warn(format, a...) }

// Error logs through the default logger.
func Error(format string, a ...any) { std.Error(format, a...) }

// Debug logs through the default logger.
func Debug(format string, a ...any) { std.Debug(format, a...) }
