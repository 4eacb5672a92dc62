// Package log provides structured, colored logging for the color tracker.
package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// consoleTime is the timestamp layout of human-readable output.
const consoleTime = "15:04:05"

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers. They are rebuilt from Logger whenever it changes.
var (
	Proof   zerolog.Logger
	ColorDB zerolog.Logger
	Ledger  zerolog.Logger
	Wallet  zerolog.Logger
	Tracker zerolog.Logger
)

func init() {
	use(console(os.Stdout), "info")
}

// Init configures the global logger. Console output is colored unless
// jsonOutput is set. A non-empty file receives a JSON copy of every line.
func Init(level string, jsonOutput bool, file string) error {
	var out io.Writer = console(os.Stdout)
	if jsonOutput {
		out = os.Stdout
	}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		out = zerolog.MultiLevelWriter(out, f)
	}
	use(out, level)
	return nil
}

// SetOutput sends JSON lines to w. Tests use it to capture or silence logs.
func SetOutput(w io.Writer, level string) {
	use(w, level)
}

// WithComponent returns a logger with a component field.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithColor returns a logger tagged with a color ID.
func WithColor(colorID string) zerolog.Logger {
	return Logger.With().Str("color", colorID).Logger()
}

func console(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTime}
}

func use(w io.Writer, level string) {
	Logger = zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()

	Proof = WithComponent("proof")
	ColorDB = WithComponent("colordb")
	Ledger = WithComponent("ledger")
	Wallet = WithComponent("wallet")
	Tracker = WithComponent("tracker")
}

// parseLevel maps a config level name to zerolog, defaulting to info.
func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
