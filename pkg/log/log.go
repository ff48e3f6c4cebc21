// Package log provides the process-wide structured logger used by every
// other package in this module. It follows zerolog's child-logger pattern:
// callers ask for a logger scoped to a component or container id rather
// than passing fields through every call.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the global logger instance, configured once via Init.
var Logger zerolog.Logger

// Level is a logging verbosity level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration.
type Config struct {
	Level Level
	// JSONOutput selects structured JSON records instead of the
	// human-oriented console writer.
	JSONOutput bool
	// FilePath, when set, routes output through a rotating file sink
	// instead of Output. The daemon outlives any single terminal, so size
	// based rotation keeps a long-running shim from filling the disk.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Output overrides the destination when FilePath is empty. Defaults to
	// os.Stdout.
	Output io.Writer
}

// Init initializes the global logger from cfg.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := resolveOutput(cfg)

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

func resolveOutput(cfg Config) io.Writer {
	if cfg.FilePath != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize == 0 {
			maxSize = 100
		}
		maxBackups := cfg.MaxBackups
		if maxBackups == 0 {
			maxBackups = 5
		}
		maxAge := cfg.MaxAgeDays
		if maxAge == 0 {
			maxAge = 28
		}
		return &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
		}
	}
	if cfg.Output != nil {
		return cfg.Output
	}
	return os.Stdout
}

// WithComponent scopes the logger to a subsystem name (e.g. "vm-lifecycle",
// "rpc-client").
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithContainer scopes the logger to a container id.
func WithContainer(id string) zerolog.Logger {
	return Logger.With().Str("container_id", id).Logger()
}

// WithCall scopes the logger to an RPC call's correlation id.
func WithCall(callID string) zerolog.Logger {
	return Logger.With().Str("call_id", callID).Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) { Logger.Fatal().Msg(msg) }
