package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is a wrapper around zerolog.Logger
type Logger struct {
	logger zerolog.Logger
}

// Config holds logging configuration
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	Output     string // stdout, stderr, file path
	TimeFormat string
}

// NewLogger creates a new logger with the given configuration and
// installs it as the zerolog global.
func NewLogger(cfg Config) (*Logger, error) {
	output, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	if cfg.Format == "console" {
		timeFormat := cfg.TimeFormat
		if timeFormat == "" {
			timeFormat = time.RFC3339
		}
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: timeFormat}
	}

	logger := zerolog.New(output).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()

	log.Logger = logger
	return &Logger{logger: logger}, nil
}

// NewCLILogger logs to stderr in console format. The terminal belongs to
// the progress line, so only warnings show unless verbose is set.
func NewCLILogger(verbose bool) (*Logger, error) {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return NewLogger(Config{Level: level, Format: "console", Output: "stderr", TimeFormat: time.Kitchen})
}

// New wraps an existing writer; used by tests to capture output.
func New(w io.Writer, level zerolog.Level) *Logger {
	return &Logger{logger: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "stdout":
		return os.Stdout, nil
	case "stderr", "":
		return os.Stderr, nil
	default:
		// Anything else is a file path
		return os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	}
}

func parseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func (l *Logger) with(fn func(zerolog.Context) zerolog.Context) *Logger {
	return &Logger{logger: fn(l.logger.With()).Logger()}
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Interface(key, value) })
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Fields(fields) })
}

// WithError adds an error to the logger
func (l *Logger) WithError(err error) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Err(err) })
}

// WithRequestID tags an HTTP request
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Str("request_id", requestID) })
}

// WithJobID tags a download job
func (l *Logger) WithJobID(jobID string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Str("job_id", jobID) })
}

// WithSessionID tags an analyze/download session
func (l *Logger) WithSessionID(sessionID string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Str("session_id", sessionID) })
}

// WithTool tags the external binary involved
func (l *Logger) WithTool(tool string) *Logger {
	return l.with(func(c zerolog.Context) zerolog.Context { return c.Str("tool", tool) })
}

func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.logger.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.logger.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.logger.Error().Msg(msg) }

// Fatal logs and exits the process.
func (l *Logger) Fatal(msg string) { l.logger.Fatal().Msg(msg) }

// LogHTTPRequest logs one control API request
func (l *Logger) LogHTTPRequest(method, path, clientIP string, statusCode int, duration time.Duration) {
	evt := l.logger.Info()
	if statusCode >= 500 {
		evt = l.logger.Error()
	}
	evt.
		Str("method", method).
		Str("path", path).
		Str("client_ip", clientIP).
		Int("status_code", statusCode).
		Dur("duration_ms", duration).
		Msg("HTTP request")
}

// LogJobEvent logs a download lifecycle transition
func (l *Logger) LogJobEvent(jobID, event, status string, details map[string]interface{}) {
	l.logger.Info().
		Str("job_id", jobID).
		Str("event", event).
		Str("status", status).
		Fields(details).
		Msg("Job event")
}

// LogDownloadProgress logs a progress sample at debug level
func (l *Logger) LogDownloadProgress(jobID string, phaseIndex int, fraction float64, speed string) {
	l.logger.Debug().
		Str("job_id", jobID).
		Int("phase_index", phaseIndex).
		Float64("progress", fraction).
		Str("speed", speed).
		Msg("Download progress")
}

// LogToolInvocation logs a yt-dlp or ffmpeg run; failures at warn
func (l *Logger) LogToolInvocation(tool string, args []string, exitCode int, duration time.Duration, err error) {
	evt := l.logger.Debug()
	if err != nil {
		evt = l.logger.Warn().Err(err)
	}
	evt.
		Str("tool", tool).
		Strs("args", args).
		Int("exit_code", exitCode).
		Dur("duration_ms", duration).
		Msg("Tool invocation")
}

// LogStorageOperation logs an archive upload, list or presign
func (l *Logger) LogStorageOperation(operation, bucket, key string, size int64, duration time.Duration, err error) {
	evt := l.logger.Info()
	if err != nil {
		evt = l.logger.Error().Err(err)
	}
	evt.
		Str("operation", operation).
		Str("bucket", bucket).
		Str("key", key).
		Int64("size_bytes", size).
		Dur("duration_ms", duration).
		Msg("Storage operation")
}
