package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// serviceName tags every log record so fanned-out streams from several
// processes can be told apart.
const serviceName = "slackvault"

// SetupLogger builds the process logger: human-readable text on stderr at
// the configured level, plus a JSON stream appended to logFile at debug
// level so a failed ingestion run can be reconstructed after the fact.
// Components attach job_id and duration_ms attrs themselves. An empty
// logFile means stderr only. The returned cleanup closes the log file.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}
	cleanup := func() error { return nil }

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			slog.Warn("log file unavailable, continuing on stderr only", "file", logFile, "error", err)
		} else {
			// The file stream stays at debug regardless of the stderr
			// level; it exists for post-mortems, not for reading live.
			handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
			cleanup = file.Close
		}
	}

	logger := slog.New(slogmulti.Fanout(handlers...)).With("service", serviceName)
	return logger, cleanup
}

// NewLoggerWithWriters builds the same fanout over caller-supplied writers
// (tests).
func NewLoggerWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}),
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)).With("service", serviceName)
}
