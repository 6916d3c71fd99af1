package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

// Manager owns the process logger and its sinks: console, a per-session log
// file, and an optional Graylog GELF stream.
type Manager struct {
	Logger zerolog.Logger

	file    *os.File
	graylog *gelf.Writer
}

// NewManager creates an unconfigured manager logging to stdout only.
func NewManager() *Manager {
	return &Manager{
		Logger: zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger(),
	}
}

// ParseLevel converts a string log level to zerolog.Level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "TRACE":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// Setup initializes logging with the given level, a log file under logsDir,
// and an optional GELF sink. An unreachable Graylog endpoint downgrades to
// console and file rather than failing startup.
func (m *Manager) Setup(level, logsDir, graylogAddr string) error {
	zerolog.SetGlobalLevel(ParseLevel(level))
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	writers := []io.Writer{
		// console format with colors to console
		zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		},
	}

	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0o755); err != nil {
			return err
		}
		file, err := os.OpenFile(
			LogFilePath(logsDir, "linkcore", time.Now().UTC()),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		m.file = file
		// console format without colors to file
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        file,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		})
	}

	if graylogAddr != "" {
		gw, err := gelf.NewWriter(graylogAddr)
		if err != nil {
			m.Logger.Warn().Err(err).Str("address", graylogAddr).Msg("Graylog unreachable, continuing without it")
		} else {
			m.graylog = gw
			writers = append(writers, gw)
		}
	}

	m.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	m.Logger.Info().Str("loglevel", zerolog.GlobalLevel().String()).Msg("Logging set up")
	return nil
}

// Close releases the file and GELF sinks.
func (m *Manager) Close() error {
	var firstErr error
	if m.graylog != nil {
		if err := m.graylog.Close(); err != nil {
			firstErr = err
		}
		m.graylog = nil
	}
	if m.file != nil {
		if err := m.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.file = nil
	}
	return firstErr
}

// RemoveOldLogs deletes .log files in path older than daysDelta days.
func (m *Manager) RemoveOldLogs(path string, daysDelta int) {
	files, err := os.ReadDir(path)
	if err != nil {
		m.Logger.Warn().Err(err).Msg("Failed to read logs dir")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -daysDelta)
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".log") {
			continue
		}
		info, err := f.Info()
		if err != nil {
			m.Logger.Warn().Err(err).Msg("Failed to get file info")
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path + "/" + f.Name()); err != nil {
				m.Logger.Warn().Err(err).Str("file", f.Name()).Msg("Failed to remove old log")
			}
		}
	}
}
