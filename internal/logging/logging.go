package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/saltyorg/triviasearch/internal/config"
)

const (
	DefaultMaxSizeMB  = 50
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 30
	DefaultCompress   = true

	FormatConsole = "console"
	FormatJSON    = "json"
)

// Apply sets the global log level and output writers.
// Console output goes to stdout; when log.file is configured a rotating
// file writer is added alongside it.
func Apply(verbosity int, loader *config.Loader) {
	ApplyTo(os.Stdout, verbosity, loader)
}

// ApplyTo is Apply with console output sent to out. One-shot commands that
// print results on stdout log to stderr instead.
func ApplyTo(out io.Writer, verbosity int, loader *config.Loader) {
	applyLevel(verbosity)
	applyOutputs(out, loader)
}

// LevelForVerbosity maps the -v count to a zerolog level.
func LevelForVerbosity(verbosity int) zerolog.Level {
	switch {
	case verbosity <= 0:
		return zerolog.InfoLevel
	case verbosity == 1:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

func applyLevel(verbosity int) {
	zerolog.SetGlobalLevel(LevelForVerbosity(verbosity))
}

func applyOutputs(out io.Writer, loader *config.Loader) {
	format := loader.String(config.KeyLogFormat, FormatConsole)
	logFilePath := loader.String(config.KeyLogFile, "")

	console := out
	if format != FormatJSON {
		console = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02 15:04:05"}
	}
	log.Logger = zerolog.New(console).With().Timestamp().Logger()

	if logFilePath == "" {
		return
	}

	if err := ensureLogDir(logFilePath); err != nil {
		log.Error().Err(err).Str("path", logFilePath).Msg("Failed to prepare log directory; logging to console only")
		return
	}

	maxSize := DefaultMaxSizeMB
	if val := loader.Int(config.KeyLogMaxSizeMB, DefaultMaxSizeMB); val > 0 {
		maxSize = val
	}
	maxBackups := DefaultMaxBackups
	if val := loader.Int(config.KeyLogMaxBackups, DefaultMaxBackups); val >= 0 {
		maxBackups = val
	}
	maxAgeDays := DefaultMaxAgeDays
	if val := loader.Int(config.KeyLogMaxAgeDays, DefaultMaxAgeDays); val >= 0 {
		maxAgeDays = val
	}

	fileWriter := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   loader.Bool(config.KeyLogCompress, DefaultCompress),
	}

	var fileOut io.Writer = fileWriter
	if format != FormatJSON {
		fileOut = zerolog.ConsoleWriter{
			Out:        fileWriter,
			TimeFormat: "2006-01-02 15:04:05",
			NoColor:    true,
		}
	}

	multi := zerolog.MultiLevelWriter(console, fileOut)
	log.Logger = zerolog.New(multi).With().Timestamp().Logger()
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
