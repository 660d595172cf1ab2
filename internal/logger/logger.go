package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogConfig controls level, format and destination of the global logger
type LogConfig struct {
	Level      string `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`
	Format     string `envconfig:"LOG_FORMAT" default:"console" yaml:"format"` // console or json
	Output     string `envconfig:"LOG_OUTPUT" default:"stdout" yaml:"output"`  // stdout, stderr or file
	FilePath   string `envconfig:"LOG_FILE_PATH" default:"logs/agreegraph.log" yaml:"file_path"`
	TimeFormat string `envconfig:"LOG_TIME_FORMAT" default:"rfc3339" yaml:"time_format"`
}

// Logger is the process-wide logger. It discards everything until InitLogger runs.
var Logger = zerolog.Nop()

// InitLogger initializes the global logger with the provided configuration
func InitLogger(config LogConfig) error {
	level, err := zerolog.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		return fmt.Errorf("invalid log level '%s': %w", config.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	switch strings.ToLower(config.TimeFormat) {
	case "unix":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	case "iso8601":
		zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000Z07:00"
	default:
		zerolog.TimeFieldFormat = time.RFC3339
	}

	var output io.Writer
	switch strings.ToLower(config.Output) {
	case "stderr":
		output = os.Stderr
	case "file":
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file '%s': %w", config.FilePath, err)
		}
		output = file
	default:
		output = os.Stdout
	}

	if strings.ToLower(config.Format) == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: "15:04:05",
		}
	}

	Logger = zerolog.New(output).With().
		Timestamp().
		Caller().
		Logger()

	// Keep the zerolog global in sync for libraries that use it
	log.Logger = Logger

	Logger.Debug().
		Str("level", config.Level).
		Str("format", config.Format).
		Str("output", config.Output).
		Msg("Logger initialized")

	return nil
}

// SetLogger replaces the global logger, mainly for tests
func SetLogger(l zerolog.Logger) {
	Logger = l
	log.Logger = l
}

// Component returns a child logger tagged with the component name
func Component(name string) *zerolog.Logger {
	l := Logger.With().Str("component", name).Logger()
	return &l
}

// Agent returns a child logger tagged with a pipeline stage name
func Agent(name string) *zerolog.Logger {
	l := Logger.With().Str("agent_name", name).Logger()
	return &l
}

func Info() *zerolog.Event {
	return Logger.Info()
}

func Debug() *zerolog.Event {
	return Logger.Debug()
}

func Warn() *zerolog.Event {
	return Logger.Warn()
}

func Error() *zerolog.Event {
	return Logger.Error()
}
