package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Config holds the configuration for the logger.
type Config struct {
	// Level is the minimum log level to output (DEBUG, INFO, WARN, ERROR, FATAL)
	Level string
	// Format is the output format (json, text)
	Format string
	// Output is the output destination (stdout, stderr, or file path)
	Output string
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Output: "stderr",
	}
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	format, err := parseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	output, err := getOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	return NewWithFormat(ParseLevel(cfg.Level), format, output), nil
}

// ParseLevel converts a level name to LogLevel, defaulting to InfoLevel.
func ParseLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DebugLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	case "FATAL":
		return FatalLevel
	default:
		return InfoLevel
	}
}

func parseFormat(format string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return FormatJSON, nil
	case "text", "console":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown log format %q", format)
	}
}

// getOutput returns an io.Writer for the given output destination.
func getOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	default:
		// Treat as file path
		file, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		return file, nil
	}
}
