package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LogConfig is the serializable form of Config, read from the service
// configuration file and the environment.
type LogConfig struct {
	Level      string          `json:"level" yaml:"level"`
	Format     string          `json:"format" yaml:"format"`
	Output     string          `json:"output" yaml:"output"`
	Components map[string]bool `json:"components,omitempty" yaml:"components,omitempty"`
	ShowCaller bool            `json:"show_caller" yaml:"show_caller"`
	Timestamp  bool            `json:"timestamp" yaml:"timestamp"`
}

// DefaultLogConfig returns default logging configuration
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:     "INFO",
		Format:    "text",
		Output:    "stdout",
		Timestamp: true,
	}
}

// ApplyEnvironment overrides c with STREAMS_LOG_* variables.
func (c *LogConfig) ApplyEnvironment() {
	if level := os.Getenv("STREAMS_LOG_LEVEL"); level != "" {
		c.Level = level
	}
	if format := os.Getenv("STREAMS_LOG_FORMAT"); format != "" {
		c.Format = format
	}
	if output := os.Getenv("STREAMS_LOG_OUTPUT"); output != "" {
		c.Output = output
	}
	if caller := os.Getenv("STREAMS_LOG_CALLER"); caller != "" {
		c.ShowCaller = caller == "true" || caller == "1"
	}
	if timestamp := os.Getenv("STREAMS_LOG_TIMESTAMP"); timestamp != "" {
		c.Timestamp = timestamp == "true" || timestamp == "1"
	}
	if components := os.Getenv("STREAMS_LOG_COMPONENTS"); components != "" {
		c.Components = make(map[string]bool)
		for _, comp := range strings.Split(components, ",") {
			comp = strings.TrimSpace(comp)
			if comp != "" {
				c.Components[comp] = true
			}
		}
	}
}

// EnvironmentConfig loads configuration from environment variables
func EnvironmentConfig() *LogConfig {
	config := DefaultLogConfig()
	config.ApplyEnvironment()
	return config
}

// ToLoggerConfig converts LogConfig to logger.Config
func (c *LogConfig) ToLoggerConfig() (*Config, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("parse level: %w", err)
	}
	format, err := parseFormat(c.Format)
	if err != nil {
		return nil, fmt.Errorf("parse format: %w", err)
	}
	output, err := parseOutput(c.Output)
	if err != nil {
		return nil, fmt.Errorf("parse output: %w", err)
	}

	var components map[Component]bool
	if len(c.Components) > 0 {
		components = make(map[Component]bool, len(c.Components))
		for name, enabled := range c.Components {
			components[Component(name)] = enabled
		}
	}

	return &Config{
		Level:      level,
		Format:     format,
		Output:     output,
		Components: components,
		ShowCaller: c.ShowCaller,
		Timestamp:  c.Timestamp,
	}, nil
}

// Validate checks every field without opening outputs.
func (c *LogConfig) Validate() error {
	if _, err := parseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid level: %w", err)
	}
	if _, err := parseFormat(c.Format); err != nil {
		return fmt.Errorf("invalid format: %w", err)
	}
	switch strings.ToLower(c.Output) {
	case "", "stdout", "stderr", "null", "none":
	default:
		if !strings.HasPrefix(c.Output, "file:") {
			return fmt.Errorf("invalid output: %s", c.Output)
		}
	}
	return nil
}

// CreateLoggerFromConfig creates a logger from LogConfig
func CreateLoggerFromConfig(config *LogConfig) (*Logger, error) {
	loggerConfig, err := config.ToLoggerConfig()
	if err != nil {
		return nil, fmt.Errorf("convert config: %w", err)
	}
	return New(loggerConfig), nil
}

func parseLevel(levelStr string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "", "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown level: %s", levelStr)
	}
}

func parseFormat(formatStr string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(formatStr)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "color", "colored":
		return FormatColor, nil
	default:
		return FormatText, fmt.Errorf("unknown format: %s", formatStr)
	}
}

func parseOutput(outputStr string) (io.Writer, error) {
	switch strings.ToLower(strings.TrimSpace(outputStr)) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "null", "none":
		return io.Discard, nil
	}
	if strings.HasPrefix(outputStr, "file:") {
		filePath := strings.TrimPrefix(outputStr, "file:")
		if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		return file, nil
	}
	return nil, fmt.Errorf("unknown output: %s", outputStr)
}
