package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the logging level
type Level int

const (
	TRACE Level = iota
	DEBUG
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	TRACE: "TRACE",
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// String returns the upper-case level name.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// MarshalJSON writes the level as its name.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// Component represents the logging component
type Component string

const (
	ComponentApp      Component = "app"
	ComponentSession  Component = "session"
	ComponentCookies  Component = "cookies"
	ComponentAgent    Component = "agent"
	ComponentFetcher  Component = "fetcher"
	ComponentPipeline Component = "pipeline"
	ComponentCipher   Component = "cipher"
	ComponentAPI      Component = "api"
	ComponentHistory  Component = "history"
	ComponentDownload Component = "download"
)

// Format represents the log output format
type Format int

const (
	FormatText Format = iota
	FormatJSON
	FormatColor
)

// Config holds logger configuration.
//
// A nil Components map enables every component. A non-nil map enables only
// the components set to true.
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	Components map[Component]bool
	ShowCaller bool
	Timestamp  bool
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:     INFO,
		Format:    FormatText,
		Output:    os.Stdout,
		Timestamp: true,
	}
}

// Entry represents a single log entry
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Component Component      `json:"component"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

// Logger provides structured logging functionality
type Logger struct {
	config *Config
	mu     sync.RWMutex
	out    sync.Mutex
}

// New creates a new logger instance
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}
	return &Logger{config: config}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	cfg := DefaultConfig()
	cfg.Output = io.Discard
	cfg.Level = ERROR + 1
	return New(cfg)
}

// WithComponent creates a new logger instance for a specific component
func (l *Logger) WithComponent(component Component) *ComponentLogger {
	return &ComponentLogger{logger: l, component: component}
}

// SetLevel changes the logging level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Level = level
}

// SetOutput changes the log output
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Output = w
}

// EnableComponent enables logging for a specific component
func (l *Logger) EnableComponent(component Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.config.Components != nil {
		l.config.Components[component] = true
	}
}

// DisableComponent disables logging for a specific component
func (l *Logger) DisableComponent(component Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.config.Components == nil {
		l.config.Components = make(map[Component]bool)
		for _, c := range AllComponents() {
			l.config.Components[c] = true
		}
	}
	l.config.Components[component] = false
}

// Enabled reports whether a message at level for component would be written.
func (l *Logger) Enabled(level Level, component Component) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabledLocked(level, component)
}

func (l *Logger) enabledLocked(level Level, component Component) bool {
	if level < l.config.Level {
		return false
	}
	if l.config.Components == nil {
		return true
	}
	return l.config.Components[component]
}

func (l *Logger) log(level Level, component Component, message string, fields map[string]any) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.enabledLocked(level, component) {
		return
	}

	entry := Entry{
		Timestamp: time.Now(),
		Level:     level,
		Component: component,
		Message:   message,
		Fields:    fields,
	}
	if l.config.ShowCaller {
		// log <- ComponentLogger.log <- ComponentLogger.Info <- caller
		if _, file, line, ok := runtime.Caller(3); ok {
			entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		}
	}

	var output string
	switch l.config.Format {
	case FormatJSON:
		output = l.formatJSON(entry)
	case FormatColor:
		output = l.formatColor(entry)
	default:
		output = l.formatText(entry)
	}

	l.out.Lock()
	fmt.Fprintln(l.config.Output, output)
	l.out.Unlock()
}

func (l *Logger) formatText(entry Entry) string {
	var parts []string
	if l.config.Timestamp {
		parts = append(parts, entry.Timestamp.Format("2006-01-02 15:04:05"))
	}
	parts = append(parts, "["+entry.Level.String()+"]", "["+string(entry.Component)+"]", entry.Message)
	if entry.Caller != "" {
		parts = append(parts, "("+entry.Caller+")")
	}
	if len(entry.Fields) > 0 {
		parts = append(parts, joinFields(entry.Fields, "%s=%v"))
	}
	return strings.Join(parts, " ")
}

func (l *Logger) formatJSON(entry Entry) string {
	data, err := json.Marshal(entry)
	if err != nil {
		// unsupported field value; keep the line, drop the fields
		entry.Fields = map[string]any{"marshal_error": err.Error()}
		data, _ = json.Marshal(entry)
	}
	return string(data)
}

func (l *Logger) formatColor(entry Entry) string {
	var parts []string
	if l.config.Timestamp {
		parts = append(parts, "\033[90m"+entry.Timestamp.Format("2006-01-02 15:04:05")+"\033[0m")
	}
	parts = append(parts,
		levelColor(entry.Level)+"["+entry.Level.String()+"]\033[0m",
		"\033[36m["+string(entry.Component)+"]\033[0m",
		entry.Message,
	)
	if entry.Caller != "" {
		parts = append(parts, "\033[90m("+entry.Caller+")\033[0m")
	}
	if len(entry.Fields) > 0 {
		parts = append(parts, joinFields(entry.Fields, "\033[33m%s\033[0m=\033[32m%v\033[0m"))
	}
	return strings.Join(parts, " ")
}

// joinFields renders fields in key order so lines are stable.
func joinFields(fields map[string]any, layout string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf(layout, k, fields[k]))
	}
	return strings.Join(out, " ")
}

func levelColor(level Level) string {
	switch level {
	case TRACE:
		return "\033[37m"
	case DEBUG:
		return "\033[94m"
	case INFO:
		return "\033[92m"
	case WARN:
		return "\033[93m"
	case ERROR:
		return "\033[91m"
	default:
		return "\033[0m"
	}
}

// ComponentLogger provides component-specific logging
type ComponentLogger struct {
	logger    *Logger
	component Component
}

// Trace logs a trace message
func (cl *ComponentLogger) Trace(message string, fields ...map[string]any) {
	cl.log(TRACE, message, fields...)
}

// Debug logs a debug message
func (cl *ComponentLogger) Debug(message string, fields ...map[string]any) {
	cl.log(DEBUG, message, fields...)
}

// Info logs an info message
func (cl *ComponentLogger) Info(message string, fields ...map[string]any) {
	cl.log(INFO, message, fields...)
}

// Warn logs a warning message
func (cl *ComponentLogger) Warn(message string, fields ...map[string]any) {
	cl.log(WARN, message, fields...)
}

// Error logs an error message
func (cl *ComponentLogger) Error(message string, fields ...map[string]any) {
	cl.log(ERROR, message, fields...)
}

func (cl *ComponentLogger) log(level Level, message string, fields ...map[string]any) {
	if cl == nil || cl.logger == nil {
		return
	}
	var merged map[string]any
	switch len(fields) {
	case 0:
	case 1:
		merged = fields[0]
	default:
		merged = make(map[string]any)
		for _, f := range fields {
			for k, v := range f {
				merged[k] = v
			}
		}
	}
	cl.logger.log(level, cl.component, message, merged)
}

// AllComponents lists every component known to the logger.
func AllComponents() []Component {
	return []Component{
		ComponentApp,
		ComponentSession,
		ComponentCookies,
		ComponentAgent,
		ComponentFetcher,
		ComponentPipeline,
		ComponentCipher,
		ComponentAPI,
		ComponentHistory,
		ComponentDownload,
	}
}

var (
	globalMu     sync.RWMutex
	globalLogger = New(DefaultConfig())
)

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// WithComponent returns a component logger from global logger
func WithComponent(component Component) *ComponentLogger {
	return GetGlobalLogger().WithComponent(component)
}

// For returns a component logger from l, falling back to the global logger when l is nil.
func For(l *Logger, component Component) *ComponentLogger {
	if l == nil {
		return WithComponent(component)
	}
	return l.WithComponent(component)
}
