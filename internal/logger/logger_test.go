package logger

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T, mutate func(*Config)) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	config := DefaultConfig()
	config.Output = &buf
	if mutate != nil {
		mutate(config)
	}
	return New(config), &buf
}

func TestLogger_Levels(t *testing.T) {
	logger, buf := newBufferLogger(t, func(c *Config) { c.Level = INFO })
	compLogger := logger.WithComponent(ComponentApp)

	compLogger.Debug("This should not appear")
	compLogger.Info("This should appear")
	compLogger.Warn("This should appear")
	compLogger.Error("This should appear")

	output := buf.String()
	if strings.Contains(output, "This should not appear") {
		t.Error("DEBUG message should be filtered out")
	}
	if strings.Count(output, "This should appear") != 3 {
		t.Errorf("INFO/WARN/ERROR messages should appear, got %q", output)
	}
}

func TestLogger_NilComponentsEnablesAll(t *testing.T) {
	logger, buf := newBufferLogger(t, nil)

	for _, c := range AllComponents() {
		logger.WithComponent(c).Info("hello from " + string(c))
	}

	for _, c := range AllComponents() {
		if !strings.Contains(buf.String(), "hello from "+string(c)) {
			t.Errorf("component %s should be enabled by default", c)
		}
	}
}

func TestLogger_Components(t *testing.T) {
	logger, buf := newBufferLogger(t, func(c *Config) {
		c.Components = map[Component]bool{ComponentApp: true, ComponentCipher: false}
	})

	logger.WithComponent(ComponentApp).Info("App message")
	logger.WithComponent(ComponentCipher).Info("Cipher message")
	logger.WithComponent(ComponentSession).Info("Session message")

	output := buf.String()
	if !strings.Contains(output, "App message") {
		t.Error("App message should appear")
	}
	if strings.Contains(output, "Cipher message") {
		t.Error("Cipher message should be filtered out")
	}
	if strings.Contains(output, "Session message") {
		t.Error("components missing from an explicit map should be filtered out")
	}
}

func TestLogger_DisableComponentFromDefault(t *testing.T) {
	logger, buf := newBufferLogger(t, nil)
	logger.DisableComponent(ComponentAPI)

	logger.WithComponent(ComponentAPI).Info("api line")
	logger.WithComponent(ComponentSession).Info("session line")

	if strings.Contains(buf.String(), "api line") {
		t.Error("disabled component should be filtered")
	}
	if !strings.Contains(buf.String(), "session line") {
		t.Error("other components should stay enabled")
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	logger, buf := newBufferLogger(t, func(c *Config) { c.Format = FormatJSON })

	logger.WithComponent(ComponentSession).Info("Test message", map[string]interface{}{
		"key": "value",
	})

	output := buf.String()
	for _, want := range []string{`"level":"INFO"`, `"component":"session"`, `"message":"Test message"`, `"key":"value"`} {
		if !strings.Contains(output, want) {
			t.Errorf("JSON output %q should contain %s", output, want)
		}
	}
}

func TestLogger_FieldsAreSorted(t *testing.T) {
	logger, buf := newBufferLogger(t, func(c *Config) { c.Timestamp = false })

	logger.WithComponent(ComponentApp).Info("Test message", map[string]interface{}{
		"url":   "https://example.com",
		"count": 42,
	})

	output := strings.TrimSpace(buf.String())
	want := "[INFO] [app] Test message count=42 url=https://example.com"
	if output != want {
		t.Errorf("got %q, want %q", output, want)
	}
}

func TestLogger_MultipleFieldMapsMerge(t *testing.T) {
	logger, buf := newBufferLogger(t, func(c *Config) { c.Timestamp = false })

	logger.WithComponent(ComponentApp).Info("merged", map[string]any{"a": 1}, map[string]any{"b": 2})

	if !strings.Contains(buf.String(), "a=1 b=2") {
		t.Errorf("expected merged fields, got %q", buf.String())
	}
}

func TestLogger_Caller(t *testing.T) {
	logger, buf := newBufferLogger(t, func(c *Config) { c.ShowCaller = true })

	logger.WithComponent(ComponentApp).Info("Test message")

	if !strings.Contains(buf.String(), "logger_test.go:") {
		t.Errorf("Caller information should be included in output, got %q", buf.String())
	}
}

func TestGlobalLogger(t *testing.T) {
	prev := GetGlobalLogger()
	defer SetGlobalLogger(prev)

	logger, buf := newBufferLogger(t, nil)
	SetGlobalLogger(logger)

	WithComponent(ComponentApp).Info("Global logger test")
	For(nil, ComponentApp).Info("For falls back to global")

	output := buf.String()
	if !strings.Contains(output, "Global logger test") || !strings.Contains(output, "For falls back to global") {
		t.Errorf("Global logger should work, got %q", output)
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	if l.Enabled(ERROR, ComponentApp) {
		t.Error("Discard logger should not enable any level")
	}
	l.WithComponent(ComponentApp).Error("dropped")
}

func TestLogger_Concurrency(t *testing.T) {
	logger, buf := newBufferLogger(t, nil)
	compLogger := logger.WithComponent(ComponentApp)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(i int) {
			compLogger.Info("Concurrent message", map[string]interface{}{"goroutine": i})
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 10 {
		t.Errorf("Expected 10 log lines, got %d", len(lines))
	}
}

func TestLogConfig_Environment(t *testing.T) {
	t.Setenv("STREAMS_LOG_LEVEL", "debug")
	t.Setenv("STREAMS_LOG_FORMAT", "json")
	t.Setenv("STREAMS_LOG_OUTPUT", "stderr")
	t.Setenv("STREAMS_LOG_COMPONENTS", "session, api")
	t.Setenv("STREAMS_LOG_TIMESTAMP", "0")

	cfg := EnvironmentConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	lc, err := cfg.ToLoggerConfig()
	if err != nil {
		t.Fatalf("ToLoggerConfig: %v", err)
	}
	if lc.Level != DEBUG || lc.Format != FormatJSON || lc.Timestamp {
		t.Errorf("unexpected config %+v", lc)
	}
	if !lc.Components[ComponentSession] || !lc.Components[ComponentAPI] || lc.Components[ComponentCipher] {
		t.Errorf("unexpected components %v", lc.Components)
	}
}

func TestLogConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  LogConfig
	}{
		{name: "level", cfg: LogConfig{Level: "LOUD"}},
		{name: "format", cfg: LogConfig{Format: "xml"}},
		{name: "output", cfg: LogConfig{Output: "syslog"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
			if _, err := tt.cfg.ToLoggerConfig(); err == nil {
				t.Error("expected conversion error")
			}
		})
	}
}

func TestLogConfig_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "streams.log")
	cfg := &LogConfig{Level: "info", Format: "text", Output: "file:" + path}

	l, err := CreateLoggerFromConfig(cfg)
	if err != nil {
		t.Fatalf("CreateLoggerFromConfig: %v", err)
	}
	l.WithComponent(ComponentApp).Info("to file")
}
