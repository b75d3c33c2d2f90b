package cart

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func newBufferedLogger(t *testing.T, cfg LoggingConfig) (*ProductionLogger, *bytes.Buffer) {
	t.Helper()

	logger := NewProductionLogger(cfg, "groupkart-test")
	buf := &bytes.Buffer{}
	logger.SetOutput(buf)
	return logger, buf
}

func TestLoggerLevelFiltering(t *testing.T) {
	logger, buf := newBufferedLogger(t, LoggingConfig{Level: "INFO", Format: "text"})

	logger.Debug("hidden", nil)
	if buf.Len() != 0 {
		t.Errorf("DEBUG message logged at INFO level: %q", buf.String())
	}

	logger.Info("shown", nil)
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("INFO message missing from output: %q", buf.String())
	}

	buf.Reset()
	logger.SetLevel("ERROR")
	logger.Warn("hidden warn", nil)
	if buf.Len() != 0 {
		t.Errorf("WARN message logged at ERROR level: %q", buf.String())
	}
	logger.Error("shown error", nil)
	if !strings.Contains(buf.String(), "shown error") {
		t.Errorf("ERROR message missing from output: %q", buf.String())
	}
}

func TestLoggerJSONFormat(t *testing.T) {
	logger, buf := newBufferedLogger(t, LoggingConfig{Level: "DEBUG", Format: "json"})

	logger.Info("cart created", map[string]interface{}{
		"cart_id":    "abc",
		"user_count": 2,
		// Core fields are protected from being overwritten
		"level":   "FAKE",
		"service": "fake-service",
	})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}

	if entry["message"] != "cart created" {
		t.Errorf("message = %v, want cart created", entry["message"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO (not overwritten by field)", entry["level"])
	}
	if entry["service"] != "groupkart-test" {
		t.Errorf("service = %v, want groupkart-test", entry["service"])
	}
	if entry["component"] != "cart" {
		t.Errorf("component = %v, want cart", entry["component"])
	}
	if entry["cart_id"] != "abc" {
		t.Errorf("cart_id = %v, want abc", entry["cart_id"])
	}
	if entry["user_count"] != float64(2) {
		t.Errorf("user_count = %v, want 2", entry["user_count"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("timestamp field missing")
	}
}

func TestLoggerTextFormat(t *testing.T) {
	logger, buf := newBufferedLogger(t, LoggingConfig{Level: "DEBUG", Format: "text"})

	logger.Warn("budget exceeded", map[string]interface{}{
		"cart_id":  "abc",
		"category": "Snacks",
	})

	out := buf.String()
	for _, want := range []string{"[WARN]", "[cart:groupkart-test]", "budget exceeded", "cart_id=abc", "category=Snacks"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q: %s", want, out)
		}
	}
}

func TestLoggerEnvConfiguration(t *testing.T) {
	t.Setenv("GROUPKART_LOG_LEVEL", "debug")
	t.Setenv("GROUPKART_LOG_FORMAT", "json")

	logger, buf := newBufferedLogger(t, LoggingConfig{})

	logger.Debug("visible at env level", nil)
	if buf.Len() == 0 {
		t.Fatal("DEBUG message filtered despite GROUPKART_LOG_LEVEL=debug")
	}
	if !json.Valid(buf.Bytes()) {
		t.Errorf("output not JSON despite GROUPKART_LOG_FORMAT=json: %q", buf.String())
	}
}

func TestLoggerConfigBeatsEnv(t *testing.T) {
	t.Setenv("GROUPKART_LOG_LEVEL", "DEBUG")

	logger, buf := newBufferedLogger(t, LoggingConfig{Level: "ERROR", Format: "text"})

	logger.Debug("hidden", nil)
	logger.Info("also hidden", nil)
	if buf.Len() != 0 {
		t.Errorf("explicit config level ERROR did not win over env: %q", buf.String())
	}
}

func TestLoggerKubernetesDetection(t *testing.T) {
	t.Setenv("GROUPKART_LOG_FORMAT", "")
	t.Setenv("KUBERNETES_SERVICE_HOST", "10.0.0.1")

	logger, buf := newBufferedLogger(t, LoggingConfig{Level: "INFO"})

	logger.Info("in cluster", nil)
	if !json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Errorf("expected JSON output in Kubernetes, got %q", buf.String())
	}
}
