package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerBasic(t *testing.T) {
	var buf bytes.Buffer
	logger := New("test")
	logger.SetWriter(&buf)
	logger.SetLevel(DEBUG)
	logger.SetColorize(false)

	logger.Info("hello %s", "world")

	output := buf.String()
	if !strings.Contains(output, "[INFO ]") {
		t.Errorf("expected INFO level, got: %s", output)
	}
	if !strings.Contains(output, "test:") {
		t.Errorf("expected prefix 'test:', got: %s", output)
	}
	if !strings.Contains(output, "hello world") {
		t.Errorf("expected message 'hello world', got: %s", output)
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New("test")
	logger.SetWriter(&buf)
	logger.SetColorize(false)
	logger.SetLevel(INFO)

	logger.Debug("debug message")
	if buf.Len() != 0 {
		t.Errorf("expected DEBUG to be filtered, got: %s", buf.String())
	}

	for _, tc := range []struct {
		log func(string, ...interface{})
		msg string
	}{
		{logger.Info, "info message"},
		{logger.Warn, "warn message"},
		{logger.Error, "error message"},
	} {
		buf.Reset()
		tc.log(tc.msg)
		if !strings.Contains(buf.String(), tc.msg) {
			t.Errorf("expected %q to pass, got: %s", tc.msg, buf.String())
		}
	}
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New("json-test")
	logger.SetWriter(&buf)
	logger.SetFormat(FormatJSON)

	logger.Info("structured message")

	var entry jsonEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v (%s)", err, buf.String())
	}
	if entry.Level != "INFO" {
		t.Errorf("expected level INFO, got: %s", entry.Level)
	}
	if entry.Logger != "json-test" {
		t.Errorf("expected logger 'json-test', got: %s", entry.Logger)
	}
	if entry.Message != "structured message" {
		t.Errorf("expected message, got: %s", entry.Message)
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New("test")
	logger.SetWriter(&buf)
	logger.SetColorize(false)

	logger.WithFields(Fields{"device": "/dev/ttyACM0", "attempt": 3}).Warn("connect failed")

	output := buf.String()
	if !strings.Contains(output, "attempt=3") {
		t.Errorf("expected attempt field, got: %s", output)
	}
	if !strings.Contains(output, "device=/dev/ttyACM0") {
		t.Errorf("expected device field, got: %s", output)
	}
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := New("test")
	logger.SetWriter(&buf)
	logger.SetColorize(false)

	logger.WithError(errors.New("boom")).Error("operation failed")
	if !strings.Contains(buf.String(), "error=boom") {
		t.Errorf("expected error field, got: %s", buf.String())
	}
}

func TestLoggerWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := New("parent")
	logger.SetWriter(&buf)
	logger.SetColorize(false)
	logger.SetLevel(DEBUG)

	child := logger.WithPrefix("child")
	child.Debug("from child")

	output := buf.String()
	if !strings.Contains(output, "child:") {
		t.Errorf("expected child prefix, got: %s", output)
	}
	if strings.Contains(output, "parent:") {
		t.Errorf("unexpected parent prefix, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"DEBUG", DEBUG},
		{"info", INFO},
		{"warn", WARN},
		{"warning", WARN},
		{"error", ERROR},
		{"bogus", INFO},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEntryChaining(t *testing.T) {
	var buf bytes.Buffer
	logger := New("test")
	logger.SetWriter(&buf)
	logger.SetColorize(false)

	logger.WithField("a", 1).WithField("b", 2).Infof("chained %d", 3)

	output := buf.String()
	for _, want := range []string{"a=1", "b=2", "chained 3"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestGetLogger(t *testing.T) {
	l := GetLogger("component")
	if l == nil {
		t.Fatal("GetLogger returned nil")
	}
}
