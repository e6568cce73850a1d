package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kozaktomas/punch-clock/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{" info ", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestInitWithWriter_JSONOutput(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	initWithWriter(config.LogConfig{Level: "info"}, &buf)

	log.Debug().Msg("hidden")
	log.Info().Str("employee_id", "E1").Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("expected debug message to be filtered at info level")
	}
	if !strings.Contains(out, `"employee_id":"E1"`) {
		t.Errorf("expected structured field in output, got %s", out)
	}
	if !strings.Contains(out, `"service":"punch-clock"`) {
		t.Errorf("expected service field in output, got %s", out)
	}
}
