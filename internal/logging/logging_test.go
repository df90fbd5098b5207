package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{" WARN ", zerolog.WarnLevel, false},
		{"loud", zerolog.NoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", FileName)
	logger, err := New(Options{Path: path, Level: "debug"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug().Str("component", "test").Msg("hello")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"message":"hello"`) || !strings.Contains(string(data), `"component":"test"`) {
		t.Fatalf("log file = %q", data)
	}
}

func TestConsoleOnlyShowsWarnings(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Console: true, Stderr: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info().Msg("quiet")
	logger.Warn().Msg("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("console got info line: %q", out)
	}
	if !strings.Contains(out, "loud") {
		t.Fatalf("console missing warning: %q", out)
	}
}

func TestNewWithoutOutputsIsNop(t *testing.T) {
	logger, err := New(Options{})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Error().Msg("dropped")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}
