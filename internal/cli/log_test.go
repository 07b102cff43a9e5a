package cli

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestNewLoggerFiltersByLevel(t *testing.T) {
	tests := []struct {
		level log.Level
		debug bool
		info  bool
	}{
		{LogInfo, false, true},
		{LogDebug, true, true},
		{log.WarnLevel, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, tt.level)

			logger.Debug("canvas loaded", "blocks", 3)
			if got := buf.Len() > 0; got != tt.debug {
				t.Errorf("debug written = %v, want %v", got, tt.debug)
			}
			buf.Reset()
			logger.Info("placed", "blocks", 3)
			if got := buf.Len() > 0; got != tt.info {
				t.Errorf("info written = %v, want %v", got, tt.info)
			}
		})
	}
}

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, LogInfo)
	c.Logger.Debug("hidden")
	c.SetLogLevel(LogDebug)
	c.Logger.Debug("shown")

	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("output %q, want only the message logged after SetLogLevel", out)
	}
}

func TestProgressReportsElapsed(t *testing.T) {
	var buf bytes.Buffer
	newProgress(newLogger(&buf, LogInfo)).done("Placed 3 blocks")

	if !regexp.MustCompile(`Placed 3 blocks \(\d+(\.\d+)?[µnm]?s\)`).MatchString(buf.String()) {
		t.Errorf("progress output %q lacks message with elapsed time", buf.String())
	}
}

func TestLoggerContext(t *testing.T) {
	if loggerFromContext(context.Background()) != log.Default() {
		t.Error("empty context should yield the default logger")
	}

	var buf bytes.Buffer
	custom := newLogger(&buf, LogInfo)
	ctx := withLogger(context.Background(), custom)
	if loggerFromContext(ctx) != custom {
		t.Fatal("loggerFromContext did not return the attached logger")
	}
	loggerFromContext(ctx).Info("via context")
	if !strings.Contains(buf.String(), "via context") {
		t.Error("attached logger did not write to its writer")
	}
}
