package logging

import (
	"testing"

	"github.com/mohammad-safakhou/adaptwatch/internal/failure"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Parallel()
	logger, err := New("debug", "console")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug level not enabled")
	}

	logger, err = New("warn", "json")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("info should be filtered at warn")
	}
}

func TestNewRejectsBadSettings(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct{ level, format string }{{"loud", "json"}, {"info", "xml"}} {
		if _, err := New(tc.level, tc.format); !failure.IsConfiguration(err) {
			t.Fatalf("New(%q, %q): expected configuration error, got %v", tc.level, tc.format, err)
		}
	}
}
