package util

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNowMillis(t *testing.T) {
	at := time.Date(2019, 5, 2, 2, 5, 25, 0, time.UTC)
	if got := NowMillis(FixedClock(at)); got != 1556762725000 {
		t.Errorf("NowMillis = %d, want 1556762725000", got)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != zap.DebugLevel {
		t.Error("debug not parsed")
	}
	if ParseLevel("nonsense") != zap.InfoLevel {
		t.Error("unknown level should default to info")
	}
}

func TestNewLoggerWithFile(t *testing.T) {
	logger, err := NewLoggerWithFile(filepath.Join(t.TempDir(), "logs", "dexws.log"), zap.InfoLevel)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	logger.Info("logger_initialized")
	_ = logger.Sync()
}
