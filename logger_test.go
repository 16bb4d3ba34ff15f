package resilix

import (
	"io"
	"log/slog"
	"testing"

	"go.uber.org/zap"
)

func TestSimpleLoggerLevels(t *testing.T) {
	logger := NewSimpleLogger()

	logger.Debug("debug message")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message")
	logger.Error("error message", "attempt", 1)
}

func TestZapLoggerAdapter(t *testing.T) {
	logger := NewZapLogger(zap.NewNop())

	logger.Debug("debug message", "key", "value")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")
}

func TestSlogLoggerAdapter(t *testing.T) {
	logger := NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	logger.Debug("debug message", "key", "value")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")
}

func TestDefaultRequestIDGen(t *testing.T) {
	a := DefaultRequestIDGen()
	b := DefaultRequestIDGen()

	if a == "" || b == "" {
		t.Fatal("request ids should be non-empty")
	}
	if a == b {
		t.Error("request ids should be unique")
	}
}
