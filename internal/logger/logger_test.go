package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	quiet, err := New(false)
	if err != nil {
		t.Fatalf("New(false): %v", err)
	}
	if quiet.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug enabled without verbose")
	}

	verbose, err := New(true, zap.String("component", "test"))
	if err != nil {
		t.Fatalf("New(true): %v", err)
	}
	if !verbose.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug disabled with verbose")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	l := zap.NewExample()
	if OrNop(l) != l {
		t.Fatal("OrNop replaced a non-nil logger")
	}
}
