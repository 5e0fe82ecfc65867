package logging

import "testing"

func TestNewReturnsUsableLogger(t *testing.T) {
	logger, err := New(false)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	logger.Infow("run started", "power", 3)
}

func TestNewVerbose(t *testing.T) {
	logger, err := New(true)
	if err != nil {
		t.Fatalf("new verbose: %v", err)
	}
	logger.Debugw("phase complete", "runs", 3)
}

func TestNoopDiscardsWithoutPanicking(t *testing.T) {
	Noop().Infow("should be discarded")
}
