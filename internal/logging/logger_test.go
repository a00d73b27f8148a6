package logging

import "testing"

func TestNewBuildsBothModes(t *testing.T) {
	t.Parallel()

	for _, development := range []bool{true, false} {
		logger, err := New(development)
		if err != nil {
			t.Fatalf("New(%v) error = %v", development, err)
		}
		if logger == nil {
			t.Fatalf("New(%v) returned nil logger", development)
		}
		logger.Named("scheduler").Info("logger ready")
		_ = logger.Sync() //nolint:errcheck // best-effort flush
	}
}

func TestNewDevelopmentAllowsDebug(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	if !logger.Core().Enabled(-1) { // zapcore.DebugLevel
		t.Fatal("development logger should enable debug level")
	}
}
