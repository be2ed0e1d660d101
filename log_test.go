package quizforge

import (
	"testing"

	"go.uber.org/zap"
)

func TestLoggerDebugOnlyWhenVerbose(t *testing.T) {
	defer SetVerbose(false)

	for _, mode := range []string{"dev", "prod"} {
		SetVerbose(false)
		l, err := NewLogger(mode)
		if err != nil {
			t.Fatalf("NewLogger(%s): %v", mode, err)
		}
		core := l.Desugar().Core()
		if core.Enabled(zap.DebugLevel) {
			t.Errorf("%s: debug enabled without verbose", mode)
		}
		if !core.Enabled(zap.InfoLevel) {
			t.Errorf("%s: info disabled", mode)
		}

		SetVerbose(true)
		if !core.Enabled(zap.DebugLevel) {
			t.Errorf("%s: debug still disabled after SetVerbose(true)", mode)
		}
	}
}
