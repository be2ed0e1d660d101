package quizforge

import (
	"strings"

	"go.uber.org/zap"
)

var (
	// Global verbose flag
	verboseMode bool
	logger      = zap.NewNop().Sugar()
	// shared by every logger from NewLogger; debug only while verbose
	level = zap.NewAtomicLevelAt(zap.InfoLevel)
)

// NewLogger builds a zap logger. "prod" yields JSON output, anything else the console encoder.
func NewLogger(mode string) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = level
	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return zl.Sugar(), nil
}

// SetLogger installs the package logger
func SetLogger(l *zap.SugaredLogger) {
	if l == nil {
		l = zap.NewNop().Sugar()
	}
	logger = l
}

// Logger returns the package logger
func Logger() *zap.SugaredLogger {
	return logger
}

// SetVerbose sets the global verbose mode and the debug level with it
func SetVerbose(verbose bool) {
	verboseMode = verbose
	if verbose {
		level.SetLevel(zap.DebugLevel)
	} else {
		level.SetLevel(zap.InfoLevel)
	}
}

// VerboseLog logs only when verbose mode is enabled
func VerboseLog(format string, v ...interface{}) {
	if verboseMode {
		logger.Debugf(format, v...)
	}
}
