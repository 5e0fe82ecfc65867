// Package logging provides sortkit's structured CLI logging. Never
// imported by the sort/merge packages (pkg/keycodec, pkg/proxy,
// pkg/input, pkg/tournament, pkg/segment, pkg/merge, pkg/dedup,
// pkg/output): those packages stay silent and report failures through
// returned errors only. This package is wired in by cmd/sortkit
// alone, which builds its *zap.SugaredLogger through New rather than
// reaching for a package-global logger.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.SugaredLogger: a console encoder when stderr is a
// terminal (human-readable progress), a JSON encoder otherwise (piped
// into a log aggregator), deciding encoding by destination rather than
// by an explicit flag.
func New(verbose bool) (*zap.SugaredLogger, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if verbose {
		level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	encoder := zapcore.NewJSONEncoder(encoderCfg)
	if isTerminal(os.Stderr) {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(consoleCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	logger := zap.New(core)
	return logger.Sugar(), nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// Noop returns a logger that discards everything; used in tests and
// by callers that never want CLI progress output.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
