package opfs

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerForVerbosity narrows base to the bridge verbosity scale:
// 0 silent, 1 errors, 2 warnings, 3 everything base allows.
func LoggerForVerbosity(base *zap.Logger, verbose int) *zap.Logger {
	if base == nil || verbose <= 0 {
		return zap.NewNop()
	}
	switch verbose {
	case 1:
		return base.WithOptions(zap.IncreaseLevel(zapcore.ErrorLevel))
	case 2:
		return base.WithOptions(zap.IncreaseLevel(zapcore.WarnLevel))
	}
	return base
}
