package testutil

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewSimpleLogger is a development logger with short timestamps. Debug level if debug == true, info otherwise
func NewSimpleLogger(debug bool) *zap.SugaredLogger {
	lvl := zapcore.InfoLevel
	if debug {
		lvl = zapcore.DebugLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("04:05.000")
	log, err := cfg.Build(zap.AddStacktrace(zapcore.FatalLevel))
	if err != nil {
		panic(err)
	}
	return log.Sugar()
}
