// Package logging builds the process logger. Console output goes to
// stderr so it never interleaves with chat output on stdout; file output
// is rotated.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger at the given level. When file is non-empty, logs
// are written there as JSON with rotation; otherwise they go to stderr in
// console form.
func New(level, file string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	var core zapcore.Core
	if file != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		})
		enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		core = zapcore.NewCore(enc, sink, lvl)
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		enc := zapcore.NewConsoleEncoder(cfg)
		core = zapcore.NewCore(enc, zapcore.AddSync(os.Stderr), lvl)
	}

	return zap.New(core), nil
}
