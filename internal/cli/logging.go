package cli

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger from log.level and log.format.
// Each verbose step lowers the level by one (info -> debug); quiet raises
// it to error.
func NewLogger(c LogConfig, verbose int, quiet bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, fmt.Errorf("log.level: %w", err)
		}
	}
	for i := 0; i < verbose && level > zapcore.DebugLevel; i++ {
		level--
	}
	if quiet {
		level = zapcore.ErrorLevel
	}

	var zc zap.Config
	switch c.Format {
	case "json":
		zc = zap.NewProductionConfig()
	case "", "console":
		zc = zap.NewDevelopmentConfig()
		zc.DisableStacktrace = true
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("log.format must be \"console\" or \"json\", got %q", c.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableCaller = true

	return zc.Build()
}
