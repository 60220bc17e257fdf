package loggers

import (
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trustmesh/go-signals"
	"github.com/trustmesh/go-signals/common"
	"github.com/trustmesh/go-signals/models"
)

func NewLogger() models.Logger {
	level := zap.NewAtomicLevelAt(zap.DebugLevel)

	logLevel := os.Getenv(signals.Env_LogLevel)
	if len(logLevel) > 0 {
		if parsedLevel, err := zap.ParseAtomicLevel(logLevel); err != nil {
			log.Fatalf("Error parsing log level %s: %v", logLevel, err)
		} else {
			level = parsedLevel
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = level
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.InitialFields = map[string]interface{}{"service": common.ServiceName}
	return zap.Must(cfg.Build()).Sugar()
}

// NewTestLogger logs human-readable output at debug level.
func NewTestLogger() models.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.TimeKey = "timestamp"
	return zap.Must(cfg.Build()).Sugar()
}

// NewNopLogger discards everything. Used by benchmarks and noisy table tests.
func NewNopLogger() models.Logger {
	return zap.NewNop().Sugar()
}
