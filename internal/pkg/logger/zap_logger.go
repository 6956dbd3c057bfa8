package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/piresc/tumpang/internal/pkg/models"
)

// ZapLogger is the application logger used across the engine
type ZapLogger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// NewZapLogger creates a new Zap application logger writing structured
// JSON to stdout at the configured level
func NewZapLogger(level string) (*ZapLogger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		lvl,
	)

	zl := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &ZapLogger{
		Logger: zl,
		sugar:  zl.Sugar(),
	}, nil
}

// InitZapLoggerFromConfig creates a logger from application config
func InitZapLoggerFromConfig(configs *models.Config) (*ZapLogger, error) {
	level := configs.Logger.Level
	if configs.App.Debug {
		level = "debug"
	}
	return NewZapLogger(level)
}

// Sugar returns the sugared logger for printf-style call sites
func (zl *ZapLogger) Sugar() *zap.SugaredLogger {
	return zl.sugar
}

// Close flushes any buffered log entries
func (zl *ZapLogger) Close() error {
	return zl.Logger.Sync()
}
