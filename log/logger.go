package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	loggerInstance *zap.Logger
	loggerOnce     sync.Once
	level          = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// initLogger initializes structured JSON logger for production
func initLogger() {
	config := zap.NewProductionConfig()
	config.Level = level
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.MessageKey = "message"
	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.StacktraceKey = "stacktrace"
	config.InitialFields = map[string]interface{}{"service": "strapmon-dashboard"}

	logger, err := config.Build()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	loggerInstance = logger
}

func GetInstance() *zap.Logger {
	loggerOnce.Do(initLogger)
	return loggerInstance
}

// SetLevel changes the level of the shared logger. Unknown names leave
// the level unchanged and return false.
func SetLevel(name string) bool {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return false
	}
	level.SetLevel(l)
	return true
}
