package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a logger that writes JSON to a rotated file and a second copy to
// stdout. In production the console copy is JSON as well.
func New(logFilePath string, isProd bool) *zap.Logger {
	rotator := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	jsonEncoder := zapcore.NewJSONEncoder(encoderConfig)

	consoleEncoder := jsonEncoder
	consoleLevel := zap.InfoLevel
	if !isProd {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		consoleLevel = zap.DebugLevel
	}

	core := zapcore.NewTee(
		zapcore.NewCore(jsonEncoder, zapcore.AddSync(rotator), zap.InfoLevel),
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), consoleLevel),
	)
	return zap.New(core, zap.AddCaller())
}
