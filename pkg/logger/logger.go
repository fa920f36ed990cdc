package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"portfolio-analytics/internal/config"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

// Init configures the standard logrus logger and returns it so it can be
// handed to components that take a *logrus.Logger.
func Init(cfg config.LoggerConfig) *logrus.Logger {
	log := logrus.StandardLogger()
	Configure(log, cfg)
	return log
}

// Configure applies level, format and output settings to log
func Configure(log *logrus.Logger, cfg config.LoggerConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	switch cfg.Format {
	case "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	default:
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
		})
	}

	log.SetOutput(outputFor(cfg))
}

func outputFor(cfg config.LoggerConfig) io.Writer {
	if cfg.Filename == "" {
		return os.Stdout
	}

	switch cfg.Output {
	case "file":
		return getFileWriter(cfg)
	case "both":
		return io.MultiWriter(os.Stdout, getFileWriter(cfg))
	default:
		return os.Stdout
	}
}

// getFileWriter returns a file writer with rotation
func getFileWriter(cfg config.LoggerConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
}

// Discard returns a logger that drops everything, for tests
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
