package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/config"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures the standard logrus logger from cfg.
// The returned closer flushes the rotating file writer, if any.
func Setup(cfg config.LogConfig) (io.Closer, error) {
	level, errLevel := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if errLevel != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(newFormatter(cfg.Format))

	file := strings.TrimSpace(cfg.File)
	if file == "" {
		log.SetOutput(os.Stdout)
		return nopCloser{}, nil
	}
	if errMkdir := os.MkdirAll(filepath.Dir(file), 0o755); errMkdir != nil {
		return nil, errMkdir
	}
	rotator := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return rotator, nil
}

// newFormatter returns a JSON or text formatter.
func newFormatter(format string) log.Formatter {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return &log.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"}
	}
	return &log.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
