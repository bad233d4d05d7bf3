package logging

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormLogger routes gorm SQL logs through logrus.
type GormLogger struct {
	level         logger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger builds a gorm logger that reports errors and slow queries.
func NewGormLogger(slowThreshold time.Duration) *GormLogger {
	return &GormLogger{level: logger.Warn, slowThreshold: slowThreshold}
}

// LogMode returns a copy with the given level.
func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	next := *l
	next.level = level
	return &next
}

// Info logs informational gorm messages.
func (l *GormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Info {
		log.WithContext(ctx).Infof("gorm: "+msg, args...)
	}
}

// Warn logs gorm warnings.
func (l *GormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Warn {
		log.WithContext(ctx).Warnf("gorm: "+msg, args...)
	}
}

// Error logs gorm errors.
func (l *GormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Error {
		log.WithContext(ctx).Errorf("gorm: "+msg, args...)
	}
}

// Trace logs failed and slow statements.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		log.WithContext(ctx).WithError(err).WithFields(log.Fields{
			"elapsed": elapsed.String(),
			"rows":    rows,
		}).Warnf("gorm: %s", sql)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= logger.Warn:
		sql, rows := fc()
		log.WithContext(ctx).WithFields(log.Fields{
			"elapsed": elapsed.String(),
			"rows":    rows,
		}).Warnf("gorm: slow query: %s", sql)
	case l.level >= logger.Info:
		sql, rows := fc()
		log.WithContext(ctx).WithFields(log.Fields{
			"elapsed": elapsed.String(),
			"rows":    rows,
		}).Debugf("gorm: %s", sql)
	}
}
