package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"

	"github.com/okian/starchallenge/pkg/logger"
)

const defaultSlowThreshold = 200 * time.Millisecond

// GormLogger implements gorm.io/gorm/logger.Interface on top of pkg/logger.
type GormLogger struct {
	log           logger.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger logs failed statements at Error, slow ones at Warn and the
// rest at Debug.
func NewGormLogger(log logger.Logger) *GormLogger {
	return &GormLogger{
		log:           log.Named("gorm"),
		level:         gormlogger.Info,
		slowThreshold: defaultSlowThreshold,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.log.Info(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.log.Error(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []logger.Field{
		logger.String("file", utils.FileWithLineNum()),
		logger.String("sql", sql),
		logger.Int64("rows", rows),
		logger.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
	}

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound):
		l.log.Error(ctx, "gorm.query", append(fields, logger.Error(err))...)
	case l.slowThreshold != 0 && elapsed > l.slowThreshold:
		l.log.Warn(ctx, "gorm.slow_query", append(fields, logger.Duration("threshold", l.slowThreshold))...)
	default:
		l.log.Debug(ctx, "gorm.query", fields...)
	}
}
