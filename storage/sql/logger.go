package sql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// slogAdapter routes gorm's logging through slog.
type slogAdapter struct {
	logger        *slog.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

var _ gormlogger.Interface = (*slogAdapter)(nil)

func newSlogAdapter(logger *slog.Logger) *slogAdapter {
	return &slogAdapter{logger: logger, level: gormlogger.Warn, slowThreshold: 2 * time.Second}
}

func (a *slogAdapter) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *a
	c.level = level
	return &c
}

func (a *slogAdapter) Info(ctx context.Context, msg string, args ...any) {
	if a.level >= gormlogger.Info {
		a.logger.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (a *slogAdapter) Warn(ctx context.Context, msg string, args ...any) {
	if a.level >= gormlogger.Warn {
		a.logger.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (a *slogAdapter) Error(ctx context.Context, msg string, args ...any) {
	if a.level >= gormlogger.Error {
		a.logger.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

// Trace logs failed and slow statements. Statement text is logged at debug
// only since rows carry record content.
func (a *slogAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if a.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && a.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		_, rows := fc()
		a.logger.DebugContext(ctx, "sql statement failed", "elapsed", elapsed, "rows", rows, "err", err)
	case elapsed > a.slowThreshold && a.level >= gormlogger.Warn:
		_, rows := fc()
		a.logger.WarnContext(ctx, "slow sql statement", "elapsed", elapsed, "rows", rows)
	case a.level >= gormlogger.Info:
		sql, rows := fc()
		a.logger.DebugContext(ctx, "sql statement", "elapsed", elapsed, "rows", rows, "sql", sql)
	}
}
