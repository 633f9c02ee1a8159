package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tphakala/aquatrack/internal/logging"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQueryThreshold defines the duration after which a query is
// considered slow. 1 second accommodates migration batch queries.
const DefaultSlowQueryThreshold = 1 * time.Second

// createGormLogger configures and returns a new GORM logger instance backed by slog.
func createGormLogger() gormlogger.Interface {
	return &slogGormLogger{
		log:       logging.ForService("datastore"),
		slowQuery: DefaultSlowQueryThreshold,
		level:     gormlogger.Warn,
	}
}

// slogGormLogger adapts the application slog logger to GORM's logger interface.
type slogGormLogger struct {
	log       *slog.Logger
	slowQuery time.Duration
	level     gormlogger.LogLevel
}

func (l *slogGormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *slogGormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.log.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.log.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.log.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error:
		sql, rows := fc()
		l.log.ErrorContext(ctx, "query failed",
			"error", err, "elapsed_ms", elapsed.Milliseconds(), "rows", rows, "sql", sql)
	case elapsed > l.slowQuery && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.log.WarnContext(ctx, "slow query",
			"elapsed_ms", elapsed.Milliseconds(), "rows", rows, "sql", sql)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.log.DebugContext(ctx, "query",
			"elapsed_ms", elapsed.Milliseconds(), "rows", rows, "sql", sql)
	}
}

// performAutoMigration runs GORM auto-migration for all entities.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(
		&Batch{},
		&LifecycleStage{},
		&Hall{},
		&Area{},
		&Container{},
		&Assignment{},
		&ProjectionRun{},
		&TGCModel{},
		&TGCStageOverride{},
		&TemperatureProfileEntry{},
		&MortalityModel{},
		&MortalityStageOverride{},
		&ConstraintSet{},
		&StageConstraint{},
		&GrowthSample{},
		&TransferAction{},
		&MortalityEvent{},
		&FeedingEvent{},
		&SamplingEvent{},
		&WeightObservation{},
		&Treatment{},
		&EnvironmentalReading{},
		&DailyState{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if debug {
		logging.ForService("datastore").Debug("database connection initialized",
			"type", dbType, "connection", connectionInfo)
	}

	return nil
}
