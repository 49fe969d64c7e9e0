package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // include query variables in spans
	SlowQueryThresh time.Duration // default: 200ms
	DBSystem        string        // default: "postgresql"
}

// DefaultDBTracingConfig returns default configuration for database tracing.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		Enabled:         false,
		LogFullSQL:      false,
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

// DBTracingPlugin registers otelgorm and marks slow or failed statements on their spans.
type DBTracingPlugin struct {
	config   DBTracingConfig
	logger   *zap.Logger
	provider trace.TracerProvider
}

// NewDBTracingPlugin creates a new database tracing plugin.
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = DefaultDBTracingConfig().SlowQueryThresh
	}
	return &DBTracingPlugin{
		config: cfg,
		logger: logger,
	}
}

// WithTracerProvider overrides the global tracer provider
func (p *DBTracingPlugin) WithTracerProvider(tp trace.TracerProvider) *DBTracingPlugin {
	p.provider = tp
	return p
}

// Register installs the otelgorm plugin and the timing callbacks on db.
func (p *DBTracingPlugin) Register(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if p.provider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(p.provider))
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}
	if err := p.registerCallbacks(db); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
		zap.String("db_system", p.config.DBSystem),
	)
	return nil
}

const queryStartKey = "otel_timing:start"

func (p *DBTracingPlugin) registerCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	registrations := []struct {
		name string
		err  error
	}{
		{"create", cb.Create().Before("gorm:create").Register("otel_timing:before_create", markStart)},
		{"create", cb.Create().After("gorm:create").Before("otel:after_create").Register("otel_timing:after_create", p.annotate)},
		{"query", cb.Query().Before("gorm:query").Register("otel_timing:before_query", markStart)},
		{"query", cb.Query().After("gorm:query").Before("otel:after_query").Register("otel_timing:after_query", p.annotate)},
		{"update", cb.Update().Before("gorm:update").Register("otel_timing:before_update", markStart)},
		{"update", cb.Update().After("gorm:update").Before("otel:after_update").Register("otel_timing:after_update", p.annotate)},
		{"delete", cb.Delete().Before("gorm:delete").Register("otel_timing:before_delete", markStart)},
		{"delete", cb.Delete().After("gorm:delete").Before("otel:after_delete").Register("otel_timing:after_delete", p.annotate)},
		{"row", cb.Row().Before("gorm:row").Register("otel_timing:before_row", markStart)},
		{"row", cb.Row().After("gorm:row").Before("otel:after_row").Register("otel_timing:after_row", p.annotate)},
		{"raw", cb.Raw().Before("gorm:raw").Register("otel_timing:before_raw", markStart)},
		{"raw", cb.Raw().After("gorm:raw").Before("otel:after_raw").Register("otel_timing:after_raw", p.annotate)},
	}
	for _, r := range registrations {
		if r.err != nil {
			return fmt.Errorf("register %s timing callback: %w", r.name, r.err)
		}
	}
	return nil
}

func markStart(db *gorm.DB) {
	db.InstanceSet(queryStartKey, time.Now())
}

// annotate adds table and row attributes to the active span and flags slow or failed statements
func (p *DBTracingPlugin) annotate(db *gorm.DB) {
	if db.Statement == nil || db.Statement.Context == nil {
		return
	}
	span := trace.SpanFromContext(db.Statement.Context)

	var elapsed time.Duration
	if v, ok := db.InstanceGet(queryStartKey); ok {
		if start, ok := v.(time.Time); ok {
			elapsed = time.Since(start)
		}
	}

	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("db.table", db.Statement.Table),
			attribute.Int64("db.rows_affected", db.RowsAffected),
		)
	}

	if elapsed >= p.config.SlowQueryThresh {
		if span.IsRecording() {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.duration_ms", elapsed.Milliseconds()),
			)
		}
		p.logger.Warn("Slow query",
			zap.String("table", db.Statement.Table),
			zap.Duration("elapsed", elapsed),
			zap.Int64("rows", db.RowsAffected),
		)
	}

	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) && span.IsRecording() {
		span.RecordError(db.Error)
		span.SetStatus(codes.Error, db.Error.Error())
	}
}
