package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Black-And-White-Club/trophy-bot/app/observability/metrics"
	"github.com/Black-And-White-Club/trophy-bot/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Observability bundles the logger, tracer and metrics handed to modules.
type Observability struct {
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Metrics  metrics.TrophyMetrics
	Registry *prometheus.Registry
}

// Init builds observability from config. Spans go to the global otel
// provider, which is a no-op unless the process installs one.
func Init(cfg config.ObservabilityConfig) (Observability, error) {
	logger := NewLogger(os.Stdout, cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var m metrics.TrophyMetrics = metrics.NewNoop()
	if cfg.MetricsEnabled {
		var err error
		m, err = metrics.NewTrophyMetrics(reg, cfg.MetricsPrefix)
		if err != nil {
			return Observability{}, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	return Observability{
		Logger:   logger.With(slog.String("service", cfg.ServiceName)),
		Tracer:   otel.Tracer(cfg.ServiceName),
		Metrics:  m,
		Registry: reg,
	}, nil
}

// NewNoop returns observability that discards logs, spans and metrics.
func NewNoop() Observability {
	return Observability{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Tracer:   noop.NewTracerProvider().Tracer("noop"),
		Metrics:  metrics.NewNoop(),
		Registry: prometheus.NewRegistry(),
	}
}

// NewLogger returns a text logger in development and JSON elsewhere.
func NewLogger(w io.Writer, cfg config.ObservabilityConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if strings.EqualFold(cfg.Environment, "development") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
