// Package telemetry exports reports as a Prometheus textfile for the
// node_exporter textfile collector.
package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"codeberg.org/mutker/powerstatd/internal/aggregator"
	"codeberg.org/mutker/powerstatd/internal/errors"
	"codeberg.org/mutker/powerstatd/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
)

type textfileExporter struct {
	cfg      Config
	registry *prometheus.Registry
	gauges   *gauges
	mu       sync.Mutex
}

// No-op implementation
type noopExporter struct{}

func NewExporter(cfg Config) (Exporter, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		logger.Debug().Msg("Textfile export disabled, using no-op exporter")
		return &noopExporter{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), defaultDirPerm); err != nil {
		return nil, errFactory.WrapWithData(ErrInvalidPath, err, cfg.Path)
	}

	g := newGauges()
	registry := prometheus.NewRegistry()
	for _, c := range g.collectors() {
		if err := registry.Register(c); err != nil {
			return nil, errFactory.Wrap(ErrRegister, err)
		}
	}

	logger.Debug().Str("path", cfg.Path).Msg("Textfile exporter initialized")

	return &textfileExporter{
		cfg:      cfg,
		registry: registry,
		gauges:   g,
	}, nil
}

// Export replaces every series with the content of report and rewrites the
// textfile.
func (e *textfileExporter) Export(ctx context.Context, report *aggregator.Report) error {
	errFactory := errors.New()

	if report == nil {
		return errFactory.New(ErrInvalidReport)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.gauges.values.Reset()
	for key, v := range report.Values {
		e.gauges.values.WithLabelValues(key).Set(v)
	}

	e.gauges.fields.Reset()
	for key, v := range report.Fields {
		e.gauges.fields.WithLabelValues(key, v).Set(1)
	}

	e.gauges.elapsed.Set(report.Elapsed)
	e.gauges.published.Set(float64(report.Timestamp.UnixNano()) / 1e9)

	if err := prometheus.WriteToTextfile(e.cfg.Path, e.registry); err != nil {
		return errFactory.WrapWithData(ErrWriteTextfile, err, e.cfg.Path)
	}

	return nil
}

// Close removes the textfile so stale residency is not scraped.
func (e *textfileExporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.Remove(e.cfg.Path); err != nil && !os.IsNotExist(err) {
		return errors.New().WrapWithData(ErrWriteTextfile, err, e.cfg.Path)
	}

	return nil
}

func (*noopExporter) Export(context.Context, *aggregator.Report) error {
	return nil
}

func (*noopExporter) Close() error {
	return nil
}
