package telemetry

import (
	"context"

	"codeberg.org/mutker/powerstatd/internal/aggregator"
)

// Exporter publishes reports to an external metrics system
type Exporter interface {
	Export(ctx context.Context, report *aggregator.Report) error
	Close() error
}
