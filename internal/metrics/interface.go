package metrics

import (
	"context"

	"codeberg.org/mutker/powerstatd/internal/aggregator"
)

// ReportRecorder defines the core domain interface
type ReportRecorder interface {
	Record(ctx context.Context, report *aggregator.Report) error
	Session() string
	Close() error
}

// ReportRepository defines the interface for report storage
type ReportRepository interface {
	Record(report *aggregator.Report) error
	Flush() error
	Close() error
}
