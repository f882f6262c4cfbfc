// Package metrics persists published reports to SQLite. Every process run is
// a session identified by a UUID; reports are buffered and written in
// batches.
package metrics

import (
	"context"

	"codeberg.org/mutker/powerstatd/internal/aggregator"
	"codeberg.org/mutker/powerstatd/internal/errors"
	"codeberg.org/mutker/powerstatd/internal/logger"
	"github.com/google/uuid"
)

type service struct {
	repo    ReportRepository
	cfg     Config
	session string
}

// No-op implementation
type noopRecorder struct{}

func NewService(cfg Config) (ReportRecorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	// If metrics is disabled, return a no-op recorder
	if !cfg.Enabled {
		logger.Debug().Msg("Report persistence disabled, using no-op recorder")
		return &noopRecorder{}, nil
	}

	session := uuid.NewString()
	repo, err := NewRepository(cfg, session, logger.New("metrics"))
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to create report repository")
		return nil, err
	}

	logger.Debug().
		Str("db_path", cfg.DBPath).
		Str("session", session).
		Msg("Report persistence initialized")

	return &service{
		repo:    repo,
		cfg:     cfg,
		session: session,
	}, nil
}

func (s *service) Record(ctx context.Context, report *aggregator.Report) error {
	errFactory := errors.New()

	if report == nil {
		return errFactory.New(ErrInvalidReport)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Record(report); err != nil {
			return errFactory.Wrap(ErrReportRecord, err)
		}
	}

	return nil
}

func (s *service) Session() string {
	return s.session
}

func (s *service) Close() error {
	errFactory := errors.New()

	if err := s.repo.Close(); err != nil {
		return errFactory.Wrap(ErrServiceShutdown, err)
	}
	return nil
}

func (*noopRecorder) Record(context.Context, *aggregator.Report) error {
	return nil
}

func (*noopRecorder) Session() string {
	return ""
}

func (*noopRecorder) Close() error {
	return nil
}
