// Package fallback routes audit appends to a secondary sink while the
// primary is failing.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	audit "consent-ledger/pkg/platform/audit"
	"consent-ledger/pkg/platform/circuit"
)

// Store appends to primary while its breaker is closed. Reads always go to
// secondary, which must be a readable sink.
type Store struct {
	primary   audit.Store
	secondary audit.Store
	breaker   *circuit.Breaker
	logger    *slog.Logger
}

func New(primary, secondary audit.Store, breaker *circuit.Breaker, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{primary: primary, secondary: secondary, breaker: breaker, logger: logger}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if !s.breaker.Allow() {
		return s.appendSecondary(ctx, event, nil)
	}

	err := s.primary.Append(ctx, event)
	if err == nil {
		if change := s.breaker.RecordSuccess(); change.Closed {
			s.logger.InfoContext(ctx, "audit primary sink recovered", "breaker", s.breaker.Name())
		}
		return nil
	}

	if change := s.breaker.RecordFailure(); change.Opened {
		s.logger.WarnContext(ctx, "audit primary sink failing, using fallback",
			"breaker", s.breaker.Name(),
			"error", err,
		)
	}
	return s.appendSecondary(ctx, event, err)
}

func (s *Store) appendSecondary(ctx context.Context, event audit.Event, primaryErr error) error {
	if err := s.secondary.Append(ctx, event); err != nil {
		if primaryErr != nil {
			return errors.Join(fmt.Errorf("primary audit sink: %w", primaryErr), fmt.Errorf("fallback audit sink: %w", err))
		}
		return fmt.Errorf("fallback audit sink: %w", err)
	}
	return nil
}

func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	return s.secondary.ListBySubject(ctx, subject)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	return s.secondary.ListRecent(ctx, limit)
}
