package application

import (
	"context"
	"time"

	"github.com/viralforge/powerauth-server/internal/domain"
	"github.com/viralforge/powerauth-server/internal/ports"
)

// SweepExpiredActivations transitions CREATED/PENDING_COMMIT records past their
// timestampActivationExpire to REMOVED, one batch at a time (spec §4.5 row 3, §5 default
// 60s sweep). Returns the number of records swept.
func (s *Service) SweepExpiredActivations(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = s.cfg.ExpirationSweepBatchSize
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	now := time.Now().UTC()
	candidates, err := s.activations.ListExpired(ctx, now, batchSize)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, candidate := range candidates {
		rec, err := s.activations.Mutate(ctx, candidate.ActivationID, func(rec *domain.Record) (*ports.ActivationMutation, error) {
			if rec.Status != domain.StatusCreated && rec.Status != domain.StatusPendingCommit {
				return nil, nil
			}
			if !time.Now().UTC().After(rec.TimestampExpire) {
				return nil, nil
			}
			to, err := domain.NextStatus(rec.Status, "expire")
			if err != nil {
				return nil, err
			}
			return &ports.ActivationMutation{Status: to, Tombstone: true, LastUsedAt: time.Now().UTC()}, nil
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "expiration sweep failed for activation",
				"operation", "sweep_expired_activations",
				"outcome", "failure",
				"activation_id", candidate.ActivationID,
				"error", err,
			)
			continue
		}
		if rec.Status == domain.StatusRemoved {
			swept++
			s.appendHistoryAndCallback(ctx, rec, "")
		}
	}

	if swept > 0 {
		s.logger.InfoContext(ctx, "expiration sweep completed",
			"operation", "sweep_expired_activations",
			"outcome", "success",
			"swept_count", swept,
			"candidate_count", len(candidates),
		)
	}
	return swept, nil
}

// RunExpirationSweep runs SweepExpiredActivations on a fixed interval until context
// cancellation (spec §5 "periodic expiration sweep, default every 60s").
func (s *Service) RunExpirationSweep(ctx context.Context, interval time.Duration, batchSize int) error {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepExpiredActivations(ctx, batchSize); err != nil {
			s.logger.ErrorContext(ctx, "expiration sweep iteration failed",
				"operation", "run_expiration_sweep",
				"outcome", "failure",
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
