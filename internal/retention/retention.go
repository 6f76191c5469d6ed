// Package retention sweeps abandoned pending messages. Without it the
// pending table only ever grows: a submitter who never completes payment
// leaves a row nobody will consume.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"paidwall/internal/config"
	"paidwall/internal/service"
	"paidwall/pkg/metrics"
)

const retryInterval = 30 * time.Second

type Janitor struct {
	log  *zap.Logger
	repo service.WallRepository
	cfg  config.Retention
}

func NewJanitor(log *zap.Logger, repo service.WallRepository, cfg config.Retention) *Janitor {
	return &Janitor{
		log:  log,
		repo: repo,
		cfg:  cfg,
	}
}

// Start launches the sweep scheduler and returns a cancel func. When
// retention is disabled the cancel func is a no-op.
func (j *Janitor) Start(ctx context.Context) (context.CancelFunc, error) {
	if !j.cfg.Enabled {
		j.log.Info("pending retention disabled")
		return func() {}, nil
	}

	if !gronx.IsValid(j.cfg.Cron) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", j.cfg.Cron)
	}

	if j.cfg.TTL <= 0 {
		return nil, fmt.Errorf("retention ttl must be positive, got %s", j.cfg.TTL)
	}

	ctx, cancel := context.WithCancel(ctx)
	go j.runScheduler(ctx)

	j.log.Info("pending retention scheduler started",
		zap.String("cron", j.cfg.Cron),
		zap.Duration("ttl", j.cfg.TTL),
	)

	return cancel, nil
}

func (j *Janitor) runScheduler(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			j.log.Info("pending retention scheduler stopping")
			return
		default:
		}

		next, err := gronx.NextTickAfter(j.cfg.Cron, time.Now().UTC(), false)
		if err != nil {
			j.log.Error("failed to compute next retention tick", zap.Error(err))
			select {
			case <-time.After(retryInterval):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			j.log.Info("pending retention scheduler stopping")
			return
		}

		if err := j.RunOnce(ctx); err != nil {
			j.log.Error("pending retention sweep failed", zap.Error(err))
		}
	}
}

// RunOnce performs a single sweep, deleting pending messages older than TTL.
func (j *Janitor) RunOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.cfg.TTL)

	deleted, err := j.repo.DeleteExpiredPending(ctx, cutoff)
	if err != nil {
		return err
	}

	if deleted > 0 {
		metrics.PendingExpired.Add(float64(deleted))
		j.log.Info("expired pending messages deleted",
			zap.Int64("count", deleted),
			zap.Time("cutoff", cutoff),
		)
	}

	return nil
}
