package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	campaigndomain "github.com/smallbiznis/merchline/internal/campaign/domain"
	"github.com/smallbiznis/merchline/internal/clock"
	"github.com/smallbiznis/merchline/internal/lock"
	obsmetrics "github.com/smallbiznis/merchline/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	jobNotificationRecheck = "notification_recheck"
	recheckGuardKey        = "merchline:scheduler:notification_recheck"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// Rechecker re-evaluates the notification rules of one campaign.
type Rechecker interface {
	RecheckNotifications(ctx context.Context, campaignID snowflake.ID) (int, error)
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      campaigndomain.Repository
	Campaigns campaigndomain.Service
	Locker    lock.Locker
	Metrics   *obsmetrics.Metrics `optional:"true"`
	Config    Config              `optional:"true"`
}

type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	repo      campaigndomain.Repository
	rechecker Rechecker
	locker    lock.Locker
	metrics   *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Repo == nil || p.Campaigns == nil || p.Locker == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		rechecker: p.Campaigns,
		locker:    p.Locker,
		metrics:   p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}

	err := fn(ctx)
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		s.metrics.RecordSchedulerJob(ctx, name, "ok")
		return nil
	}

	// deadline is a soft timeout; the next tick resumes the work
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.RecordSchedulerJob(ctx, name, "timeout")
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	s.metrics.RecordSchedulerJob(ctx, name, "error")
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runJob(ctx, jobNotificationRecheck, s.cfg.BatchSize, s.cfg.JobTimeout, s.NotificationRecheckJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// NotificationRecheckJob re-evaluates every campaign with an active notification rule so
// rules whose window reopened fire even when no new order arrives. A single replica runs
// the sweep at a time.
func (s *Scheduler) NotificationRecheckJob(ctx context.Context) error {
	release, err := s.locker.Acquire(ctx, recheckGuardKey)
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			s.logger(ctx).Debug("notification recheck already running elsewhere")
			return nil
		}
		return err
	}
	defer release()

	run := jobRunFromContext(ctx)
	var after snowflake.ID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ids, err := s.repo.ListCampaignsWithActiveRules(ctx, s.db, after, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fired, err := s.rechecker.RecheckNotifications(ctx, id)
			run.AddProcessed(1)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				run.IncError()
				s.logger(ctx).Warn("notification recheck failed",
					zap.String("campaign_id", id.String()),
					zap.Error(err),
				)
				continue
			}
			run.AddFired(fired)
		}
		if len(ids) < s.cfg.BatchSize {
			return nil
		}
		after = ids[len(ids)-1]
	}
}
