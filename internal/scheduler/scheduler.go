package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/billforge/billforge/internal/clock"
	obsmetrics "github.com/billforge/billforge/internal/observability/metrics"
	scheduledomain "github.com/billforge/billforge/internal/schedule/domain"
)

const jobGenerateDocuments = "generate_documents"

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	ScheduleSvc scheduledomain.Service
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      Config `optional:"true"`
}

type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	clock       clock.Clock
	scheduleSvc scheduledomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.ScheduleSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         cfg,
		genID:       p.GenID,
		clock:       p.Clock,
		scheduleSvc: p.ScheduleSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, jobGenerateDocuments, s.cfg.BatchSize, s.cfg.JobTimeout, s.GenerateDocumentsJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// GenerateDocumentsJob drains due schedules in batches. A batch whose
// schedules all failed stops the drain; failed schedules stay due and
// retry on the next tick rather than spinning here.
func (s *Scheduler) GenerateDocumentsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, jobGenerateDocuments, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	var jobErr error

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		batch, err := s.runBatch(ctx, run)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			break
		}
		if batch.Processed == 0 {
			break
		}
	}

	return jobErr
}

// RunBatch runs exactly one claim-and-materialize pass. External
// triggers call this and get the per-schedule results back.
func (s *Scheduler) RunBatch(ctx context.Context) (scheduledomain.BatchResult, error) {
	ctx, run, owner := s.ensureJobRun(ctx, jobGenerateDocuments, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	return s.runBatch(ctx, run)
}

func (s *Scheduler) runBatch(ctx context.Context, run *jobRun) (scheduledomain.BatchResult, error) {
	schedMetrics := obsmetrics.Scheduler()

	batch, err := s.scheduleSvc.Run(ctx, s.clock.Now())
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.batch.failed", jobGenerateDocuments, 0, err)
		return batch, err
	}

	run.AddProcessed(batch.Processed)
	schedMetrics.AddBatchProcessed(jobGenerateDocuments, "recurring_schedules", batch.Processed)

	for _, result := range batch.Results {
		switch result.Status {
		case scheduledomain.RunStatusGenerated:
			schedMetrics.IncDocumentGenerated(string(result.Status))
		case scheduledomain.RunStatusFailed:
			run.IncError()
			schedMetrics.IncScheduleFailed(errors.New(result.Error))
			s.logger(ctx).Warn("scheduler.schedule.failed",
				zap.String("job", jobGenerateDocuments),
				zap.String("schedule_id", result.ScheduleID.String()),
				zap.String("error", result.Error),
			)
		}
	}

	return batch, nil
}
