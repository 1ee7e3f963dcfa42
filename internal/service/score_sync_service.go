package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iels-id/learner-api/internal/models"
	"github.com/iels-id/learner-api/pkg/jobs"
	"github.com/iels-id/learner-api/pkg/observability"
	"github.com/iels-id/learner-api/pkg/sheets"
)

const scoreSyncBatchSize = 100

type scoreSyncStore interface {
	GetByID(ctx context.Context, id string) (*models.ScoreSync, error)
	MarkSynced(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id, message string, status models.ScoreSyncStatus) error
	ListDue(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]models.ScoreSync, error)
}

type scorePusher interface {
	PushScore(ctx context.Context, email, kind string, score float64) error
}

// ScoreSyncConfig tunes outbox delivery. MaxRetries bounds one queue round;
// MaxAttempts bounds the pushes a row gets across all reconciler rounds.
type ScoreSyncConfig struct {
	MaxRetries        int
	MaxAttempts       int
	ReconcileInterval time.Duration
}

// ScoreSyncService delivers outbox rows to the registration spreadsheet.
type ScoreSyncService struct {
	repo    scoreSyncStore
	source  scorePusher
	queue   jobDispatcher
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ScoreSyncConfig
	report  ErrorReporter
	now     func() time.Time
}

// NewScoreSyncService constructs the service. SetQueue must be called before
// RecoverPending or StartReconciler since the queue is built around Handle.
func NewScoreSyncService(repo scoreSyncStore, source scorePusher, metrics *MetricsService, logger *zap.Logger, cfg ScoreSyncConfig) *ScoreSyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4 * (cfg.MaxRetries + 1)
	}
	return &ScoreSyncService{
		repo:    repo,
		source:  source,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		report:  observability.CaptureErr,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetQueue attaches the queue used to replay rows.
func (s *ScoreSyncService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// Handle pushes one outbox row. Returning an error makes the queue retry.
func (s *ScoreSyncService) Handle(ctx context.Context, job jobs.Job) error {
	row, err := s.repo.GetByID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("score sync row vanished", zap.String("outbox_id", job.ID))
			return nil
		}
		return err
	}
	if row.Status == models.ScoreSyncStatusSynced || row.Status == models.ScoreSyncStatusRejected {
		return nil
	}

	if err := s.source.PushScore(ctx, row.Email, row.AttemptKind, row.Score); err != nil {
		return s.fail(ctx, row, job, err)
	}

	if err := s.repo.MarkSynced(ctx, row.ID, s.now()); err != nil {
		s.logger.Warn("failed to mark score synced", zap.String("outbox_id", row.ID), zap.Error(err))
		return err
	}
	s.metrics.RecordScoreSync(SyncOutcomeSynced)
	return nil
}

func (s *ScoreSyncService) fail(ctx context.Context, row *models.ScoreSync, job jobs.Job, err error) error {
	exhausted := row.Attempts+1 >= s.cfg.MaxAttempts
	status := models.ScoreSyncStatusPending
	switch {
	case errors.Is(err, sheets.ErrPermanent):
		status = models.ScoreSyncStatusRejected
	case exhausted || job.Attempt >= s.cfg.MaxRetries:
		status = models.ScoreSyncStatusFailed
	}
	if recErr := s.repo.RecordFailure(ctx, row.ID, err.Error(), status); recErr != nil {
		s.logger.Warn("failed to record score sync failure", zap.String("outbox_id", row.ID), zap.Error(recErr))
	}

	fields := []zap.Field{zap.String("outbox_id", row.ID), zap.String("attempt_id", row.AttemptID), zap.Error(err)}
	switch status {
	case models.ScoreSyncStatusRejected:
		s.metrics.RecordScoreSync(SyncOutcomeRejected)
		s.logger.Error("score sync rejected by spreadsheet", fields...)
		s.report(err, map[string]string{"operation": "score_sync", "attempt_id": row.AttemptID})
		return nil
	case models.ScoreSyncStatusFailed:
		s.metrics.RecordScoreSync(SyncOutcomeFailed)
		if exhausted {
			// out of replays: the reconciler no longer lists this row
			s.logger.Error("score sync exhausted", append(fields, zap.Int("attempts", row.Attempts+1))...)
			s.report(err, map[string]string{"operation": "score_sync", "attempt_id": row.AttemptID})
			return nil
		}
		s.logger.Warn("score sync gave up for this round", fields...)
	default:
		s.metrics.RecordScoreSync(SyncOutcomeRetry)
	}
	return err
}

// RecoverPending replays every unsynced row, e.g. after a restart.
func (s *ScoreSyncService) RecoverPending(ctx context.Context) {
	s.replay(ctx, s.now())
}

// StartReconciler periodically replays rows that have been idle for a full interval.
func (s *ScoreSyncService) StartReconciler(ctx context.Context) {
	if s.cfg.ReconcileInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.replay(ctx, s.now().Add(-s.cfg.ReconcileInterval))
			}
		}
	}()
}

func (s *ScoreSyncService) replay(ctx context.Context, cutoff time.Time) int {
	if s.queue == nil {
		return 0
	}
	rows, err := s.repo.ListDue(ctx, cutoff, s.cfg.MaxAttempts, scoreSyncBatchSize)
	if err != nil {
		s.logger.Warn("failed to list unsynced scores", zap.Error(err))
		return 0
	}
	queued := 0
	for _, row := range rows {
		if err := s.queue.TryEnqueue(jobs.Job{ID: row.ID, Type: ScoreSyncJobType}); err != nil {
			s.logger.Warn("failed to requeue score sync", zap.String("outbox_id", row.ID), zap.Error(err))
			if errors.Is(err, jobs.ErrQueueFull) {
				break
			}
			continue
		}
		queued++
	}
	if queued > 0 {
		s.logger.Info("score syncs requeued", zap.Int("count", queued))
	}
	return queued
}
