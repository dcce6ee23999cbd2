package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/taskhub/backend/internal/config"
	"github.com/taskhub/backend/internal/models"
	"github.com/taskhub/backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const retentionLockName = "activity_retention"

// RetentionScheduler prunes old activity log rows on a cron schedule.
type RetentionScheduler struct {
	db         *gorm.DB
	activity   *ActivityService
	cfg        config.ActivityConfig
	instanceID string
	cron       *cron.Cron
	entryID    cron.EntryID
}

func NewRetentionScheduler(db *gorm.DB, activity *ActivityService, cfg config.ActivityConfig) *RetentionScheduler {
	return &RetentionScheduler{
		db:         db,
		activity:   activity,
		cfg:        cfg,
		instanceID: uuid.New().String(),
	}
}

// Start registers the cleanup job. It does nothing when retention is disabled.
func (s *RetentionScheduler) Start() error {
	if s.cfg.RetentionDays <= 0 {
		logger.Infof("[Retention] Activity retention disabled")
		return nil
	}

	s.cron = cron.New()
	entryID, err := s.cron.AddFunc(s.cfg.CleanupCron, func() {
		if _, err := s.RunOnce(context.Background(), time.Now()); err != nil {
			logger.Error().Err(err).Msg("[Retention] cleanup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup cron %q: %w", s.cfg.CleanupCron, err)
	}
	s.entryID = entryID
	s.cron.Start()

	logger.Infof("[Retention] Scheduled activity cleanup (cron: %s, keep %d days)", s.cfg.CleanupCron, s.cfg.RetentionDays)
	return nil
}

func (s *RetentionScheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RunOnce claims the run for the day of now and deletes expired rows. When
// another instance already claimed the day it returns 0 without deleting.
func (s *RetentionScheduler) RunOnce(ctx context.Context, now time.Time) (int64, error) {
	claimed, err := s.claim(ctx, now)
	if err != nil {
		return 0, err
	}
	if !claimed {
		logger.Debug().Str("instance", s.instanceID).Msg("[Retention] run already claimed")
		return 0, nil
	}

	deleted, err := s.activity.CleanupOld(ctx, s.cfg.RetentionDays)
	if err != nil {
		if releaseErr := s.release(ctx, now); releaseErr != nil {
			logger.Error().Err(releaseErr).Msg("[Retention] failed to release lock")
		}
		return 0, err
	}
	logger.Info().Int64("deleted", deleted).Int("retention_days", s.cfg.RetentionDays).Msg("[Retention] activity cleanup finished")
	return deleted, nil
}

func (s *RetentionScheduler) claim(ctx context.Context, now time.Time) (bool, error) {
	lock := models.SchedulerLock{
		LockName:  retentionLockName,
		LockKey:   now.Format(models.DateLayout),
		LockedBy:  s.instanceID,
		LockedAt:  now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	// the unique index on (lock_name, lock_key) lets exactly one instance insert
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&lock)
	if result.Error != nil {
		return false, fmt.Errorf("create scheduler lock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	// expired locks are only bookkeeping
	err := s.db.WithContext(ctx).
		Where("lock_name = ? AND expires_at < ?", retentionLockName, now.Add(-7*24*time.Hour)).
		Delete(&models.SchedulerLock{}).Error
	if err != nil {
		logger.Warn().Err(err).Msg("[Retention] failed to prune old locks")
	}
	return true, nil
}

// release drops this instance's claim so a later run the same day can retry.
func (s *RetentionScheduler) release(ctx context.Context, now time.Time) error {
	return s.db.WithContext(ctx).
		Where("lock_name = ? AND lock_key = ? AND locked_by = ?", retentionLockName, now.Format(models.DateLayout), s.instanceID).
		Delete(&models.SchedulerLock{}).Error
}
