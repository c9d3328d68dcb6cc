package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cinescope/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrJobActive is returned when a new job is requested while another is
// still pending or running.
var ErrJobActive = fmt.Errorf("another import job is already active")

// ErrNoActiveJob is returned by Stop when nothing is running.
var ErrNoActiveJob = fmt.Errorf("no active job to stop")

// JobManager admits at most one background job at a time and owns the
// cancellation handle for the running one.
type JobManager struct {
	db     *gorm.DB
	logger *zap.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	activeID uint
}

// NewJobManager creates a job manager.
func NewJobManager(db *gorm.DB, logger *zap.Logger) *JobManager {
	return &JobManager{db: db, logger: logger}
}

// Begin admits a new job of the given kind. The admission check and the
// job insert happen in one transaction so two concurrent requests cannot
// both pass the gate. The returned context is cancelled by Stop.
func (m *JobManager) Begin(kind string) (*models.ImportJob, context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	job := &models.ImportJob{
		Kind:      kind,
		Status:    models.JobRunning,
		StartedAt: &now,
	}

	err := m.db.Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&models.ImportJob{}).
			Where("status IN ?", []string{models.JobPending, models.JobRunning}).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return ErrJobActive
		}
		return tx.Create(job).Error
	})
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.activeID = job.ID

	m.logger.Info("Background job started", zap.String("kind", kind), zap.Uint("job_id", job.ID))
	return job, ctx, nil
}

// Progress records per-item progress on a job.
func (m *JobManager) Progress(jobID uint, processed, total int, current string) {
	updates := map[string]interface{}{
		"processed_items": processed,
		"total_items":     total,
		"current_item":    current,
	}
	if err := m.db.Model(&models.ImportJob{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		m.logger.Warn("Failed to record job progress", zap.Uint("job_id", jobID), zap.Error(err))
	}
}

// Finish moves a job to a terminal status and releases the gate.
func (m *JobManager) Finish(jobID uint, status string, errMsg string) {
	m.mu.Lock()
	if m.activeID == jobID {
		if m.cancel != nil {
			m.cancel()
		}
		m.cancel = nil
		m.activeID = 0
	}
	m.mu.Unlock()

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": now,
		"current_item": nil,
	}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}
	if err := m.db.Model(&models.ImportJob{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		m.logger.Error("Failed to finalize job", zap.Uint("job_id", jobID), zap.Error(err))
	}

	m.logger.Info("Background job finished", zap.Uint("job_id", jobID), zap.String("status", status))
}

// Stop cancels the running job. The worker observes the cancelled context
// and finalizes itself as stopped.
func (m *JobManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return ErrNoActiveJob
	}
	m.cancel()
	m.logger.Info("Stop requested for active job", zap.Uint("job_id", m.activeID))
	return nil
}

// Latest returns the most recent job, or nil when none exists.
func (m *JobManager) Latest() (*models.ImportJob, error) {
	var job models.ImportJob
	err := m.db.Order("created_at DESC, id DESC").First(&job).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}
