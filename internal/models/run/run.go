package run

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Run statuses. RUNNING is the only non terminal state and every run moves
// to exactly one terminal state.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Run is one execution attempt of the sync algorithm against one source
type Run struct {
	ID            int64 `gorm:"primaryKey"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	TenantID      int64
	SourceID      int64
	Status        string
	StartedAt     time.Time
	FinishedAt    sql.NullTime
	InsertedCount int
	Message       string
}

// Repository opens and closes run records
type Repository interface {
	Open(ctx context.Context, logger *logrus.Entry, tenantID int64, sourceID int64) (*Run, error)
	Close(ctx context.Context, logger *logrus.Entry, r *Run, status string, insertedCount int, message string) error
	SweepStuck(ctx context.Context, logger *logrus.Entry, olderThan time.Duration) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewGORMRepository creates a new repository object
func NewGORMRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// Open creates a run in RUNNING state before any connector I/O happens
func (gr *gormRepository) Open(ctx context.Context, logger *logrus.Entry, tenantID int64, sourceID int64) (*Run, error) {
	r := Run{
		TenantID:  tenantID,
		SourceID:  sourceID,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := gr.db.Create(&r).Error; err != nil {
		logger.Errorf("Error opening run for source %d %v", sourceID, err)
		return nil, fmt.Errorf("Error opening run: %v", err)
	}
	return &r, nil
}

// Close moves a run to a terminal state. The status guard in the WHERE
// clause keeps the RUNNING to terminal transition monotonic even if two
// writers try to close the same run.
func (gr *gormRepository) Close(ctx context.Context, logger *logrus.Entry, r *Run, status string, insertedCount int, message string) error {
	if status != StatusSuccess && status != StatusError {
		return fmt.Errorf("illegal run status transition to %s", status)
	}
	finished := time.Now().UTC()
	result := gr.db.Model(&Run{}).
		Where("id = ? AND status = ?", r.ID, StatusRunning).
		Updates(map[string]interface{}{
			"status":         status,
			"finished_at":    finished,
			"inserted_count": insertedCount,
			"message":        message,
		})
	if result.Error != nil {
		logger.Errorf("Error closing run %d %v", r.ID, result.Error)
		return fmt.Errorf("Error closing run: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("run %d already closed", r.ID)
	}
	r.Status = status
	r.FinishedAt = sql.NullTime{Valid: true, Time: finished}
	r.InsertedCount = insertedCount
	r.Message = message
	return nil
}

// SweepStuck closes runs that have sat in RUNNING past the timeout, e.g.
// after a process crash mid run. They are closed as errors so operators can
// see them; the ledger keeps a rerun from double importing anything.
func (gr *gormRepository) SweepStuck(ctx context.Context, logger *logrus.Entry, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result := gr.db.Model(&Run{}).
		Where("status = ? AND started_at < ?", StatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":      StatusError,
			"finished_at": time.Now().UTC(),
			"message":     "run timed out and was closed by the sweeper",
		})
	if result.Error != nil {
		logger.Errorf("Error sweeping stuck runs %v", result.Error)
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		logger.Infof("Closed %d stuck runs", result.RowsAffected)
	}
	return result.RowsAffected, nil
}
