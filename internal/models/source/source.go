package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Provider identities supported by the sync engine
const (
	ProviderSFTP    = "sftp"
	ProviderFTPS    = "ftps"
	ProviderGDrive  = "gdrive"
	ProviderDropbox = "dropbox"
)

// ErrNotFound is returned when a source does not exist for the tenant
var ErrNotFound = errors.New("source not found")

// Source is one configured external feed to poll for files
type Source struct {
	ID              int64 `gorm:"primaryKey"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	TenantID        int64
	Provider        string
	Enabled         bool
	ScheduleMinutes int
	LastRunAt       sql.NullTime
	Settings        datatypes.JSON
}

// Due reports whether an automation tier trigger should act on this source.
// A source that has never run is immediately due.
func (s *Source) Due(now time.Time) bool {
	if !s.LastRunAt.Valid {
		return true
	}
	return now.Sub(s.LastRunAt.Time) >= time.Duration(s.ScheduleMinutes)*time.Minute
}

// Repository provides tenant scoped access to sources
type Repository interface {
	Find(ctx context.Context, logger *logrus.Entry, tenantID int64, sourceID int64) (*Source, error)
	ListEnabled(ctx context.Context, logger *logrus.Entry, tenantID int64) ([]Source, error)
	UpdateLastRun(ctx context.Context, logger *logrus.Entry, src *Source, seen sql.NullTime, now time.Time) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewGORMRepository creates a new repository object
func NewGORMRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// Find fetches a single source. A tenantID of 0 means the caller holds the
// global automation tier and is not scoped to one tenant.
func (gr *gormRepository) Find(ctx context.Context, logger *logrus.Entry, tenantID int64, sourceID int64) (*Source, error) {
	var src Source
	query := gr.db.Where("id = ?", sourceID)
	if tenantID != 0 {
		query = query.Where("tenant_id = ?", tenantID)
	}
	err := query.First(&src).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		logger.Errorf("Error finding source %d %v", sourceID, err)
		return nil, err
	}
	return &src, nil
}

// ListEnabled returns the enabled sources for a tenant, or for all tenants
// when tenantID is 0 (global automation tier).
func (gr *gormRepository) ListEnabled(ctx context.Context, logger *logrus.Entry, tenantID int64) ([]Source, error) {
	var sources []Source
	query := gr.db.Where("enabled = ?", true)
	if tenantID != 0 {
		query = query.Where("tenant_id = ?", tenantID)
	}
	if err := query.Order("id").Find(&sources).Error; err != nil {
		logger.Errorf("Error listing sources %v", err)
		return nil, err
	}
	return sources, nil
}

// UpdateLastRun advances last_run_at with a compare and set guarded by the
// value read at the start of the run, so two overlapping triggers cannot both
// believe they won the due check. Losing the race is not an error.
func (gr *gormRepository) UpdateLastRun(ctx context.Context, logger *logrus.Entry, src *Source, seen sql.NullTime, now time.Time) error {
	query := gr.db.Model(&Source{}).Where("id = ? AND tenant_id = ?", src.ID, src.TenantID)
	if seen.Valid {
		query = query.Where("last_run_at = ?", seen.Time)
	} else {
		query = query.Where("last_run_at IS NULL")
	}
	result := query.Update("last_run_at", now)
	if result.Error != nil {
		logger.Errorf("Error updating last_run_at for source %d %v", src.ID, result.Error)
		return fmt.Errorf("Error updating last_run_at: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		logger.Infof("Source %d last_run_at moved underneath us, leaving it alone", src.ID)
		return nil
	}
	src.LastRunAt = sql.NullTime{Valid: true, Time: now}
	return nil
}
