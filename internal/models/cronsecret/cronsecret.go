package cronsecret

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a tenant has no cron secret configured
var ErrNotFound = errors.New("no cron secret for tenant")

// TenantCronSecret authenticates tenant scoped unattended triggers. Only the
// salted hash of the shared secret is ever stored.
type TenantCronSecret struct {
	ID              int64 `gorm:"primaryKey"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	TenantID        int64 `gorm:"uniqueIndex"`
	KeyHash         string
	Enabled         bool
	DefaultRunLimit int
}

// Repository fetches cron secrets by tenant
type Repository interface {
	Get(ctx context.Context, logger *logrus.Entry, tenantID int64) (*TenantCronSecret, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewGORMRepository creates a new repository object
func NewGORMRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// Get fetches the cron secret for one tenant
func (gr *gormRepository) Get(ctx context.Context, logger *logrus.Entry, tenantID int64) (*TenantCronSecret, error) {
	var secret TenantCronSecret
	err := gr.db.Where("tenant_id = ?", tenantID).First(&secret).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		logger.Errorf("Error fetching cron secret for tenant %d %v", tenantID, err)
		return nil, err
	}
	return &secret, nil
}
