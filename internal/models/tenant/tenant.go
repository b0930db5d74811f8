package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no tenant row exists for an id
var ErrNotFound = errors.New("tenant not found")

// Tenant maps a platform organization to an internal tenant id.
// ExternalTenant carries the org number the gateway stamps on identities.
type Tenant struct {
	ID             int64 `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Name           string
	ExternalTenant string
	Description    string
}

// Repository fetches tenants by id
type Repository interface {
	Find(ctx context.Context, logger *logrus.Entry, tenantID int64) (*Tenant, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewGORMRepository creates a new repository object
func NewGORMRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// Find fetches one tenant by id
func (gr *gormRepository) Find(ctx context.Context, logger *logrus.Entry, tenantID int64) (*Tenant, error) {
	var t Tenant
	err := gr.db.Where("id = ?", tenantID).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		logger.Errorf("Error fetching tenant %d %v", tenantID, err)
		return nil, err
	}
	return &t, nil
}
