package sourcesecret

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RedHatInsights/document_source_sync/internal/secrets"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a source has no credential on record
var ErrNotFound = errors.New("no secret on record for source")

// SourceSecret holds the encrypted credential blob for one source (1:1)
type SourceSecret struct {
	ID        int64 `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	TenantID  int64
	SourceID  int64          `gorm:"uniqueIndex"`
	Blob      datatypes.JSON `gorm:"not null"`
}

type blobEnvelope struct {
	Ciphertext string `json:"ciphertext"`
}

// Repository loads and rotates source credentials. Values cross this
// boundary as plaintext maps; the envelope encryption happens here and
// nowhere else.
type Repository interface {
	Get(ctx context.Context, logger *logrus.Entry, tenantID int64, sourceID int64) (map[string]string, error)
	Upsert(ctx context.Context, logger *logrus.Entry, tenantID int64, sourceID int64, values map[string]string) error
}

type gormRepository struct {
	db     *gorm.DB
	cipher *secrets.Cipher
}

// NewGORMRepository creates a new repository object
func NewGORMRepository(db *gorm.DB, cipher *secrets.Cipher) Repository {
	return &gormRepository{db: db, cipher: cipher}
}

// Get fetches and decrypts the credential blob for a source
func (gr *gormRepository) Get(ctx context.Context, logger *logrus.Entry, tenantID int64, sourceID int64) (map[string]string, error) {
	var secret SourceSecret
	query := gr.db.Where("source_id = ?", sourceID)
	if tenantID != 0 {
		query = query.Where("tenant_id = ?", tenantID)
	}
	if err := query.First(&secret).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		logger.Errorf("Error fetching secret for source %d %v", sourceID, err)
		return nil, err
	}
	var envelope blobEnvelope
	if err := json.Unmarshal(secret.Blob, &envelope); err != nil {
		return nil, fmt.Errorf("Error reading secret envelope for source %d: %v", sourceID, err)
	}
	values, err := gr.cipher.OpenMap(envelope.Ciphertext)
	if err != nil {
		logger.Errorf("Error decrypting secret for source %d %v", sourceID, err)
		return nil, err
	}
	return values, nil
}

// Upsert encrypts and stores the credential blob, replacing any previous
// blob for the source atomically. Rotation is a whole blob replace.
func (gr *gormRepository) Upsert(ctx context.Context, logger *logrus.Entry, tenantID int64, sourceID int64, values map[string]string) error {
	ciphertext, err := gr.cipher.SealMap(values)
	if err != nil {
		logger.Errorf("Error encrypting secret for source %d %v", sourceID, err)
		return err
	}
	blob, err := json.Marshal(blobEnvelope{Ciphertext: ciphertext})
	if err != nil {
		return err
	}
	secret := SourceSecret{TenantID: tenantID, SourceID: sourceID, Blob: blob}
	result := gr.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"blob", "updated_at"}),
	}).Create(&secret)
	if result.Error != nil {
		logger.Errorf("Error storing secret for source %d %v", sourceID, result.Error)
		return fmt.Errorf("Error storing secret: %v", result.Error)
	}
	return nil
}
