package itemledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrAlreadyImported is returned by Record when another writer already
// recorded this remote identity. Callers treat it as "skip", not a failure;
// the uniqueness constraint is what keeps overlapping runs from double
// importing the same object.
var ErrAlreadyImported = errors.New("remote object already imported")

const uniqueViolation = "23505"

// Entry records one remote object ever imported for a source. Rows are
// written once and never updated or deleted by this subsystem.
type Entry struct {
	ID        int64 `gorm:"primaryKey"`
	CreatedAt time.Time
	TenantID  int64
	SourceID  int64 `gorm:"uniqueIndex:idx_ledger_identity,priority:1"`
	// Exactly one of RemotePath / RemoteID is populated, depending on the
	// provider family. The unused one stays "" so the composite unique
	// index covers both families.
	RemotePath         string `gorm:"uniqueIndex:idx_ledger_identity,priority:2"`
	RemoteID           string `gorm:"uniqueIndex:idx_ledger_identity,priority:3"`
	RemoteModifiedAt   time.Time
	RemoteSize         int64
	ImportedDocumentID string
	ImportedAt         time.Time
}

// Repository is the dedup ledger contract
type Repository interface {
	Exists(ctx context.Context, logger *logrus.Entry, sourceID int64, remotePath string, remoteID string) (bool, error)
	Record(ctx context.Context, logger *logrus.Entry, entry *Entry) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewGORMRepository creates a new repository object
func NewGORMRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// Exists checks whether a remote identity has already been imported
func (gr *gormRepository) Exists(ctx context.Context, logger *logrus.Entry, sourceID int64, remotePath string, remoteID string) (bool, error) {
	var count int64
	err := gr.db.Model(&Entry{}).
		Where("source_id = ? AND remote_path = ? AND remote_id = ?", sourceID, remotePath, remoteID).
		Count(&count).Error
	if err != nil {
		logger.Errorf("Error checking ledger for source %d %v", sourceID, err)
		return false, err
	}
	return count > 0, nil
}

// Record inserts a ledger entry, returning ErrAlreadyImported on a unique
// violation instead of overwriting. The read-before-write Exists check is an
// optimization only; this insert is the actual guarantee.
func (gr *gormRepository) Record(ctx context.Context, logger *logrus.Entry, entry *Entry) error {
	if entry.ImportedAt.IsZero() {
		entry.ImportedAt = time.Now().UTC()
	}
	if err := gr.db.Create(entry).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyImported
		}
		logger.Errorf("Error recording ledger entry for source %d %v", entry.SourceID, err)
		return fmt.Errorf("Error recording ledger entry: %v", err)
	}
	return nil
}
