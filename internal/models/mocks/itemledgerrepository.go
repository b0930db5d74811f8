package mocks

import (
	"context"

	"github.com/RedHatInsights/document_source_sync/internal/models/itemledger"
	"github.com/sirupsen/logrus"
)

type ledgerKey struct {
	SourceID   int64
	RemotePath string
	RemoteID   string
}

//MockItemLedgerRepository used for testing
type MockItemLedgerRepository struct {
	Entries      map[ledgerKey]bool
	ChecksCalled int
	AddsCalled   int
	ExistsError  error
	RecordError  error
}

//Seed marks an object as already imported
func (milr *MockItemLedgerRepository) Seed(sourceID int64, remotePath string, remoteID string) {
	if milr.Entries == nil {
		milr.Entries = make(map[ledgerKey]bool)
	}
	milr.Entries[ledgerKey{sourceID, remotePath, remoteID}] = true
}

//Exists reports whether the object was imported before
func (milr *MockItemLedgerRepository) Exists(ctx context.Context, logger *logrus.Entry, sourceID int64, remotePath string, remoteID string) (bool, error) {
	milr.ChecksCalled++
	if milr.ExistsError != nil {
		return false, milr.ExistsError
	}
	return milr.Entries[ledgerKey{sourceID, remotePath, remoteID}], nil
}

//Record writes a ledger entry, failing like a unique violation on replays
func (milr *MockItemLedgerRepository) Record(ctx context.Context, logger *logrus.Entry, entry *itemledger.Entry) error {
	if milr.RecordError != nil {
		return milr.RecordError
	}
	key := ledgerKey{entry.SourceID, entry.RemotePath, entry.RemoteID}
	if milr.Entries[key] {
		return itemledger.ErrAlreadyImported
	}
	if milr.Entries == nil {
		milr.Entries = make(map[ledgerKey]bool)
	}
	milr.Entries[key] = true
	milr.AddsCalled++
	return nil
}
