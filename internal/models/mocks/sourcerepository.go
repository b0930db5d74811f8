package mocks

import (
	"context"
	"database/sql"
	"time"

	"github.com/RedHatInsights/document_source_sync/internal/models/source"
	"github.com/sirupsen/logrus"
)

//MockSourceRepository used for testing
type MockSourceRepository struct {
	Sources          []source.Source
	FindsCalled      int
	ListsCalled      int
	LastRunsCalled   int
	FindError        error
	ListError        error
	UpdateError      error
	LastRunTimestamp time.Time
}

//Find a source by tenant and id, tenant 0 is unscoped
func (msr *MockSourceRepository) Find(ctx context.Context, logger *logrus.Entry, tenantID int64, sourceID int64) (*source.Source, error) {
	msr.FindsCalled++
	if msr.FindError != nil {
		return nil, msr.FindError
	}
	for i := range msr.Sources {
		src := msr.Sources[i]
		if src.ID == sourceID && (tenantID == 0 || src.TenantID == tenantID) {
			return &src, nil
		}
	}
	return nil, source.ErrNotFound
}

//ListEnabled sources for a tenant, tenant 0 means all tenants
func (msr *MockSourceRepository) ListEnabled(ctx context.Context, logger *logrus.Entry, tenantID int64) ([]source.Source, error) {
	msr.ListsCalled++
	if msr.ListError != nil {
		return nil, msr.ListError
	}
	var result []source.Source
	for _, src := range msr.Sources {
		if src.Enabled && (tenantID == 0 || src.TenantID == tenantID) {
			result = append(result, src)
		}
	}
	return result, nil
}

//UpdateLastRun records the new last run timestamp
func (msr *MockSourceRepository) UpdateLastRun(ctx context.Context, logger *logrus.Entry, src *source.Source, seen sql.NullTime, now time.Time) error {
	if msr.UpdateError != nil {
		return msr.UpdateError
	}
	msr.LastRunsCalled++
	msr.LastRunTimestamp = now
	for i := range msr.Sources {
		if msr.Sources[i].ID == src.ID {
			msr.Sources[i].LastRunAt = sql.NullTime{Valid: true, Time: now}
		}
	}
	src.LastRunAt = sql.NullTime{Valid: true, Time: now}
	return nil
}
