package mocks

import (
	"context"

	"github.com/RedHatInsights/document_source_sync/internal/models/tenant"
	"github.com/sirupsen/logrus"
)

//MockTenantRepository used for testing
type MockTenantRepository struct {
	Tenants     map[int64]*tenant.Tenant
	FindsCalled int
	FindError   error
}

//Find a tenant by id
func (mtr *MockTenantRepository) Find(ctx context.Context, logger *logrus.Entry, tenantID int64) (*tenant.Tenant, error) {
	mtr.FindsCalled++
	if mtr.FindError != nil {
		return nil, mtr.FindError
	}
	t, ok := mtr.Tenants[tenantID]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	copied := *t
	return &copied, nil
}
