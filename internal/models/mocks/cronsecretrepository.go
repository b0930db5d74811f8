package mocks

import (
	"context"

	"github.com/RedHatInsights/document_source_sync/internal/models/cronsecret"
	"github.com/sirupsen/logrus"
)

//MockCronSecretRepository used for testing
type MockCronSecretRepository struct {
	Secrets    map[int64]*cronsecret.TenantCronSecret
	GetsCalled int
	GetError   error
}

//Get the cron secret for a tenant
func (mcsr *MockCronSecretRepository) Get(ctx context.Context, logger *logrus.Entry, tenantID int64) (*cronsecret.TenantCronSecret, error) {
	mcsr.GetsCalled++
	if mcsr.GetError != nil {
		return nil, mcsr.GetError
	}
	secret, ok := mcsr.Secrets[tenantID]
	if !ok {
		return nil, cronsecret.ErrNotFound
	}
	return secret, nil
}
