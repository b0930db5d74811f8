package mocks

import (
	"context"

	"github.com/RedHatInsights/document_source_sync/internal/models/sourcesecret"
	"github.com/sirupsen/logrus"
)

//MockSourceSecretRepository used for testing
type MockSourceSecretRepository struct {
	Secrets       map[int64]map[string]string
	GetsCalled    int
	UpsertsCalled int
	GetError      error
	UpsertError   error
}

//Get the decrypted secret values for a source
func (mssr *MockSourceSecretRepository) Get(ctx context.Context, logger *logrus.Entry, tenantID int64, sourceID int64) (map[string]string, error) {
	mssr.GetsCalled++
	if mssr.GetError != nil {
		return nil, mssr.GetError
	}
	values, ok := mssr.Secrets[sourceID]
	if !ok {
		return nil, sourcesecret.ErrNotFound
	}
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return copied, nil
}

//Upsert stores the secret values for a source
func (mssr *MockSourceSecretRepository) Upsert(ctx context.Context, logger *logrus.Entry, tenantID int64, sourceID int64, values map[string]string) error {
	if mssr.UpsertError != nil {
		return mssr.UpsertError
	}
	mssr.UpsertsCalled++
	if mssr.Secrets == nil {
		mssr.Secrets = make(map[int64]map[string]string)
	}
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	mssr.Secrets[sourceID] = copied
	return nil
}
