package mocks

import (
	"context"
	"time"

	"github.com/RedHatInsights/document_source_sync/internal/models/run"
	"github.com/sirupsen/logrus"
)

//MockRunRepository used for testing
type MockRunRepository struct {
	OpensCalled  int
	ClosesCalled int
	SweepsCalled int
	LastStatus   string
	LastInserted int
	LastMessage  string
	OpenError    error
	CloseError   error
	SweepError   error
	SweptCount   int64

	nextID int64
}

//Open starts a run record in the running state
func (mrr *MockRunRepository) Open(ctx context.Context, logger *logrus.Entry, tenantID int64, sourceID int64) (*run.Run, error) {
	if mrr.OpenError != nil {
		return nil, mrr.OpenError
	}
	mrr.OpensCalled++
	mrr.nextID++
	return &run.Run{ID: mrr.nextID, TenantID: tenantID, SourceID: sourceID, Status: run.StatusRunning, StartedAt: time.Now()}, nil
}

//Close finishes a run with a terminal status
func (mrr *MockRunRepository) Close(ctx context.Context, logger *logrus.Entry, r *run.Run, status string, insertedCount int, message string) error {
	if mrr.CloseError != nil {
		return mrr.CloseError
	}
	mrr.ClosesCalled++
	mrr.LastStatus = status
	mrr.LastInserted = insertedCount
	mrr.LastMessage = message
	return nil
}

//SweepStuck closes runs stuck in the running state
func (mrr *MockRunRepository) SweepStuck(ctx context.Context, logger *logrus.Entry, olderThan time.Duration) (int64, error) {
	mrr.SweepsCalled++
	if mrr.SweepError != nil {
		return 0, mrr.SweepError
	}
	return mrr.SweptCount, nil
}
