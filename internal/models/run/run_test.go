package run

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RedHatInsights/document_source_sync/internal/models/testhelper"
	"github.com/stretchr/testify/assert"
)

var tenantID = int64(99)
var sourceID = int64(1)

func TestOpen(t *testing.T) {
	gdb, mock, teardown := testhelper.MockDBSetup(t)
	defer teardown()
	ctx := context.TODO()
	rr := NewGORMRepository(gdb)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "runs"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))

	r, err := rr.Open(ctx, testhelper.TestLogger(), tenantID, sourceID)
	assert.Nil(t, err)
	assert.Equal(t, int64(12), r.ID)
	assert.Equal(t, StatusRunning, r.Status)
	assert.False(t, r.StartedAt.IsZero())
}

func TestClose(t *testing.T) {
	gdb, mock, teardown := testhelper.MockDBSetup(t)
	defer teardown()
	ctx := context.TODO()
	rr := NewGORMRepository(gdb)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "runs" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := &Run{ID: 12, TenantID: tenantID, SourceID: sourceID, Status: StatusRunning}
	err := rr.Close(ctx, testhelper.TestLogger(), r, StatusSuccess, 3, "imported 3 new files")
	assert.Nil(t, err)
	assert.Equal(t, StatusSuccess, r.Status)
	assert.Equal(t, 3, r.InsertedCount)
	assert.True(t, r.FinishedAt.Valid)
}

func TestCloseAlreadyClosed(t *testing.T) {
	gdb, mock, teardown := testhelper.MockDBSetup(t)
	defer teardown()
	ctx := context.TODO()
	rr := NewGORMRepository(gdb)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "runs" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	r := &Run{ID: 12, TenantID: tenantID, SourceID: sourceID, Status: StatusRunning}
	err := rr.Close(ctx, testhelper.TestLogger(), r, StatusError, 0, "boom")
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "already closed")
}

func TestCloseIllegalStatus(t *testing.T) {
	gdb, _, teardown := testhelper.MockDBSetup(t)
	defer teardown()
	ctx := context.TODO()
	rr := NewGORMRepository(gdb)

	r := &Run{ID: 12, Status: StatusRunning}
	err := rr.Close(ctx, testhelper.TestLogger(), r, StatusRunning, 0, "")
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "illegal run status transition")
}

func TestSweepStuck(t *testing.T) {
	gdb, mock, teardown := testhelper.MockDBSetup(t)
	defer teardown()
	ctx := context.TODO()
	rr := NewGORMRepository(gdb)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "runs" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	swept, err := rr.SweepStuck(ctx, testhelper.TestLogger(), 30*time.Minute)
	assert.Nil(t, err)
	assert.Equal(t, int64(2), swept)
}
