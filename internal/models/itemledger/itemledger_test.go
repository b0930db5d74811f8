package itemledger

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RedHatInsights/document_source_sync/internal/models/testhelper"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

var sourceID = int64(1)

func TestExists(t *testing.T) {
	gdb, mock, teardown := testhelper.MockDBSetup(t)
	defer teardown()
	ctx := context.TODO()
	ilr := NewGORMRepository(gdb)

	str := `SELECT count(*) FROM "entries" WHERE source_id = $1 AND remote_path = $2 AND remote_id = $3`
	mock.ExpectQuery(regexp.QuoteMeta(str)).
		WithArgs(sourceID, "/inbound/report.pdf", "").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := ilr.Exists(ctx, testhelper.TestLogger(), sourceID, "/inbound/report.pdf", "")
	assert.Nil(t, err)
	assert.True(t, exists)
}

func TestExistsNo(t *testing.T) {
	gdb, mock, teardown := testhelper.MockDBSetup(t)
	defer teardown()
	ctx := context.TODO()
	ilr := NewGORMRepository(gdb)

	str := `SELECT count(*) FROM "entries" WHERE source_id = $1 AND remote_path = $2 AND remote_id = $3`
	mock.ExpectQuery(regexp.QuoteMeta(str)).
		WithArgs(sourceID, "", "drive-file-id").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	exists, err := ilr.Exists(ctx, testhelper.TestLogger(), sourceID, "", "drive-file-id")
	assert.Nil(t, err)
	assert.False(t, exists)
}

func TestRecord(t *testing.T) {
	gdb, mock, teardown := testhelper.MockDBSetup(t)
	defer teardown()
	ctx := context.TODO()
	ilr := NewGORMRepository(gdb)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "entries"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	entry := &Entry{
		TenantID:           99,
		SourceID:           sourceID,
		RemotePath:         "/inbound/report.pdf",
		RemoteModifiedAt:   time.Now(),
		RemoteSize:         1024,
		ImportedDocumentID: "doc-123",
	}
	err := ilr.Record(ctx, testhelper.TestLogger(), entry)
	assert.Nil(t, err)
	assert.False(t, entry.ImportedAt.IsZero())
}

func TestRecordDuplicate(t *testing.T) {
	gdb, mock, teardown := testhelper.MockDBSetup(t)
	defer teardown()
	ctx := context.TODO()
	ilr := NewGORMRepository(gdb)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "entries"`)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_ledger_identity"})

	entry := &Entry{TenantID: 99, SourceID: sourceID, RemotePath: "/inbound/report.pdf"}
	err := ilr.Record(ctx, testhelper.TestLogger(), entry)
	assert.Equal(t, ErrAlreadyImported, err)
}

func TestRecordOtherError(t *testing.T) {
	gdb, mock, teardown := testhelper.MockDBSetup(t)
	defer teardown()
	ctx := context.TODO()
	ilr := NewGORMRepository(gdb)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "entries"`)).
		WillReturnError(fmt.Errorf("kaboom"))

	entry := &Entry{TenantID: 99, SourceID: sourceID, RemoteID: "drive-file-id"}
	err := ilr.Record(ctx, testhelper.TestLogger(), entry)
	assert.NotNil(t, err)
	assert.NotEqual(t, ErrAlreadyImported, err)
}
