package sourcesecret

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RedHatInsights/document_source_sync/internal/models/testhelper"
	"github.com/RedHatInsights/document_source_sync/internal/secrets"
	"github.com/stretchr/testify/assert"
)

var columns = []string{"id", "created_at", "updated_at", "tenant_id", "source_id", "blob"}

var tenantID = int64(99)
var sourceID = int64(1)

func testCipher(t *testing.T) *secrets.Cipher {
	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	cipher, err := secrets.NewCipher(key)
	assert.Nil(t, err)
	return cipher
}

func sealedBlob(t *testing.T, cipher *secrets.Cipher, values map[string]string) []byte {
	ciphertext, err := cipher.SealMap(values)
	assert.Nil(t, err)
	blob, err := json.Marshal(map[string]string{"ciphertext": ciphertext})
	assert.Nil(t, err)
	return blob
}

func TestGet(t *testing.T) {
	gdb, mock, teardown := testhelper.MockDBSetup(t)
	defer teardown()
	ctx := context.TODO()
	cipher := testCipher(t)
	ssr := NewGORMRepository(gdb, cipher)

	blob := sealedBlob(t, cipher, map[string]string{"password": "hunter2"})
	rows := sqlmock.NewRows(columns).
		AddRow(int64(5), time.Now(), time.Now(), tenantID, sourceID, blob)
	str := `SELECT * FROM "source_secrets" WHERE source_id = $1 AND tenant_id = $2`
	mock.ExpectQuery(regexp.QuoteMeta(str)).
		WithArgs(sourceID, tenantID, 1).
		WillReturnRows(rows)

	values, err := ssr.Get(ctx, testhelper.TestLogger(), tenantID, sourceID)
	assert.Nil(t, err)
	assert.Equal(t, "hunter2", values["password"])
}

func TestGetMissing(t *testing.T) {
	gdb, mock, teardown := testhelper.MockDBSetup(t)
	defer teardown()
	ctx := context.TODO()
	ssr := NewGORMRepository(gdb, testCipher(t))

	str := `SELECT * FROM "source_secrets" WHERE source_id = $1 AND tenant_id = $2`
	mock.ExpectQuery(regexp.QuoteMeta(str)).
		WithArgs(sourceID, tenantID, 1).
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := ssr.Get(ctx, testhelper.TestLogger(), tenantID, sourceID)
	assert.Equal(t, ErrNotFound, err)
}

func TestGetUndecryptable(t *testing.T) {
	gdb, mock, teardown := testhelper.MockDBSetup(t)
	defer teardown()
	ctx := context.TODO()
	cipher := testCipher(t)
	ssr := NewGORMRepository(gdb, cipher)

	// sealed under a different master key
	otherKey := base64.StdEncoding.EncodeToString([]byte("fedcba9876543210fedcba9876543210"))
	other, err := secrets.NewCipher(otherKey)
	assert.Nil(t, err)
	blob := sealedBlob(t, other, map[string]string{"password": "hunter2"})

	rows := sqlmock.NewRows(columns).
		AddRow(int64(5), time.Now(), time.Now(), tenantID, sourceID, blob)
	str := `SELECT * FROM "source_secrets" WHERE source_id = $1 AND tenant_id = $2`
	mock.ExpectQuery(regexp.QuoteMeta(str)).
		WithArgs(sourceID, tenantID, 1).
		WillReturnRows(rows)

	_, err = ssr.Get(ctx, testhelper.TestLogger(), tenantID, sourceID)
	assert.Equal(t, secrets.ErrDecrypt, err)
}

func TestUpsert(t *testing.T) {
	gdb, mock, teardown := testhelper.MockDBSetup(t)
	defer teardown()
	ctx := context.TODO()
	ssr := NewGORMRepository(gdb, testCipher(t))

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "source_secrets"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))

	err := ssr.Upsert(ctx, testhelper.TestLogger(), tenantID, sourceID, map[string]string{"refresh_token": "1//abc"})
	assert.Nil(t, err)
	assert.Nil(t, mock.ExpectationsWereMet())
}
