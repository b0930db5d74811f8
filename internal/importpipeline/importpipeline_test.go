package importpipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.Out = io.Discard
	return logrus.NewEntry(log)
}

func TestImport(t *testing.T) {
	var received ImportRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Nil(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"document_id": "doc-123"}`))
	}))
	defer ts.Close()

	pipeline := MakeImportPipeline(ts.URL)
	documentID, err := pipeline.Import(context.TODO(), testLogger(), &ImportRequest{
		TenantID: 99,
		SourceID: 1,
		Name:     "report.pdf",
		MimeType: "application/pdf",
		Content:  []byte("pdf bytes"),
	}, ts.Client())
	assert.Nil(t, err)
	assert.Equal(t, "doc-123", documentID)
	assert.Equal(t, "report.pdf", received.Name)
	assert.Equal(t, []byte("pdf bytes"), received.Content)
}

func TestImportServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "storage offline", http.StatusInternalServerError)
	}))
	defer ts.Close()

	pipeline := MakeImportPipeline(ts.URL)
	_, err := pipeline.Import(context.TODO(), testLogger(), &ImportRequest{Name: "report.pdf"}, ts.Client())
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "returned status 500")
}

func TestImportMissingDocumentID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	pipeline := MakeImportPipeline(ts.URL)
	_, err := pipeline.Import(context.TODO(), testLogger(), &ImportRequest{Name: "report.pdf"}, ts.Client())
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "no document id")
}

func TestImportUnreachable(t *testing.T) {
	pipeline := MakeImportPipeline("http://127.0.0.1:1/import")
	_, err := pipeline.Import(context.TODO(), testLogger(), &ImportRequest{Name: "report.pdf"}, &http.Client{})
	assert.NotNil(t, err)
}
