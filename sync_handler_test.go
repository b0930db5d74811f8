package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/RedHatInsights/document_source_sync/config"
	"github.com/RedHatInsights/document_source_sync/internal/models/mocks"
	"github.com/RedHatInsights/document_source_sync/internal/models/source"
	"github.com/RedHatInsights/document_source_sync/internal/models/tenant"
	"github.com/RedHatInsights/document_source_sync/internal/oauthflow"
	"github.com/RedHatInsights/document_source_sync/internal/orchestrator"
	"github.com/RedHatInsights/document_source_sync/internal/statetoken"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

func encodedIdentityForOrg(username string, org string, orgAdmin bool, entitled bool) string {
	payload := map[string]interface{}{
		"identity": map[string]interface{}{
			"account_number": org,
			"org_id":         org,
			"type":           "User",
			"internal":       map[string]interface{}{"org_id": org},
			"user": map[string]interface{}{
				"username":     username,
				"is_active":    true,
				"is_org_admin": orgAdmin,
			},
		},
		"entitlements": map[string]interface{}{
			"document_sources": map[string]interface{}{"is_entitled": entitled},
		},
	}
	raw, _ := json.Marshal(payload)
	return base64.StdEncoding.EncodeToString(raw)
}

func encodedIdentity(username string, orgAdmin bool, entitled bool) string {
	return encodedIdentityForOrg(username, "000099", orgAdmin, entitled)
}

func testServer(t *testing.T) (*apiServer, *mocks.MockSourceRepository) {
	cfg := &config.SourceSyncConfig{
		GlobalSyncSecret:  "global-key",
		DefaultBatchLimit: 25,
		MaxBatchLimit:     100,
		SyncWorkers:       1,
		OAuthRedirectURL:  "https://console.example.com/oauth/callback",
		GoogleClientID:    "google-client",
	}
	sources := &mocks.MockSourceRepository{}
	repos := orchestrator.Repositories{
		Sources:     sources,
		Secrets:     &mocks.MockSourceSecretRepository{},
		Ledger:      &mocks.MockItemLedgerRepository{},
		Runs:        &mocks.MockRunRepository{},
		CronSecrets: &mocks.MockCronSecretRepository{},
	}
	issuer, err := statetoken.NewIssuer("signing-key", 0)
	assert.Nil(t, err)
	flow := oauthflow.New(cfg, issuer, repos.Sources, repos.Secrets)
	tenants := &mocks.MockTenantRepository{Tenants: map[int64]*tenant.Tenant{
		99: {ID: 99, Name: "Acme", ExternalTenant: "000099"},
	}}

	isReady := &atomic.Value{}
	isReady.Store(true)
	return &apiServer{
		cfg:     cfg,
		log:     quietLogger(),
		orch:    orchestrator.New(cfg, repos, nil),
		flow:    flow,
		tenants: tenants,
		isReady: isReady,
	}, sources
}

func TestSyncRejectsAnonymous(t *testing.T) {
	server, _ := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/document-source-sync/v1/sync", nil)
	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSyncRejectsWrongGlobalKey(t *testing.T) {
	server, _ := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/document-source-sync/v1/sync", nil)
	req.Header.Set(syncSecretHeader, "guessed")
	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSyncGlobalTier(t *testing.T) {
	server, _ := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/document-source-sync/v1/sync", nil)
	req.Header.Set(syncSecretHeader, "global-key")
	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp orchestrator.TriggerResponse
	assert.Nil(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Ok)
	assert.Equal(t, 0, resp.InsertedTotal)
}

func TestSyncMalformedBody(t *testing.T) {
	server, _ := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/document-source-sync/v1/sync", bytes.NewBufferString("{not json"))
	req.Header.Set(syncSecretHeader, "global-key")
	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("read: connection reset") }

func TestSyncUnreadableBody(t *testing.T) {
	server, _ := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/document-source-sync/v1/sync", brokenReader{})
	req.Header.Set(syncSecretHeader, "global-key")
	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncUnknownSource(t *testing.T) {
	server, _ := testServer(t)
	body, _ := json.Marshal(orchestrator.TriggerRequest{SourceID: 42})
	req := httptest.NewRequest(http.MethodPost, "/api/document-source-sync/v1/sync", bytes.NewBuffer(body))
	req.Header.Set(syncSecretHeader, "global-key")
	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSyncInteractiveWithoutTenant(t *testing.T) {
	server, _ := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/document-source-sync/v1/sync", nil)
	req.Header.Set(identityHeader, encodedIdentity("fred.sample", true, true))
	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSyncInteractiveForeignOrg(t *testing.T) {
	server, _ := testServer(t)
	body, _ := json.Marshal(orchestrator.TriggerRequest{TenantID: 99})
	req := httptest.NewRequest(http.MethodPost, "/api/document-source-sync/v1/sync", bytes.NewBuffer(body))
	// an org admin from another account must not act on tenant 99
	req.Header.Set(identityHeader, encodedIdentityForOrg("mallory.sample", "555555", true, true))
	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSyncBadTenantHeader(t *testing.T) {
	server, _ := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/document-source-sync/v1/sync", nil)
	req.Header.Set(tenantIDHeader, "not-a-number")
	req.Header.Set(cronKeyHeader, "whatever")
	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestConnectRedirectsToConsent(t *testing.T) {
	server, sources := testServer(t)
	sources.Sources = []source.Source{
		{ID: 7, TenantID: 99, Provider: source.ProviderGDrive, Enabled: true,
			Settings: datatypes.JSON(`{"folder_id": "1AbCdEf"}`)},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/document-source-sync/v1/sources/7/connect?tenant_id=99&return_path=/sources/7", nil)
	req.Header.Set(identityHeader, encodedIdentity("fred.sample", true, true))
	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "accounts.google.com")
}

func TestConnectRequiresIdentity(t *testing.T) {
	server, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/document-source-sync/v1/sources/7/connect?tenant_id=99", nil)
	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, req)
	// the identity middleware rejects the request before the handler runs
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConnectForeignOrg(t *testing.T) {
	server, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/document-source-sync/v1/sources/7/connect?tenant_id=99", nil)
	req.Header.Set(identityHeader, encodedIdentityForOrg("mallory.sample", "555555", true, true))
	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestConnectRequiresAdmin(t *testing.T) {
	server, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/document-source-sync/v1/sources/7/connect?tenant_id=99", nil)
	req.Header.Set(identityHeader, encodedIdentity("fred.sample", false, true))
	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestConnectRequiresEntitlement(t *testing.T) {
	server, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/document-source-sync/v1/sources/7/connect?tenant_id=99", nil)
	req.Header.Set(identityHeader, encodedIdentity("fred.sample", true, false))
	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestConnectNonOAuthProvider(t *testing.T) {
	server, sources := testServer(t)
	sources.Sources = []source.Source{
		{ID: 8, TenantID: 99, Provider: source.ProviderSFTP, Enabled: true,
			Settings: datatypes.JSON(`{"host": "h", "username": "u", "folder": "/f"}`)},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/document-source-sync/v1/sources/8/connect?tenant_id=99", nil)
	req.Header.Set(identityHeader, encodedIdentity("fred.sample", true, true))
	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallbackBadStateRedirectsWithError(t *testing.T) {
	server, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/document-source-sync/v1/oauth/callback?state=forged&code=abc", nil)
	req.Header.Set(identityHeader, encodedIdentity("fred.sample", true, true))
	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/?error=state_invalid", w.Header().Get("Location"))
}

func TestHealthAndReady(t *testing.T) {
	server, _ := testServer(t)

	w := httptest.NewRecorder()
	server.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	server.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	server.isReady.Store(false)
	w = httptest.NewRecorder()
	server.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCallbackRedirectHelpers(t *testing.T) {
	assert.Equal(t, "/?connected=1", callbackRedirect("", ""))
	assert.Equal(t, "/sources/7?connected=1", callbackRedirect("/sources/7", ""))
	assert.Equal(t, "/sources/7?error=reconsent_required", callbackRedirect("/sources/7", "reconsent_required"))

	assert.Equal(t, "state_invalid", callbackErrorCode(statetoken.ErrInvalid))
	assert.Equal(t, "state_expired", callbackErrorCode(statetoken.ErrExpired))
	assert.Equal(t, "reconsent_required", callbackErrorCode(oauthflow.ErrReconsentRequired))
	assert.Equal(t, "forbidden", callbackErrorCode(oauthflow.ErrUserMismatch))
}
