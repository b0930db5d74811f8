package main

import (
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"

	"github.com/RedHatInsights/document_source_sync/config"
	"github.com/RedHatInsights/document_source_sync/internal/authz"
	"github.com/RedHatInsights/document_source_sync/internal/logger"
	"github.com/RedHatInsights/document_source_sync/internal/models/source"
	"github.com/RedHatInsights/document_source_sync/internal/models/tenant"
	"github.com/RedHatInsights/document_source_sync/internal/oauthflow"
	"github.com/RedHatInsights/document_source_sync/internal/orchestrator"
	"github.com/RedHatInsights/document_source_sync/internal/statetoken"
	"github.com/RedHatInsights/document_source_sync/internal/xrhidentity"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/redhatinsights/platform-go-middlewares/identity"
	"github.com/sirupsen/logrus"
)

const (
	syncSecretHeader = "x-rh-sync-secret"
	tenantIDHeader   = "x-rh-tenant-id"
	cronKeyHeader    = "x-rh-cron-key"
	identityHeader   = "x-rh-identity"
)

type apiServer struct {
	cfg     *config.SourceSyncConfig
	log     *logrus.Logger
	orch    *orchestrator.Orchestrator
	flow    *oauthflow.Flow
	tenants tenant.Repository
	isReady *atomic.Value
}

func (s *apiServer) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/debug/vars", expvar.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if s.isReady == nil || s.isReady.Load() != true {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	api := r.PathPrefix("/api/document-source-sync/v1").Subrouter()
	// the sync endpoint accepts non-interactive credentials too, so only the
	// browser facing routes sit behind the identity middleware
	api.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	api.Handle("/sources/{id}/connect", identity.EnforceIdentity(http.HandlerFunc(s.handleConnect))).Methods(http.MethodGet)
	api.Handle("/oauth/callback", identity.EnforceIdentity(http.HandlerFunc(s.handleOAuthCallback))).Methods(http.MethodGet)
	return r
}

func (s *apiServer) handleSync(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	entry := logger.StartLogger(s.log, requestID)

	caller, err := s.callerFromRequest(r)
	if err != nil {
		entry.Errorf("Error resolving caller %v", err)
		writeJSONError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req orchestrator.TriggerRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		entry.Errorf("Error reading trigger request body %v", err)
		writeJSONError(w, http.StatusBadRequest, "unable to read request body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			entry.Errorf("Error parsing trigger request %v", err)
			writeJSONError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}

	authorizer := authz.NewIdentityAuthorizer(entry, caller.Identity, s.tenants)
	resp, err := s.orch.Trigger(r.Context(), entry, caller, req, authorizer)
	if err != nil {
		entry.Errorf("Error triggering sync %v", err)
		switch {
		case errors.Is(err, orchestrator.ErrUnauthorized):
			writeJSONError(w, http.StatusUnauthorized, "credentials missing or unknown")
		case errors.Is(err, orchestrator.ErrForbidden):
			writeJSONError(w, http.StatusForbidden, "caller is not allowed to sync this source")
		case errors.Is(err, source.ErrNotFound):
			writeJSONError(w, http.StatusNotFound, "source not found")
		default:
			writeJSONError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	entry := logger.StartLogger(s.log, requestID)

	identity, err := identityFromRequest(r)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "identity required")
		return
	}
	username := identity.Identity.User.Username
	authorizer := authz.NewIdentityAuthorizer(entry, identity, s.tenants)
	tenantID, err := strconv.ParseInt(r.URL.Query().Get("tenant_id"), 10, 64)
	if err != nil || tenantID == 0 {
		writeJSONError(w, http.StatusBadRequest, "tenant_id query parameter required")
		return
	}
	role, err := authorizer.ResolveRole(r.Context(), username, tenantID)
	if err != nil || role != authz.RoleAdmin {
		writeJSONError(w, http.StatusForbidden, "admin role required")
		return
	}
	entitled, err := authorizer.HasFeature(r.Context(), username, authz.FeatureDocumentSources)
	if err != nil || !entitled {
		writeJSONError(w, http.StatusForbidden, "document sources are not enabled for this account")
		return
	}

	sourceID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid source id")
		return
	}
	returnPath := r.URL.Query().Get("return_path")
	if returnPath == "" {
		returnPath = "/"
	}

	consentURL, err := s.flow.ConnectURL(r.Context(), entry, username, tenantID, sourceID, returnPath)
	if err != nil {
		entry.Errorf("Error building consent URL %v", err)
		switch {
		case errors.Is(err, source.ErrNotFound):
			writeJSONError(w, http.StatusNotFound, "source not found")
		case errors.Is(err, oauthflow.ErrNotOAuthProvider):
			writeJSONError(w, http.StatusBadRequest, "source provider does not use OAuth")
		default:
			writeJSONError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	http.Redirect(w, r, consentURL, http.StatusFound)
}

func (s *apiServer) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	entry := logger.StartLogger(s.log, requestID)

	identity, err := identityFromRequest(r)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "identity required")
		return
	}

	query := r.URL.Query()
	state := query.Get("state")
	code := query.Get("code")
	authorizer := authz.NewIdentityAuthorizer(entry, identity, s.tenants)

	returnPath, err := s.flow.HandleCallback(r.Context(), entry, code, state, identity.Identity.User.Username, authorizer)
	if err != nil {
		entry.Errorf("Error completing OAuth callback %v", err)
		http.Redirect(w, r, callbackRedirect(returnPath, callbackErrorCode(err)), http.StatusFound)
		return
	}
	http.Redirect(w, r, callbackRedirect(returnPath, ""), http.StatusFound)
}

func callbackErrorCode(err error) string {
	switch {
	case errors.Is(err, statetoken.ErrExpired):
		return "state_expired"
	case errors.Is(err, statetoken.ErrInvalid):
		return "state_invalid"
	case errors.Is(err, oauthflow.ErrUserMismatch), errors.Is(err, oauthflow.ErrNotEntitled):
		return "forbidden"
	case errors.Is(err, oauthflow.ErrReconsentRequired):
		return "reconsent_required"
	default:
		return "internal"
	}
}

func callbackRedirect(returnPath, errorCode string) string {
	if returnPath == "" {
		returnPath = "/"
	}
	if errorCode == "" {
		return returnPath + "?connected=1"
	}
	return returnPath + "?error=" + url.QueryEscape(errorCode)
}

func (s *apiServer) callerFromRequest(r *http.Request) (orchestrator.Caller, error) {
	var caller orchestrator.Caller
	caller.GlobalKey = r.Header.Get(syncSecretHeader)
	caller.CronKey = r.Header.Get(cronKeyHeader)
	if tenant := r.Header.Get(tenantIDHeader); tenant != "" {
		tenantID, err := strconv.ParseInt(tenant, 10, 64)
		if err != nil {
			return caller, fmt.Errorf("invalid %s header", tenantIDHeader)
		}
		caller.TenantID = tenantID
	}
	if encoded := r.Header.Get(identityHeader); encoded != "" {
		identity, err := xrhidentity.GetXRHIdentity(encoded)
		if err != nil {
			return caller, fmt.Errorf("invalid %s header", identityHeader)
		}
		caller.Identity = identity
	}
	if caller.GlobalKey == "" && caller.CronKey == "" && caller.Identity == nil {
		return caller, errors.New("no credentials presented")
	}
	return caller, nil
}

func identityFromRequest(r *http.Request) (*xrhidentity.XRHIdentity, error) {
	encoded := r.Header.Get(identityHeader)
	if encoded == "" {
		return nil, errors.New("identity header missing")
	}
	return xrhidentity.GetXRHIdentity(encoded)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
