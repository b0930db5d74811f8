// Package orchestrator drives one sync invocation end to end: resolve the
// caller's trust tier, select due sources, open a run per source, dispatch
// to the matching connector, dedup against the item ledger, hand new files
// to the import pipeline and close the run. Per source failures never abort
// sibling sources.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/RedHatInsights/document_source_sync/config"
	"github.com/RedHatInsights/document_source_sync/internal/authz"
	"github.com/RedHatInsights/document_source_sync/internal/connectors"
	"github.com/RedHatInsights/document_source_sync/internal/cronkey"
	"github.com/RedHatInsights/document_source_sync/internal/importpipeline"
	"github.com/RedHatInsights/document_source_sync/internal/logger"
	"github.com/RedHatInsights/document_source_sync/internal/models/cronsecret"
	"github.com/RedHatInsights/document_source_sync/internal/models/itemledger"
	"github.com/RedHatInsights/document_source_sync/internal/models/run"
	"github.com/RedHatInsights/document_source_sync/internal/models/source"
	"github.com/RedHatInsights/document_source_sync/internal/models/sourcesecret"
	"github.com/RedHatInsights/document_source_sync/internal/xrhidentity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Trust tiers, strongest first. Resolution stops at the first match.
type Tier int

const (
	TierNone Tier = iota
	TierGlobal
	TierTenant
	TierInteractive
)

// Per source result statuses reported to the caller
const (
	ResultSuccess = "SUCCESS"
	ResultError   = "ERROR"
	ResultSkipped = "SKIPPED"
)

// ErrUnauthorized means no trust tier matched the presented credentials
var ErrUnauthorized = errors.New("no valid sync credential presented")

// ErrForbidden means the caller authenticated but lacks the role or
// entitlement for the sources it asked to touch
var ErrForbidden = errors.New("caller is not allowed to sync these sources")

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "document_source_sync_runs_total",
		Help: "Sync runs by terminal status",
	}, []string{"status"})
	itemsImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "document_source_sync_items_imported_total",
		Help: "Remote objects imported",
	})
	itemsDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "document_source_sync_items_deduped_total",
		Help: "Remote objects skipped because the ledger already had them",
	})
)

// Caller carries whatever credentials arrived with the trigger
type Caller struct {
	GlobalKey string
	TenantID  int64
	CronKey   string
	Identity  *xrhidentity.XRHIdentity
}

// TriggerRequest is the body of one sync invocation
type TriggerRequest struct {
	TenantID int64 `json:"tenant_id,omitempty"`
	SourceID int64 `json:"source_id,omitempty"`
	Limit    int   `json:"limit,omitempty"`
}

// SourceResult is the outcome for one source within an invocation
type SourceResult struct {
	SourceID int64  `json:"source_id"`
	Status   string `json:"status"`
	Inserted int    `json:"inserted,omitempty"`
	Message  string `json:"message,omitempty"`
}

// TriggerResponse aggregates an invocation. Partial success across sources
// is a normal outcome, not an overall failure.
type TriggerResponse struct {
	Ok            bool           `json:"ok"`
	InsertedTotal int            `json:"inserted_total"`
	Results       []SourceResult `json:"results"`
}

// Repositories bundles the stores the orchestrator needs
type Repositories struct {
	Sources     source.Repository
	Secrets     sourcesecret.Repository
	Ledger      itemledger.Repository
	Runs        run.Repository
	CronSecrets cronsecret.Repository
}

// Orchestrator runs sync invocations
type Orchestrator struct {
	cfg        *config.SourceSyncConfig
	repos      Repositories
	pipeline   importpipeline.ImportPipeline
	httpClient *http.Client

	// injection points for tests
	connectorFor func(provider string, cfg connectors.Config) (connectors.Connector, error)
	now          func() time.Time
}

// New creates an orchestrator wired to the real connectors
func New(cfg *config.SourceSyncConfig, repos Repositories, pipeline importpipeline.ImportPipeline) *Orchestrator {
	return &Orchestrator{
		cfg:          cfg,
		repos:        repos,
		pipeline:     pipeline,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		connectorFor: connectors.ForProvider,
		now:          time.Now,
	}
}

// Trigger authenticates the caller, selects sources and processes each one.
// Authorization and infrastructure failures abort the whole invocation
// before any run is opened; everything after that is reported per source.
func (o *Orchestrator) Trigger(ctx context.Context, log *logrus.Entry, caller Caller, req TriggerRequest, authorizer authz.Authorizer) (*TriggerResponse, error) {
	tier, scopeTenant, tierLimit, err := o.resolveTier(ctx, log, caller, req)
	if err != nil {
		return nil, err
	}
	log.Infof("Trigger accepted at tier %d for tenant scope %d", tier, scopeTenant)

	if tier == TierInteractive {
		if err := o.authorizeInteractive(ctx, caller, scopeTenant, authorizer); err != nil {
			return nil, err
		}
	}

	sources, err := o.selectSources(ctx, log, scopeTenant, req)
	if err != nil {
		return nil, err
	}

	// the tenant configured batch default applies per source regardless of
	// tier; the tenant tier already fetched the caller's own during key
	// verification, other tiers look up each selected source's tenant
	tenantDefaults := map[int64]int{}
	if tier == TierTenant {
		tenantDefaults[scopeTenant] = tierLimit
	} else {
		for _, src := range sources {
			if _, ok := tenantDefaults[src.TenantID]; ok {
				continue
			}
			tenantDefaults[src.TenantID] = o.tenantDefaultLimit(ctx, log, src.TenantID)
		}
	}
	now := o.now().UTC()

	response := &TriggerResponse{Ok: true}
	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	workers := o.cfg.SyncWorkers
	if workers < 1 {
		workers = 1
	}
	group.SetLimit(workers)

	for i := range sources {
		src := sources[i]
		group.Go(func() error {
			var result SourceResult
			if tier != TierInteractive && !src.Due(now) {
				result = SourceResult{SourceID: src.ID, Status: ResultSkipped, Message: "not due"}
			} else {
				limit := o.effectiveLimit(req.Limit, tenantDefaults[src.TenantID])
				result = o.syncSource(groupCtx, logger.LogWithSource(log, src.TenantID, src.ID), &src, limit)
			}
			mu.Lock()
			response.Results = append(response.Results, result)
			response.InsertedTotal += result.Inserted
			mu.Unlock()
			return nil
		})
	}
	group.Wait()
	return response, nil
}

// resolveTier walks the trust tiers in order, first match wins
func (o *Orchestrator) resolveTier(ctx context.Context, log *logrus.Entry, caller Caller, req TriggerRequest) (Tier, int64, int, error) {
	if caller.GlobalKey != "" && o.cfg.GlobalSyncSecret != "" {
		if caller.GlobalKey == o.cfg.GlobalSyncSecret {
			return TierGlobal, req.TenantID, 0, nil
		}
		return TierNone, 0, 0, ErrUnauthorized
	}
	if caller.TenantID != 0 && caller.CronKey != "" {
		secret, err := o.repos.CronSecrets.Get(ctx, log, caller.TenantID)
		if err != nil {
			if errors.Is(err, cronsecret.ErrNotFound) {
				return TierNone, 0, 0, ErrUnauthorized
			}
			return TierNone, 0, 0, fmt.Errorf("cron secret store unavailable: %v", err)
		}
		if !secret.Enabled || !cronkey.VerifyKey(secret.KeyHash, caller.CronKey) {
			return TierNone, 0, 0, ErrUnauthorized
		}
		if req.TenantID != 0 && req.TenantID != caller.TenantID {
			return TierNone, 0, 0, ErrForbidden
		}
		return TierTenant, caller.TenantID, secret.DefaultRunLimit, nil
	}
	if caller.Identity != nil {
		if req.TenantID == 0 {
			return TierNone, 0, 0, fmt.Errorf("%w: interactive triggers must name a tenant", ErrForbidden)
		}
		return TierInteractive, req.TenantID, 0, nil
	}
	return TierNone, 0, 0, ErrUnauthorized
}

// authorizeInteractive enforces the role and entitlement checks for an
// interactive caller before any run is opened
func (o *Orchestrator) authorizeInteractive(ctx context.Context, caller Caller, tenantID int64, authorizer authz.Authorizer) error {
	userID := caller.Identity.Identity.User.Username
	role, err := authorizer.ResolveRole(ctx, userID, tenantID)
	if err != nil {
		return fmt.Errorf("role resolution failed: %v", err)
	}
	if role != authz.RoleAdmin {
		return ErrForbidden
	}
	entitled, err := authorizer.HasFeature(ctx, userID, authz.FeatureDocumentSources)
	if err != nil {
		return fmt.Errorf("entitlement check failed: %v", err)
	}
	if !entitled {
		return ErrForbidden
	}
	return nil
}

func (o *Orchestrator) selectSources(ctx context.Context, log *logrus.Entry, scopeTenant int64, req TriggerRequest) ([]source.Source, error) {
	if req.SourceID != 0 {
		src, err := o.repos.Sources.Find(ctx, log, scopeTenant, req.SourceID)
		if err != nil {
			if errors.Is(err, source.ErrNotFound) {
				return nil, fmt.Errorf("%w: source %d", source.ErrNotFound, req.SourceID)
			}
			return nil, fmt.Errorf("source store unavailable: %v", err)
		}
		if !src.Enabled {
			return []source.Source{}, nil
		}
		return []source.Source{*src}, nil
	}
	sources, err := o.repos.Sources.ListEnabled(ctx, log, scopeTenant)
	if err != nil {
		return nil, fmt.Errorf("source store unavailable: %v", err)
	}
	return sources, nil
}

// tenantDefaultLimit reads the tenant's configured batch default. No cron
// secret on record just means the platform default applies.
func (o *Orchestrator) tenantDefaultLimit(ctx context.Context, log *logrus.Entry, tenantID int64) int {
	secret, err := o.repos.CronSecrets.Get(ctx, log, tenantID)
	if err != nil {
		if !errors.Is(err, cronsecret.ErrNotFound) {
			log.Errorf("Error reading batch default for tenant %d %v", tenantID, err)
		}
		return 0
	}
	return secret.DefaultRunLimit
}

// effectiveLimit combines the per call override, the tenant default and the
// platform maximum
func (o *Orchestrator) effectiveLimit(requested int, tenantDefault int) int {
	limit := o.cfg.DefaultBatchLimit
	if tenantDefault > 0 {
		limit = tenantDefault
	}
	if requested > 0 {
		limit = requested
	}
	if o.cfg.MaxBatchLimit > 0 && limit > o.cfg.MaxBatchLimit {
		limit = o.cfg.MaxBatchLimit
	}
	return limit
}

// syncSource executes steps 1 through 8 of the per source algorithm. All
// failures end up on the run record; nothing raises out of here.
func (o *Orchestrator) syncSource(ctx context.Context, log *logrus.Entry, src *source.Source, limit int) SourceResult {
	r, err := o.repos.Runs.Open(ctx, log, src.TenantID, src.ID)
	if err != nil {
		return SourceResult{SourceID: src.ID, Status: ResultError, Message: fmt.Sprintf("unable to open run: %v", err)}
	}
	seenLastRun := src.LastRunAt

	inserted, syncErr := o.processSource(ctx, log, src, limit)

	// last_run_at advances on error too, so a broken source cannot starve
	// its siblings by being retried every tick
	if err := o.repos.Sources.UpdateLastRun(ctx, log, src, seenLastRun, o.now().UTC()); err != nil {
		log.Errorf("Error advancing last_run_at %v", err)
	}

	status := run.StatusSuccess
	message := fmt.Sprintf("imported %d new files", inserted)
	if syncErr != nil {
		status = run.StatusError
		message = syncErr.Error()
	}
	if err := o.repos.Runs.Close(ctx, log, r, status, inserted, message); err != nil {
		log.Errorf("Error closing run %d %v", r.ID, err)
	}
	runsTotal.WithLabelValues(status).Inc()

	result := SourceResult{SourceID: src.ID, Inserted: inserted, Message: message}
	if syncErr != nil {
		result.Status = ResultError
	} else {
		result.Status = ResultSuccess
	}
	return result
}

func (o *Orchestrator) processSource(ctx context.Context, log *logrus.Entry, src *source.Source, limit int) (int, error) {
	settings, err := source.ParseSettings(src.Provider, src.Settings)
	if err != nil {
		return 0, err
	}
	secretValues, err := o.repos.Secrets.Get(ctx, log, src.TenantID, src.ID)
	if err != nil {
		if errors.Is(err, sourcesecret.ErrNotFound) {
			return 0, fmt.Errorf("no credential on record for source %d", src.ID)
		}
		return 0, err
	}

	conn, err := o.connectorFor(src.Provider, connectors.Config{
		GoogleClientID:      o.cfg.GoogleClientID,
		GoogleClientSecret:  o.cfg.GoogleClientSecret,
		DropboxClientID:     o.cfg.DropboxClientID,
		DropboxClientSecret: o.cfg.DropboxClientSecret,
	})
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	timeout := time.Duration(o.cfg.ConnectorTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	objects, refreshed, err := conn.List(connCtx, settings, secretValues)
	if err != nil {
		return 0, err
	}
	// A rotated credential is persisted before anything else can fail, so a
	// stale refresh token is never used twice
	if len(refreshed) > 0 {
		for key, value := range refreshed {
			secretValues[key] = value
		}
		if err := o.repos.Secrets.Upsert(ctx, log, src.TenantID, src.ID, secretValues); err != nil {
			return 0, fmt.Errorf("unable to persist rotated credential: %v", err)
		}
		log.Info("Persisted rotated credential")
	}

	candidates, err := connectors.FilterObjects(objects, settings.Pattern(), limit)
	if err != nil {
		return 0, err
	}
	log.Infof("Listing returned %d objects, %d candidates after filtering", len(objects), len(candidates))

	inserted := 0
	for _, obj := range candidates {
		exists, err := o.repos.Ledger.Exists(ctx, log, src.ID, obj.Path, obj.ID)
		if err != nil {
			return inserted, err
		}
		if exists {
			itemsDeduped.Inc()
			continue
		}
		fetched, err := conn.Download(connCtx, obj)
		if err != nil {
			return inserted, err
		}
		documentID, err := o.pipeline.Import(ctx, log, &importpipeline.ImportRequest{
			TenantID: src.TenantID,
			SourceID: src.ID,
			Name:     fetched.Name,
			MimeType: fetched.MimeType,
			Content:  fetched.Content,
			Config:   json.RawMessage(src.Settings),
		}, o.httpClient)
		if err != nil {
			return inserted, err
		}
		err = o.repos.Ledger.Record(ctx, log, &itemledger.Entry{
			TenantID:           src.TenantID,
			SourceID:           src.ID,
			RemotePath:         obj.Path,
			RemoteID:           obj.ID,
			RemoteModifiedAt:   obj.ModifiedAt,
			RemoteSize:         obj.Size,
			ImportedDocumentID: documentID,
			ImportedAt:         o.now().UTC(),
		})
		if err != nil {
			if errors.Is(err, itemledger.ErrAlreadyImported) {
				// a concurrent run won the insert; their import stands
				itemsDeduped.Inc()
				continue
			}
			return inserted, err
		}
		inserted++
		itemsImported.Inc()
	}
	return inserted, nil
}
