// Package oauthflow implements the interactive connection authorization
// flow for OAuth based providers: issue a state token, send the user to the
// provider's consent screen requesting offline access, then exchange the
// returned code and persist the refresh token into the source's secret blob.
package oauthflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/RedHatInsights/document_source_sync/config"
	"github.com/RedHatInsights/document_source_sync/internal/authz"
	"github.com/RedHatInsights/document_source_sync/internal/connectors"
	"github.com/RedHatInsights/document_source_sync/internal/models/source"
	"github.com/RedHatInsights/document_source_sync/internal/models/sourcesecret"
	"github.com/RedHatInsights/document_source_sync/internal/statetoken"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
)

// ErrReconsentRequired means the provider granted tokens without a refresh
// token, usually because consent was previously given without the offline
// access flag. The stored credential is left untouched; the user has to go
// through consent again.
var ErrReconsentRequired = errors.New("provider did not return a refresh token, re-consent required")

// ErrUserMismatch means the session completing the callback is not the
// session that started the flow
var ErrUserMismatch = errors.New("callback user does not match the connection attempt")

// ErrNotEntitled means the acting user lost the feature entitlement between
// starting the flow and completing it
var ErrNotEntitled = errors.New("subscription does not include document sources")

// ErrNotOAuthProvider means the source's provider has no consent flow
var ErrNotOAuthProvider = errors.New("provider does not use OAuth authorization")

// Flow wires the lifecycle pieces together
type Flow struct {
	cfg     *config.SourceSyncConfig
	issuer  *statetoken.Issuer
	sources source.Repository
	secrets sourcesecret.Repository

	// injectable for tests
	exchange func(ctx context.Context, conf *oauth2.Config, code string) (*oauth2.Token, error)
}

// New creates a Flow
func New(cfg *config.SourceSyncConfig, issuer *statetoken.Issuer, sources source.Repository, secrets sourcesecret.Repository) *Flow {
	return &Flow{
		cfg:     cfg,
		issuer:  issuer,
		sources: sources,
		secrets: secrets,
		exchange: func(ctx context.Context, conf *oauth2.Config, code string) (*oauth2.Token, error) {
			return conf.Exchange(ctx, code)
		},
	}
}

// ConnectURL issues a state token bound to the user, source and return path
// and builds the provider consent URL requesting offline access
func (f *Flow) ConnectURL(ctx context.Context, log *logrus.Entry, userID string, tenantID int64, sourceID int64, returnPath string) (string, error) {
	src, err := f.sources.Find(ctx, log, tenantID, sourceID)
	if err != nil {
		return "", err
	}
	conf, err := f.oauthConfig(src.Provider)
	if err != nil {
		return "", err
	}
	state, err := f.issuer.Issue(userID, src.ID, returnPath)
	if err != nil {
		return "", err
	}
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce}
	if src.Provider == source.ProviderDropbox {
		// Dropbox spells offline access differently
		opts = []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("token_access_type", "offline")}
	}
	return conf.AuthCodeURL(state, opts...), nil
}

// HandleCallback verifies the state, re-checks the session and entitlement,
// exchanges the code and upserts the refresh token into the secret blob.
// It returns the return path the user should be redirected to.
func (f *Flow) HandleCallback(ctx context.Context, log *logrus.Entry, code string, state string, sessionUserID string, authorizer authz.Authorizer) (string, error) {
	claims, err := f.issuer.Verify(state)
	if err != nil {
		return "", err
	}
	if claims.UserID != sessionUserID {
		return claims.ReturnPath, ErrUserMismatch
	}
	entitled, err := authorizer.HasFeature(ctx, sessionUserID, authz.FeatureDocumentSources)
	if err != nil {
		return claims.ReturnPath, fmt.Errorf("entitlement check failed: %v", err)
	}
	if !entitled {
		return claims.ReturnPath, ErrNotEntitled
	}

	src, err := f.sources.Find(ctx, log, 0, claims.SourceID)
	if err != nil {
		return claims.ReturnPath, err
	}
	conf, err := f.oauthConfig(src.Provider)
	if err != nil {
		return claims.ReturnPath, err
	}
	token, err := f.exchange(ctx, conf, code)
	if err != nil {
		return claims.ReturnPath, fmt.Errorf("code exchange failed: %v", err)
	}
	if token.RefreshToken == "" {
		return claims.ReturnPath, ErrReconsentRequired
	}

	values, err := f.secrets.Get(ctx, log, src.TenantID, src.ID)
	if err != nil {
		if !errors.Is(err, sourcesecret.ErrNotFound) {
			return claims.ReturnPath, err
		}
		values = map[string]string{}
	}
	values[connectors.SecretRefreshToken] = token.RefreshToken
	if err := f.secrets.Upsert(ctx, log, src.TenantID, src.ID, values); err != nil {
		return claims.ReturnPath, err
	}
	log.Infof("Stored refresh token for source %d", src.ID)
	return claims.ReturnPath, nil
}

func (f *Flow) oauthConfig(provider string) (*oauth2.Config, error) {
	switch provider {
	case source.ProviderGDrive:
		return &oauth2.Config{
			ClientID:     f.cfg.GoogleClientID,
			ClientSecret: f.cfg.GoogleClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{drive.DriveReadonlyScope},
			RedirectURL:  f.cfg.OAuthRedirectURL,
		}, nil
	case source.ProviderDropbox:
		return &oauth2.Config{
			ClientID:     f.cfg.DropboxClientID,
			ClientSecret: f.cfg.DropboxClientSecret,
			Endpoint:     connectors.DropboxOAuthEndpoint,
			RedirectURL:  f.cfg.OAuthRedirectURL,
		}, nil
	}
	return nil, ErrNotOAuthProvider
}
