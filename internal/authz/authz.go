// Package authz is the boundary to the authorization and entitlement
// collaborator. The sync engine only ever asks two questions: what role does
// this user hold in a tenant, and does the user's subscription carry a
// feature.
package authz

import (
	"context"
	"errors"

	"github.com/RedHatInsights/document_source_sync/internal/models/tenant"
	"github.com/RedHatInsights/document_source_sync/internal/xrhidentity"
	"github.com/sirupsen/logrus"
)

// Role levels this subsystem cares about
type Role string

const (
	RoleNone  Role = ""
	RoleAdmin Role = "admin"
)

// FeatureDocumentSources gates the external source sync feature
const FeatureDocumentSources = "document_sources"

// Authorizer resolves roles and feature entitlements for interactive callers
type Authorizer interface {
	ResolveRole(ctx context.Context, userID string, tenantID int64) (Role, error)
	HasFeature(ctx context.Context, userID string, feature string) (bool, error)
}

// IdentityAuthorizer answers from a decoded x-rh-identity header plus the
// tenant table. The gateway vouches for who the caller is, not for which
// tenant they may act on, so the role check maps the identity's org number
// to a tenant row and only grants a role inside that tenant.
type IdentityAuthorizer struct {
	Log      *logrus.Entry
	Identity *xrhidentity.XRHIdentity
	Tenants  tenant.Repository
}

// NewIdentityAuthorizer wraps a decoded identity and the tenant store
func NewIdentityAuthorizer(log *logrus.Entry, identity *xrhidentity.XRHIdentity, tenants tenant.Repository) *IdentityAuthorizer {
	return &IdentityAuthorizer{Log: log, Identity: identity, Tenants: tenants}
}

// ResolveRole reports the acting user's role for a tenant. Org admins hold
// the admin role only in the tenant their org owns; everywhere else they
// are nobody.
func (a *IdentityAuthorizer) ResolveRole(ctx context.Context, userID string, tenantID int64) (Role, error) {
	if a.Identity == nil || !a.Identity.Identity.User.IsActive {
		return RoleNone, nil
	}
	if a.Identity.Identity.User.Username != userID {
		return RoleNone, nil
	}
	if !a.Identity.Identity.User.IsOrgAdmin {
		return RoleNone, nil
	}
	if a.Tenants == nil {
		return RoleNone, nil
	}
	t, err := a.Tenants.Find(ctx, a.Log, tenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return RoleNone, nil
		}
		return RoleNone, err
	}
	// external_tenant carries the org number; older rows carry the EBS
	// account number instead
	if t.ExternalTenant == "" {
		return RoleNone, nil
	}
	if t.ExternalTenant != a.Identity.Identity.Internal.OrgID &&
		t.ExternalTenant != a.Identity.Identity.AccountNumber {
		return RoleNone, nil
	}
	return RoleAdmin, nil
}

// HasFeature reports whether the user's subscription carries a feature
func (a *IdentityAuthorizer) HasFeature(ctx context.Context, userID string, feature string) (bool, error) {
	if a.Identity == nil {
		return false, nil
	}
	switch feature {
	case FeatureDocumentSources:
		return a.Identity.Entitlements.DocumentSources.IsEntitled, nil
	}
	return false, nil
}
