// Package connectors holds the provider specific implementations of the two
// operation polling contract: enumerate candidate objects, then fetch their
// bytes. Connectors are stateless between runs; a session opened by List is
// reused by Download and released by Close, and any renewed credential is
// handed back to the caller instead of being persisted here.
package connectors

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/RedHatInsights/document_source_sync/internal/models/source"
	"github.com/gobwas/glob"
)

// Secret blob keys understood by the connectors
const (
	SecretPassword     = "password"
	SecretRefreshToken = "refresh_token"
)

// ErrMissingCredential means the secret blob lacks the key this provider
// needs, e.g. no refresh token on record yet.
var ErrMissingCredential = errors.New("missing credential for source")

// RemoteObject is one candidate file in a remote listing. Path carrying
// providers (SFTP, FTPS) populate Path; id carrying providers (cloud drives)
// populate ID. Exactly one is set.
type RemoteObject struct {
	ID         string
	Path       string
	Name       string
	ModifiedAt time.Time
	Size       int64
}

// FetchedFile is the downloaded content plus a mime type hint for the
// import pipeline
type FetchedFile struct {
	Content  []byte
	MimeType string
	Name     string
}

// Connector is the polling contract every provider implements
type Connector interface {
	// List opens the provider session and enumerates candidate objects.
	// The second return value is a replacement secret blob when the
	// provider rotated the credential during the call, nil otherwise.
	List(ctx context.Context, settings source.Settings, secrets map[string]string) ([]RemoteObject, map[string]string, error)
	// Download fetches one object over the session opened by List
	Download(ctx context.Context, obj RemoteObject) (*FetchedFile, error)
	// Close releases the session
	Close() error
}

// Config carries the OAuth client credentials the cloud drive connectors
// need to mint access tokens
type Config struct {
	GoogleClientID      string
	GoogleClientSecret  string
	DropboxClientID     string
	DropboxClientSecret string
}

// ForProvider returns a fresh connector for a provider identity
func ForProvider(provider string, cfg Config) (Connector, error) {
	switch provider {
	case source.ProviderSFTP:
		return &sftpConnector{}, nil
	case source.ProviderFTPS:
		return &ftpsConnector{}, nil
	case source.ProviderGDrive:
		return newDriveConnector(cfg), nil
	case source.ProviderDropbox:
		return &dropboxConnector{cfg: cfg}, nil
	}
	return nil, fmt.Errorf("no connector for provider %s", provider)
}

// FilterObjects applies the case insensitive filename glob and then caps the
// result to limit. Filtering happens before capping so the limit always
// applies to relevant files, not an arbitrary prefix of the raw listing. An
// empty pattern matches everything; a limit of zero or less means no cap.
func FilterObjects(objects []RemoteObject, pattern string, limit int) ([]RemoteObject, error) {
	matched := objects
	if pattern != "" {
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid filename glob %q: %v", pattern, err)
		}
		matched = make([]RemoteObject, 0, len(objects))
		for _, obj := range objects {
			if g.Match(strings.ToLower(obj.Name)) {
				matched = append(matched, obj)
			}
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func mimeTypeHint(name string) string {
	if hint := mime.TypeByExtension(filepath.Ext(name)); hint != "" {
		return hint
	}
	return "application/octet-stream"
}
