package connectors

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/RedHatInsights/document_source_sync/internal/models/source"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const (
	mimeTypeGoogleFolder = "application/vnd.google-apps.folder"
	googleAppsPrefix     = "application/vnd.google-apps."
	exportMimePDF        = "application/pdf"
)

// Drive allows 10 requests per second per user; stay under it
const driveRequestsPerSecond = 8

type driveConnector struct {
	cfg     Config
	svc     *drive.Service
	limiter *rate.Limiter
	// mime types observed during List, keyed by file id, so Download knows
	// which Google Workspace files need an export instead of a byte fetch
	mimeTypes map[string]string
}

func newDriveConnector(cfg Config) *driveConnector {
	return &driveConnector{
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(driveRequestsPerSecond), 10),
		mimeTypes: map[string]string{},
	}
}

func (c *driveConnector) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.GoogleClientID,
		ClientSecret: c.cfg.GoogleClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveReadonlyScope},
	}
}

func (c *driveConnector) List(ctx context.Context, settings source.Settings, secrets map[string]string) ([]RemoteObject, map[string]string, error) {
	cfg, ok := settings.(*source.DriveSettings)
	if !ok {
		return nil, nil, fmt.Errorf("gdrive connector handed %T settings", settings)
	}
	refreshToken, ok := secrets[SecretRefreshToken]
	if !ok || refreshToken == "" {
		return nil, nil, ErrMissingCredential
	}

	ts := c.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := ts.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("gdrive token refresh failed: %v", err)
	}
	svc, err := drive.NewService(ctx, option.WithTokenSource(oauth2.ReuseTokenSource(token, ts)))
	if err != nil {
		return nil, nil, fmt.Errorf("gdrive service setup failed: %v", err)
	}
	c.svc = svc

	var objects []RemoteObject
	query := fmt.Sprintf("'%s' in parents and trashed = false", cfg.FolderID)
	pageToken := ""
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
		call := svc.Files.List().Q(query).
			Fields("nextPageToken, files(id, name, mimeType, modifiedTime, size)").
			PageSize(200).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, nil, fmt.Errorf("gdrive listing folder %s failed: %v", cfg.FolderID, err)
		}
		for _, file := range page.Files {
			if file.MimeType == mimeTypeGoogleFolder {
				continue
			}
			modified, _ := time.Parse(time.RFC3339, file.ModifiedTime)
			c.mimeTypes[file.Id] = file.MimeType
			objects = append(objects, RemoteObject{
				ID:         file.Id,
				Name:       file.Name,
				ModifiedAt: modified.UTC(),
				Size:       file.Size,
			})
		}
		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	// Google rotates refresh tokens on some grants; hand the replacement
	// back so a stale one is never used twice
	var refreshed map[string]string
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		refreshed = map[string]string{SecretRefreshToken: token.RefreshToken}
	}
	return objects, refreshed, nil
}

func (c *driveConnector) Download(ctx context.Context, obj RemoteObject) (*FetchedFile, error) {
	if c.svc == nil {
		return nil, fmt.Errorf("gdrive download before list")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	mimeType := c.mimeTypes[obj.ID]
	var body io.ReadCloser
	hint := mimeType
	if strings.HasPrefix(mimeType, googleAppsPrefix) {
		// Workspace native files have no byte representation; export as PDF
		r, err := c.svc.Files.Export(obj.ID, exportMimePDF).Context(ctx).Download()
		if err != nil {
			return nil, fmt.Errorf("gdrive export %s failed: %v", obj.Name, err)
		}
		body = r.Body
		hint = exportMimePDF
	} else {
		r, err := c.svc.Files.Get(obj.ID).Context(ctx).Download()
		if err != nil {
			return nil, fmt.Errorf("gdrive download %s failed: %v", obj.Name, err)
		}
		body = r.Body
	}
	defer body.Close()
	content, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("gdrive read %s failed: %v", obj.Name, err)
	}
	if hint == "" {
		hint = mimeTypeHint(obj.Name)
	}
	return &FetchedFile{Content: content, MimeType: hint, Name: obj.Name}, nil
}

func (c *driveConnector) Close() error {
	return nil
}
