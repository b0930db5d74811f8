package connectors

import (
	"context"
	"fmt"
	"io"

	"github.com/RedHatInsights/document_source_sync/internal/models/source"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"golang.org/x/oauth2"
)

// DropboxOAuthEndpoint is shared with the connection authorization flow
var DropboxOAuthEndpoint = oauth2.Endpoint{
	AuthURL:  "https://www.dropbox.com/oauth2/authorize",
	TokenURL: "https://api.dropboxapi.com/oauth2/token",
}

type dropboxConnector struct {
	cfg    Config
	client files.Client
}

func (c *dropboxConnector) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.DropboxClientID,
		ClientSecret: c.cfg.DropboxClientSecret,
		Endpoint:     DropboxOAuthEndpoint,
	}
}

func (c *dropboxConnector) List(ctx context.Context, settings source.Settings, secrets map[string]string) ([]RemoteObject, map[string]string, error) {
	cfg, ok := settings.(*source.DropboxSettings)
	if !ok {
		return nil, nil, fmt.Errorf("dropbox connector handed %T settings", settings)
	}
	refreshToken, ok := secrets[SecretRefreshToken]
	if !ok || refreshToken == "" {
		return nil, nil, ErrMissingCredential
	}

	ts := c.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := ts.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("dropbox token refresh failed: %v", err)
	}
	c.client = files.New(dropbox.Config{Token: token.AccessToken})

	// The Dropbox API addresses the root folder as ""
	folder := cfg.Folder
	if folder == "/" {
		folder = ""
	}

	var objects []RemoteObject
	res, err := c.client.ListFolder(files.NewListFolderArg(folder))
	if err != nil {
		return nil, nil, fmt.Errorf("dropbox listing %s failed: %v", cfg.Folder, err)
	}
	for {
		for _, entry := range res.Entries {
			md, ok := entry.(*files.FileMetadata)
			if !ok {
				continue
			}
			objects = append(objects, RemoteObject{
				ID:         md.Id,
				Name:       md.Name,
				ModifiedAt: md.ServerModified.UTC(),
				Size:       int64(md.Size),
			})
		}
		if !res.HasMore {
			break
		}
		res, err = c.client.ListFolderContinue(files.NewListFolderContinueArg(res.Cursor))
		if err != nil {
			return nil, nil, fmt.Errorf("dropbox listing %s failed: %v", cfg.Folder, err)
		}
	}

	var refreshed map[string]string
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		refreshed = map[string]string{SecretRefreshToken: token.RefreshToken}
	}
	return objects, refreshed, nil
}

func (c *dropboxConnector) Download(ctx context.Context, obj RemoteObject) (*FetchedFile, error) {
	if c.client == nil {
		return nil, fmt.Errorf("dropbox download before list")
	}
	_, content, err := c.client.Download(files.NewDownloadArg(obj.ID))
	if err != nil {
		return nil, fmt.Errorf("dropbox download %s failed: %v", obj.Name, err)
	}
	defer content.Close()
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("dropbox read %s failed: %v", obj.Name, err)
	}
	return &FetchedFile{Content: data, MimeType: mimeTypeHint(obj.Name), Name: obj.Name}, nil
}

func (c *dropboxConnector) Close() error {
	return nil
}
