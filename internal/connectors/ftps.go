package connectors

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"path"

	"github.com/RedHatInsights/document_source_sync/internal/models/source"
	"github.com/jlaffaye/ftp"
)

type ftpsConnector struct {
	conn *ftp.ServerConn
}

func (c *ftpsConnector) List(ctx context.Context, settings source.Settings, secrets map[string]string) ([]RemoteObject, map[string]string, error) {
	cfg, ok := settings.(*source.FTPSSettings)
	if !ok {
		return nil, nil, fmt.Errorf("ftps connector handed %T settings", settings)
	}
	password, ok := secrets[SecretPassword]
	if !ok || password == "" {
		return nil, nil, ErrMissingCredential
	}

	conn, err := ftp.Dial(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		ftp.DialWithContext(ctx),
		ftp.DialWithExplicitTLS(&tls.Config{ServerName: cfg.Host}))
	if err != nil {
		return nil, nil, fmt.Errorf("ftps connect to %s failed: %v", cfg.Host, err)
	}
	if err := conn.Login(cfg.Username, password); err != nil {
		conn.Quit()
		return nil, nil, fmt.Errorf("ftps login to %s failed: %v", cfg.Host, err)
	}
	c.conn = conn

	entries, err := conn.List(cfg.Folder)
	if err != nil {
		return nil, nil, fmt.Errorf("ftps listing %s failed: %v", cfg.Folder, err)
	}
	var objects []RemoteObject
	for _, entry := range entries {
		if entry.Type != ftp.EntryTypeFile {
			continue
		}
		objects = append(objects, RemoteObject{
			Path:       path.Join(cfg.Folder, entry.Name),
			Name:       entry.Name,
			ModifiedAt: entry.Time.UTC(),
			Size:       int64(entry.Size),
		})
	}
	return objects, nil, nil
}

func (c *ftpsConnector) Download(ctx context.Context, obj RemoteObject) (*FetchedFile, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("ftps download before list")
	}
	resp, err := c.conn.Retr(obj.Path)
	if err != nil {
		return nil, fmt.Errorf("ftps retrieve %s failed: %v", obj.Path, err)
	}
	defer resp.Close()
	content, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("ftps read %s failed: %v", obj.Path, err)
	}
	return &FetchedFile{Content: content, MimeType: mimeTypeHint(obj.Name), Name: obj.Name}, nil
}

func (c *ftpsConnector) Close() error {
	if c.conn != nil {
		return c.conn.Quit()
	}
	return nil
}
