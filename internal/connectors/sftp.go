package connectors

import (
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"time"

	"github.com/RedHatInsights/document_source_sync/internal/models/source"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

type sftpConnector struct {
	sshClient *ssh.Client
	client    *sftp.Client
}

func (c *sftpConnector) List(ctx context.Context, settings source.Settings, secrets map[string]string) ([]RemoteObject, map[string]string, error) {
	cfg, ok := settings.(*source.SFTPSettings)
	if !ok {
		return nil, nil, fmt.Errorf("sftp connector handed %T settings", settings)
	}
	password, ok := secrets[SecretPassword]
	if !ok || password == "" {
		return nil, nil, ErrMissingCredential
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.HostKeyFingerprint != "" {
		pinned := cfg.HostKeyFingerprint
		hostKeyCallback = func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			if ssh.FingerprintSHA256(key) != pinned {
				return fmt.Errorf("host key mismatch for %s", hostname)
			}
			return nil
		}
	}

	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	sshClient, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("sftp connect to %s failed: %v", cfg.Host, err)
	}
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("sftp session on %s failed: %v", cfg.Host, err)
	}
	c.sshClient = sshClient
	c.client = client

	entries, err := client.ReadDir(cfg.Folder)
	if err != nil {
		return nil, nil, fmt.Errorf("sftp listing %s failed: %v", cfg.Folder, err)
	}
	var objects []RemoteObject
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		objects = append(objects, RemoteObject{
			Path:       path.Join(cfg.Folder, entry.Name()),
			Name:       entry.Name(),
			ModifiedAt: entry.ModTime().UTC(),
			Size:       entry.Size(),
		})
	}
	return objects, nil, nil
}

func (c *sftpConnector) Download(ctx context.Context, obj RemoteObject) (*FetchedFile, error) {
	if c.client == nil {
		return nil, fmt.Errorf("sftp download before list")
	}
	f, err := c.client.Open(obj.Path)
	if err != nil {
		return nil, fmt.Errorf("sftp open %s failed: %v", obj.Path, err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("sftp read %s failed: %v", obj.Path, err)
	}
	return &FetchedFile{Content: content, MimeType: mimeTypeHint(obj.Name), Name: obj.Name}, nil
}

func (c *sftpConnector) Close() error {
	if c.client != nil {
		c.client.Close()
	}
	if c.sshClient != nil {
		return c.sshClient.Close()
	}
	return nil
}
