package source

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

// Settings is the provider specific half of a source's configuration. Each
// provider has its own variant carrying only the fields that provider needs;
// a blob that fails validation is a per-source configuration error, never a
// global one.
type Settings interface {
	// Pattern returns the filename glob, empty meaning match everything
	Pattern() string
	Validate() error
}

// SFTPSettings configures an SFTP source
type SFTPSettings struct {
	Host               string `json:"host"`
	Port               int    `json:"port"`
	Username           string `json:"username"`
	Folder             string `json:"folder"`
	Glob               string `json:"glob"`
	HostKeyFingerprint string `json:"host_key_fingerprint"`
}

func (s *SFTPSettings) Pattern() string { return s.Glob }

func (s *SFTPSettings) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("sftp settings missing required field host")
	}
	if s.Username == "" {
		return fmt.Errorf("sftp settings missing required field username")
	}
	if s.Folder == "" {
		return fmt.Errorf("sftp settings missing required field folder")
	}
	if s.Port == 0 {
		s.Port = 22
	}
	return nil
}

// FTPSSettings configures an FTPS source
type FTPSSettings struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Folder   string `json:"folder"`
	Glob     string `json:"glob"`
}

func (s *FTPSSettings) Pattern() string { return s.Glob }

func (s *FTPSSettings) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("ftps settings missing required field host")
	}
	if s.Username == "" {
		return fmt.Errorf("ftps settings missing required field username")
	}
	if s.Folder == "" {
		return fmt.Errorf("ftps settings missing required field folder")
	}
	if s.Port == 0 {
		s.Port = 21
	}
	return nil
}

// DriveSettings configures a Google Drive source
type DriveSettings struct {
	FolderID string `json:"folder_id"`
	Glob     string `json:"glob"`
}

func (s *DriveSettings) Pattern() string { return s.Glob }

func (s *DriveSettings) Validate() error {
	if s.FolderID == "" {
		return fmt.Errorf("gdrive settings missing required field folder_id")
	}
	return nil
}

// DropboxSettings configures a Dropbox source
type DropboxSettings struct {
	Folder string `json:"folder"`
	Glob   string `json:"glob"`
}

func (s *DropboxSettings) Pattern() string { return s.Glob }

func (s *DropboxSettings) Validate() error {
	if s.Folder == "" {
		return fmt.Errorf("dropbox settings missing required field folder")
	}
	return nil
}

// ParseSettings decodes and validates the settings blob for a provider
func ParseSettings(provider string, raw datatypes.JSON) (Settings, error) {
	var settings Settings
	switch provider {
	case ProviderSFTP:
		settings = &SFTPSettings{}
	case ProviderFTPS:
		settings = &FTPSSettings{}
	case ProviderGDrive:
		settings = &DriveSettings{}
	case ProviderDropbox:
		settings = &DropboxSettings{}
	default:
		return nil, fmt.Errorf("unknown provider %s", provider)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing settings for provider %s", provider)
	}
	if err := json.Unmarshal(raw, settings); err != nil {
		return nil, fmt.Errorf("invalid settings for provider %s: %v", provider, err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}
