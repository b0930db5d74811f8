// Package importpipeline is the client side of the document import
// collaborator. The sync engine hands fetched bytes over and gets back the
// stored document reference; extraction and accounting happen on the other
// side of this boundary.
package importpipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

// ImportRequest is one fetched file plus the context the pipeline needs
type ImportRequest struct {
	TenantID int64           `json:"tenant_id"`
	SourceID int64           `json:"source_id"`
	Name     string          `json:"name"`
	MimeType string          `json:"mime_type"`
	Content  []byte          `json:"content"`
	Config   json.RawMessage `json:"config,omitempty"`
}

type importResponse struct {
	DocumentID string `json:"document_id"`
}

// ImportPipeline hands fetched files to the document import service
type ImportPipeline interface {
	Import(ctx context.Context, logger *logrus.Entry, request *ImportRequest, client *http.Client) (string, error)
}

type defaultImportPipeline struct {
	url string
}

// MakeImportPipeline creates a client for the configured pipeline endpoint
func MakeImportPipeline(url string) ImportPipeline {
	return &defaultImportPipeline{url: url}
}

// Import posts one fetched file and returns the stored document id
func (ip *defaultImportPipeline) Import(ctx context.Context, logger *logrus.Entry, request *ImportRequest, client *http.Client) (string, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		logger.Errorf("Error marshaling import payload %v", err)
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ip.url, bytes.NewBuffer(payload))
	if err != nil {
		logger.Errorf("Error creating import request %v", err)
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		logger.Errorf("Error calling import pipeline %v", err)
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Errorf("Error reading import response %v", err)
		return "", err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		err = fmt.Errorf("import pipeline returned status %d", resp.StatusCode)
		logger.Errorf("Error %v body %s", err, string(body))
		return "", err
	}
	var result importResponse
	if err := json.Unmarshal(body, &result); err != nil {
		logger.Errorf("Error parsing import response %v", err)
		return "", err
	}
	if result.DocumentID == "" {
		return "", fmt.Errorf("import pipeline returned no document id")
	}
	logger.Infof("Imported %s as document %s", request.Name, result.DocumentID)
	return result.DocumentID, nil
}
