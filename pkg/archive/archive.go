package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"receipto/internal/utils"
)

// Store archives receipt images in a content-addressed store and returns the
// resulting piece CID. Purely a side channel; failures never affect receipt
// status.
type Store interface {
	Save(ctx context.Context, image []byte) (string, error)
}

type httpStore struct {
	httpClient *http.Client
	baseURL    string
}

func NewHTTPStore() Store {
	return &httpStore{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		baseURL:    utils.GetConfig("ARCHIVE_API_URL"),
	}
}

func (s *httpStore) Save(ctx context.Context, image []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/pieces", bytes.NewReader(image))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("archive upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("archive upload error: %s - %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		PieceCID string `json:"pieceCid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode archive response: %w", err)
	}
	if out.PieceCID == "" {
		return "", fmt.Errorf("archive response missing piece cid")
	}
	return out.PieceCID, nil
}
