package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"receipto/internal/utils"
)

// Client runs a standalone OCR pass over one receipt image. The raw JSON
// result is stored verbatim on the receipt image row; nothing downstream
// depends on it yet.
type Client interface {
	Run(ctx context.Context, image []byte) (string, error)
}

type httpClient struct {
	client  *http.Client
	baseURL string
}

func NewHTTPClient() Client {
	return &httpClient{
		client:  &http.Client{Timeout: 2 * time.Minute},
		baseURL: utils.GetConfig("OCR_API_URL"),
	}
}

func (c *httpClient) Run(ctx context.Context, image []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr", bytes.NewReader(image))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read ocr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr error: %s - %s", resp.Status, string(body))
	}
	return string(body), nil
}
