package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipto/domain"
	"receipto/internal/api/presenters"
	"receipto/pkg/queue"
)

type stubReceiptService struct {
	submitErr error
}

func (s *stubReceiptService) SubmitReceipt(context.Context, string, []byte, string) error {
	return s.submitErr
}

func (s *stubReceiptService) ListReceipts(context.Context, string) (domain.ReceiptListResponse, error) {
	return domain.ReceiptListResponse{}, nil
}

func (s *stubReceiptService) GetReceiptByID(context.Context, string, string) (domain.ReceiptDetailResponse, error) {
	return domain.ReceiptDetailResponse{}, nil
}

func (s *stubReceiptService) ProcessAnalysis(context.Context, string, string) error { return nil }

func (s *stubReceiptService) FailAnalysis(context.Context, string, error) {}

func (s *stubReceiptService) ProcessArchiveUpload(context.Context, uuid.UUID) error { return nil }

func (s *stubReceiptService) ProcessImageOCR(context.Context, uuid.UUID) error { return nil }

func (s *stubReceiptService) RegisterJobHandlers(*queue.Dispatcher) {}

func newUploadApp(svc *stubReceiptService) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_address", "0xabc")
		return c.Next()
	})
	app.Post("/receipts", NewReceiptHandler(svc).UploadReceipt)
	return app
}

func uploadRequest(t *testing.T) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", "receipt.jpg")
	require.NoError(t, err)
	_, err = fw.Write([]byte("image-bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/receipts", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeResponse(t *testing.T, resp *http.Response) presenters.Response {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out presenters.Response
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestUploadReceiptResultLiteral(t *testing.T) {
	app := newUploadApp(&stubReceiptService{})

	resp, err := app.Test(uploadRequest(t))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	out := decodeResponse(t, resp)
	assert.True(t, out.Success)
	data, ok := out.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "success", data["result"])
}

func TestUploadReceiptMissingFile(t *testing.T) {
	app := newUploadApp(&stubReceiptService{})

	req := httptest.NewRequest(http.MethodPost, "/receipts", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestUploadReceiptUndecodableImage(t *testing.T) {
	app := newUploadApp(&stubReceiptService{submitErr: domain.ErrImageUndecodable})

	resp, err := app.Test(uploadRequest(t))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
