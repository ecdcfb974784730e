package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"receipto/domain"
	"receipto/internal/utils"
)

// Extractor turns receipt photos into structured fields plus a quality score.
type Extractor interface {
	Extract(ctx context.Context, images [][]byte, countryHint string) (*domain.ExtractionResult, error)
}

const systemPrompt = `You must extract structured data from receipt images from any country.
You must never guess missing information. Only use what is clearly visible.

Respond ONLY with a valid JSON object containing exactly these fields:
'merchantName' (string or null), 'issuedAt' (ISO 8601 string or null),
'countryCode' (2-letter ISO or null), 'currency' (ISO code or null),
'totalAmount' (number or null), 'paymentMethod' (string or null),
'qualityRate' (integer 0-100).

Rules:
- merchantName must be the business issuing the receipt, never a payment
  processor or card brand.
- totalAmount must come from a line explicitly labeled as a final total
  (TOTAL, TOTAL A PAGAR, IMPORTE TOTAL, ...). If no total label exists,
  totalAmount must be null and qualityRate must be 40 or below.
- If a date component is ambiguous, issuedAt must be null.
- Never output empty strings; use null.
- qualityRate reflects how reliably merchantName, issuedAt and totalAmount
  can be read: 90-100 perfect, 70-89 minor blur, 40-69 moderate distortion,
  0-39 very poor or missing core fields.
Do not include any explanations, markdown formatting, or extra text.`

type openAIExtractor struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

func NewOpenAIExtractor() Extractor {
	return &openAIExtractor{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    utils.GetConfig("OPENAI_BASE_URL"),
		apiKey:     utils.GetConfig("OPENAI_API_KEY"),
		model:      utils.GetConfig("OPENAI_MODEL"),
	}
}

// extractionPayload is the wire shape the model is asked to produce.
type extractionPayload struct {
	MerchantName  *string  `json:"merchantName"`
	IssuedAt      *string  `json:"issuedAt"`
	CountryCode   *string  `json:"countryCode"`
	Currency      *string  `json:"currency"`
	TotalAmount   *float64 `json:"totalAmount"`
	PaymentMethod *string  `json:"paymentMethod"`
	QualityRate   int      `json:"qualityRate"`
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

func (e *openAIExtractor) Extract(ctx context.Context, images [][]byte, countryHint string) (*domain.ExtractionResult, error) {
	if e.apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not configured")
	}

	userParts := []map[string]interface{}{
		{
			"type": "text",
			"text": fmt.Sprintf(
				"Analyze this receipt and return the information strictly following the schema. The uploader is likely in country %q; use that only to disambiguate formats, never to invent data.",
				countryHint,
			),
		},
	}
	for _, image := range images {
		userParts = append(userParts, map[string]interface{}{
			"type": "image_url",
			"image_url": map[string]interface{}{
				"url":    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image),
				"detail": "auto",
			},
		})
	}

	requestBody := map[string]interface{}{
		"model": e.model,
		"messages": []map[string]interface{}{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userParts},
		},
		"response_format": map[string]interface{}{"type": "json_object"},
	}

	requestJSON, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewBuffer(requestJSON))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("extraction API error: %s - %s", resp.Status, string(bodyBytes))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, err
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("no content from extraction model")
	}

	payload, err := parsePayload(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	return payload.toResult()
}

// parsePayload tolerates models that wrap the JSON in markdown fences or prose.
func parsePayload(content string) (*extractionPayload, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}
	if match := jsonObjectPattern.FindString(content); match != "" {
		content = match
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse extraction response: %w - raw: %s", err, content)
	}
	return &payload, nil
}

func (p *extractionPayload) toResult() (*domain.ExtractionResult, error) {
	result := &domain.ExtractionResult{
		MerchantName:  p.MerchantName,
		CountryCode:   p.CountryCode,
		Currency:      p.Currency,
		TotalAmount:   p.TotalAmount,
		PaymentMethod: p.PaymentMethod,
		QualityRate:   p.QualityRate,
	}

	if p.IssuedAt != nil && *p.IssuedAt != "" {
		issuedAt, err := time.Parse(time.RFC3339, *p.IssuedAt)
		if err != nil {
			// date-only fallback, e.g. "2025-08-01"
			issuedAt, err = time.Parse("2006-01-02", *p.IssuedAt)
		}
		if err == nil {
			result.IssuedAt = &issuedAt
		}
	}

	return result, nil
}
