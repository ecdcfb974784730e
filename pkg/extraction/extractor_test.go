package extraction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayloadPlainJSON(t *testing.T) {
	payload, err := parsePayload(`{"merchantName":"Corner Grocery","totalAmount":12.5,"qualityRate":85}`)
	require.NoError(t, err)
	require.NotNil(t, payload.MerchantName)
	assert.Equal(t, "Corner Grocery", *payload.MerchantName)
	require.NotNil(t, payload.TotalAmount)
	assert.Equal(t, 12.5, *payload.TotalAmount)
	assert.Equal(t, 85, payload.QualityRate)
}

func TestParsePayloadMarkdownFenced(t *testing.T) {
	payload, err := parsePayload("```json\n{\"merchantName\":\"Shop\",\"qualityRate\":60}\n```")
	require.NoError(t, err)
	require.NotNil(t, payload.MerchantName)
	assert.Equal(t, "Shop", *payload.MerchantName)
}

func TestParsePayloadSurroundingProse(t *testing.T) {
	payload, err := parsePayload(`Here is the result: {"qualityRate":40} hope that helps`)
	require.NoError(t, err)
	assert.Equal(t, 40, payload.QualityRate)
}

func TestParsePayloadGarbage(t *testing.T) {
	_, err := parsePayload("the image is too blurry to read")
	require.Error(t, err)
}

func TestToResultDateFormats(t *testing.T) {
	rfc := "2025-08-01T14:30:00Z"
	p := &extractionPayload{IssuedAt: &rfc}
	res, err := p.toResult()
	require.NoError(t, err)
	require.NotNil(t, res.IssuedAt)
	assert.Equal(t, time.Date(2025, 8, 1, 14, 30, 0, 0, time.UTC), res.IssuedAt.UTC())

	dateOnly := "2025-08-01"
	p = &extractionPayload{IssuedAt: &dateOnly}
	res, err = p.toResult()
	require.NoError(t, err)
	require.NotNil(t, res.IssuedAt)

	bad := "01/08/2025 maybe"
	p = &extractionPayload{IssuedAt: &bad}
	res, err = p.toResult()
	require.NoError(t, err)
	assert.Nil(t, res.IssuedAt)
}
