package domain

import (
	"errors"
	"time"
)

var (
	MessageSuccessUploadReceipt = "receipt uploaded successfully"
	MessageSuccessGetReceipts   = "receipts retrieved successfully"
	MessageSuccessGetReceipt    = "receipt retrieved successfully"

	MessageFailedUploadReceipt = "failed to upload receipt"
	MessageFailedGetReceipts   = "failed to retrieve receipts"
	MessageFailedGetReceipt    = "failed to retrieve receipt"

	ErrFileRequired      = errors.New("file is required")
	ErrImageUndecodable  = errors.New("image could not be decoded")
	ErrReceiptNotFound   = errors.New("receipt not found")
	ErrReceiptImageEmpty = errors.New("receipt has no stored images")
)

const (
	ReceiptStatusPending   = "pending"
	ReceiptStatusRejected  = "rejected"
	ReceiptStatusClaimable = "claimable"
	ReceiptStatusClaimed   = "claimed"
)

const (
	// Points a perfect-quality receipt is worth. The assigned point is
	// floor(BasePointPerReceipt * qualityRate / 100).
	BasePointPerReceipt = 100

	// Minimum extraction quality for a receipt to become claimable.
	MinClaimableQualityRate = 30

	// A receipt dated further than this into the future is rejected.
	MaxIssuedAtSkew = 7 * 24 * time.Hour
)

type (
	// ExtractionResult is what the vision model returns for one receipt.
	// Fields the model cannot read with confidence stay nil.
	ExtractionResult struct {
		MerchantName  *string    `json:"merchantName"`
		IssuedAt      *time.Time `json:"issuedAt"`
		CountryCode   *string    `json:"countryCode"`
		Currency      *string    `json:"currency"`
		TotalAmount   *float64   `json:"totalAmount"`
		PaymentMethod *string    `json:"paymentMethod"`
		QualityRate   int        `json:"qualityRate"`
	}

	UploadReceiptResponse struct {
		Result string `json:"result"`
	}

	ReceiptListItem struct {
		ID            string    `json:"id"`
		MerchantName  string    `json:"merchant_name"`
		Status        string    `json:"status"`
		Currency      string    `json:"currency,omitempty"`
		TotalAmount   *float64  `json:"total_amount,omitempty"`
		AssignedPoint int       `json:"assigned_point"`
		QualityRate   int       `json:"quality_rate"`
		CreatedAt     time.Time `json:"created_at"`
	}

	ReceiptListResponse struct {
		TotalCount int               `json:"total_count"`
		List       []ReceiptListItem `json:"list"`
	}

	ReceiptImageRef struct {
		ID       string `json:"id"`
		NumOrder int    `json:"num_order"`
	}

	ReceiptDetailResponse struct {
		ID            string            `json:"id"`
		Status        string            `json:"status"`
		MerchantName  *string           `json:"merchant_name,omitempty"`
		IssuedAt      *time.Time        `json:"issued_at,omitempty"`
		CountryCode   *string           `json:"country_code,omitempty"`
		Currency      *string           `json:"currency,omitempty"`
		TotalAmount   *float64          `json:"total_amount,omitempty"`
		PaymentMethod *string           `json:"payment_method,omitempty"`
		QualityRate   int               `json:"quality_rate"`
		AssignedPoint int               `json:"assigned_point"`
		AnalysisError *string           `json:"analysis_error,omitempty"`
		Images        []ReceiptImageRef `json:"images"`
		CreatedAt     time.Time         `json:"created_at"`
	}
)
