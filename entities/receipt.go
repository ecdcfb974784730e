package entities

import (
	"time"

	"github.com/google/uuid"
)

type Receipt struct {
	// KSUID, time-sortable. Generated in Go so the same model runs on every driver.
	ID          string `gorm:"type:varchar(27);primary_key" json:"id"`
	UserAddress string `gorm:"type:varchar(255);index;not null" json:"user_address"`

	Status        string `gorm:"index;default:pending" json:"status"` // "pending", "rejected", "claimable", "claimed"
	AssignedPoint int    `gorm:"default:0" json:"assigned_point"`

	MerchantName  *string    `json:"merchant_name,omitempty"`
	IssuedAt      *time.Time `json:"issued_at,omitempty"`
	CountryCode   *string    `gorm:"type:varchar(10)" json:"country_code,omitempty"`
	Currency      *string    `gorm:"type:varchar(10)" json:"currency,omitempty"`
	TotalAmount   *float64   `json:"total_amount,omitempty"`
	PaymentMethod *string    `json:"payment_method,omitempty"`
	QualityRate   int        `gorm:"default:0" json:"quality_rate"`

	AnalysisStartedAt   *time.Time `json:"analysis_started_at,omitempty"`
	AnalysisCompletedAt *time.Time `json:"analysis_completed_at,omitempty"`
	AnalysisError       *string    `gorm:"type:text" json:"analysis_error,omitempty"`

	// Ledger entry that settled this receipt. Set once, when status becomes claimed.
	PointLogID *string `gorm:"type:varchar(27)" json:"point_log_id,omitempty"`

	User   *User           `gorm:"foreignKey:UserAddress;references:Address;constraint:OnDelete:CASCADE"`
	Images []*ReceiptImage `gorm:"foreignKey:ReceiptID"`
	Timestamp
}

type ReceiptImage struct {
	// The image id doubles as the blob store object key.
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ReceiptID string    `gorm:"type:varchar(27);index;not null" json:"receipt_id"`
	NumOrder  int       `json:"num_order"`

	ArchiveStartedAt   *time.Time `json:"archive_started_at,omitempty"`
	ArchiveCompletedAt *time.Time `json:"archive_completed_at,omitempty"`
	ArchivePieceCID    *string    `gorm:"type:varchar(255)" json:"archive_piece_cid,omitempty"`
	ArchiveError       *string    `gorm:"type:text" json:"archive_error,omitempty"`

	OcrStartedAt   *time.Time `json:"ocr_started_at,omitempty"`
	OcrCompletedAt *time.Time `json:"ocr_completed_at,omitempty"`
	OcrResult      *string    `gorm:"type:text" json:"ocr_result,omitempty"`
	OcrError       *string    `gorm:"type:text" json:"ocr_error,omitempty"`

	Receipt *Receipt `gorm:"foreignKey:ReceiptID;constraint:OnDelete:CASCADE"`
	Timestamp
}
