package entities

import (
	"time"
)

// PointLog rows are append-only. afterBalance caches the running balance,
// accumulatedBalance sums credits only and never decreases.
type PointLog struct {
	ID          string `gorm:"type:varchar(27);primary_key" json:"id"`
	UserAddress string `gorm:"type:varchar(255);index;not null" json:"user_address"`

	Diff               int `json:"diff"`
	AfterBalance       int `json:"after_balance"`
	AccumulatedBalance int `json:"accumulated_balance"`

	SourceType string  `gorm:"index;not null" json:"source_type"` // "airdrop", "receipt-upload"
	SourceID   *string `json:"source_id,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// PointClaim is the write-once audit record of one claim settlement.
type PointClaim struct {
	ID          string `gorm:"type:varchar(27);primary_key" json:"id"`
	UserAddress string `gorm:"type:varchar(255);index;not null" json:"user_address"`

	Signal            string `json:"signal"`
	Action            string `json:"action"`
	MerkleRoot        string `gorm:"type:text" json:"merkle_root"`
	NullifierHash     string `gorm:"type:text" json:"nullifier_hash"`
	SignalHash        string `gorm:"type:text" json:"signal_hash"`
	VerificationLevel string `json:"verification_level"` // "device", "orb"
	Proof             string `gorm:"type:text" json:"proof"`

	TotalAmount int `json:"total_amount"`
	// JSON-encoded list of the receipt ids folded into this claim.
	ReceiptIDs string `gorm:"type:text" json:"receipt_ids"`

	CreatedAt time.Time `json:"created_at"`
}
