package domain

import (
	"errors"
)

var (
	MessageSuccessGetPointStat = "point stat retrieved successfully"
	MessageSuccessClaimPoint   = "points claimed successfully"

	MessageFailedGetPointStat = "failed to retrieve point stat"
	MessageFailedClaimPoint   = "failed to claim points"

	ErrInsufficientPoint = errors.New("insufficient point")
	ErrInvalidProof      = errors.New("invalid proof")
)

const (
	PointSourceAirdrop       = "airdrop"
	PointSourceReceiptUpload = "receipt-upload"

	// Protocol constants for the claim proof. Both sides of the World ID
	// verification must agree on these strings.
	ClaimAction = "claim-point"
	ClaimSignal = "claim"

	CodeInvalidProof = "INVALID_PROOF"
)

type (
	UserPoint struct {
		AfterBalance       int `json:"after_balance"`
		AccumulatedBalance int `json:"accumulated_balance"`
	}

	PointStatResponse struct {
		AccumulatedPoint int `json:"accumulatedPoint"`
		CurrentPoint     int `json:"currentPoint"`
		ClaimablePoint   int `json:"claimablePoint"`
	}

	ClaimPointRequest struct {
		Proof             string `json:"proof" validate:"required"`
		VerificationLevel string `json:"verification_level" validate:"required,oneof=device orb"`
		MerkleRoot        string `json:"merkle_root" validate:"required"`
		NullifierHash     string `json:"nullifier_hash" validate:"required"`
	}

	ClaimPointResponse struct {
		ClaimedPoint int `json:"claimedPoint"`
	}
)
