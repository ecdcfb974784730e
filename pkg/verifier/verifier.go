package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"golang.org/x/crypto/sha3"

	"receipto/internal/utils"
)

// ProofVerifier checks a World ID proof-of-personhood. The verifier service
// owns nullifier replay protection; this client only relays its verdict.
type ProofVerifier interface {
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error)
}

type VerifyRequest struct {
	NullifierHash     string `json:"nullifier_hash"`
	MerkleRoot        string `json:"merkle_root"`
	Proof             string `json:"proof"`
	VerificationLevel string `json:"verification_level"`
	Action            string `json:"action"`
	SignalHash        string `json:"signal_hash"`
}

type VerifyResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// HashToField maps a signal string onto the proving field the way the World ID
// protocol expects: keccak256 shifted right by one byte, zero-padded hex.
func HashToField(signal string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signal))
	digest := new(big.Int).SetBytes(h.Sum(nil))
	digest.Rsh(digest, 8)
	return fmt.Sprintf("0x%064x", digest)
}

type worldVerifier struct {
	httpClient *http.Client
	appID      string
}

func NewWorldVerifier() ProofVerifier {
	return &worldVerifier{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		appID:      utils.GetConfig("WORLD_APP_ID"),
	}
}

func (v *worldVerifier) Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("https://developer.worldcoin.org/api/v2/verify/%s", v.appID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("verify proof: %w", err)
	}
	defer resp.Body.Close()

	var out VerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	return &out, nil
}
