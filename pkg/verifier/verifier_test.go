package verifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashToFieldShape(t *testing.T) {
	h := HashToField("claim")

	assert.Len(t, h, 66)
	assert.Equal(t, "0x", h[:2])
	// Shifted right by a byte, so the top byte is always zero.
	assert.Equal(t, "00", h[2:4])
}

func TestHashToFieldDeterministic(t *testing.T) {
	assert.Equal(t, HashToField("claim"), HashToField("claim"))
	assert.NotEqual(t, HashToField("claim"), HashToField("other"))
}

func TestHashToFieldEmptySignal(t *testing.T) {
	h := HashToField("")
	assert.Len(t, h, 66)
}
