package kerr_test

import (
	"testing"

	"github.com/kaal-project/kaal/internal/kerr"
	"github.com/stretchr/testify/assert"
)

func TestIs(t *testing.T) {
	err := kerr.New(kerr.InsufficientRights, "write required")
	assert.True(t, kerr.Is(err, kerr.InsufficientRights))
	assert.False(t, kerr.Is(err, kerr.NotFound))
	assert.Equal(t, "InsufficientRights: write required", err.Error())
}

func TestSentinel(t *testing.T) {
	assert.Equal(t, uint64(0xFFFFFFFFFFFFFFFF), kerr.Sentinel)
}
