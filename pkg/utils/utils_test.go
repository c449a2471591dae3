package utils

import (
	"testing"

	"reward_engine/internal/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	config.GlobalConfig.JWT.Secret = "test-secret-which-is-long-enough-0123456789"
	config.GlobalConfig.JWT.Expire = 1

	token, exp, err := GenerateToken("u-1", "branch_manager", []string{"5"})
	require.NoError(t, err)
	require.NotNil(t, exp)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "branch_manager", claims.Role)
	assert.Equal(t, []string{"5"}, claims.StoreIDs)

	_, err = ParseToken(token + "x")
	assert.Error(t, err)
}

func TestReferralCode(t *testing.T) {
	a, b := NewReferralCode(), NewReferralCode()
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
}

func TestPagination(t *testing.T) {
	p := Pagination{Page: 0, Limit: 500}
	offset, limit := p.GetPageOffset()
	assert.Equal(t, 0, offset)
	assert.Equal(t, 100, limit)

	p = Pagination{Page: 3, Limit: 20}
	offset, limit = p.GetPageOffset()
	assert.Equal(t, 40, offset)
	assert.Equal(t, 20, limit)
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "010****5678", MaskPhone("01012345678"))
	assert.Equal(t, "****", MaskPhone("123"))
}
