package utils

import (
	"bytes"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	userID := uuid.New()
	token, err := GenerateToken("secret", userID, "organizer", time.Hour)
	require.NoError(t, err)

	gotID, role, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, userID, gotID)
	assert.Equal(t, "organizer", role)

	_, _, err = ParseToken("other-secret", token)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := GenerateToken("secret", uuid.New(), "customer", -time.Minute)
	require.NoError(t, err)

	_, _, err = ParseToken("secret", token)
	assert.Error(t, err)
}

func TestGenerateInvoiceNumber(t *testing.T) {
	now := time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC)
	pattern := regexp.MustCompile(`^INV-20250309-[0-9A-Z]{6}$`)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		invoice, err := GenerateInvoiceNumber(now)
		require.NoError(t, err)
		assert.Regexp(t, pattern, invoice)
		seen[invoice] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestInvoiceSuffixRedrawsBiasedBytes(t *testing.T) {
	suffix, err := invoiceSuffix(bytes.NewReader([]byte{255, 252, 0, 1, 2, 3, 35, 251}), 6)
	require.NoError(t, err)
	assert.Equal(t, "0123ZZ", suffix)

	_, err = invoiceSuffix(bytes.NewReader([]byte{252, 253, 254}), 6)
	assert.Error(t, err)
}

func TestNewPagination(t *testing.T) {
	tests := []struct {
		name        string
		page, limit int
		want        Pagination
	}{
		{"defaults", 0, 0, Pagination{Page: 1, Limit: DefaultLimit, Offset: 0}},
		{"clamps limit", 2, 500, Pagination{Page: 2, Limit: MaxLimit, Offset: MaxLimit}},
		{"negative page", -3, 5, Pagination{Page: 1, Limit: 5, Offset: 0}},
		{"third page", 3, 20, Pagination{Page: 3, Limit: 20, Offset: 40}},
		{"huge page", math.MaxInt, MaxLimit, Pagination{Page: MaxPage, Limit: MaxLimit, Offset: (MaxPage - 1) * MaxLimit}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewPagination(tt.page, tt.limit))
		})
	}
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, TotalPages(0, 10))
	assert.Equal(t, 1, TotalPages(10, 10))
	assert.Equal(t, 2, TotalPages(11, 10))
	assert.Equal(t, 0, TotalPages(5, 0))
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "s3cret"))
	assert.False(t, CheckPassword(hash, "wrong"))
}
