package domain

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "unykorn/pkg/domain-errors"
)

// TestParseAddress_Invariants validates the parsing invariant:
// "identities are 0x followed by exactly 40 hex digits"
//
// Justification: This is a pure function enforcing a domain invariant
// at trust boundaries (settlement instructions, genesis files).
func TestParseAddress_Invariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing prefix", strings.Repeat("a", 40)},
		{"too short", "0x" + strings.Repeat("a", 39)},
		{"too long", "0x" + strings.Repeat("a", 41)},
		{"non-hex", "0x" + strings.Repeat("g", 40)},
		{"embedded NUL", "0x" + strings.Repeat("a", 39) + "\x00"},
	}
	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, err := ParseAddress(tt.input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}

	t.Run("normalizes case", func(t *testing.T) {
		upper, err := ParseAddress("0x" + strings.Repeat("AB", 20))
		require.NoError(t, err)
		lower, err := ParseAddress("0x" + strings.Repeat("ab", 20))
		require.NoError(t, err)
		assert.Equal(t, lower, upper)
		assert.Equal(t, "0x"+strings.Repeat("ab", 20), upper.String())
	})

	t.Run("text round trip", func(t *testing.T) {
		a := ComponentAddress("presence")
		text, err := a.MarshalText()
		require.NoError(t, err)
		var b Address
		require.NoError(t, b.UnmarshalText(text))
		assert.Equal(t, a, b)
	})
}

func TestComponentAddress(t *testing.T) {
	assert.Equal(t, ComponentAddress("revenue.platform"), ComponentAddress("revenue.platform"))
	assert.NotEqual(t, ComponentAddress("revenue.platform"), ComponentAddress("revenue.tax"))
	assert.False(t, ComponentAddress("x").IsZero())
}

// TestMulBps_Floor verifies floor rounding and that the 128-bit intermediate
// never overflows.
//
// Justification: every split and burn in the ledger is computed here.
func TestMulBps_Floor(t *testing.T) {
	tests := []struct {
		amount Amount
		bps    Bps
		want   Amount
	}{
		{100_000, 300, 3_000},
		{10_000, 500, 500},
		{99, 300, 2},
		{1, 9999, 0},
		{100, 9000, 90},
		{MaxAmount, 10000, MaxAmount},
		{MaxAmount, 5000, Amount(math.MaxUint64 / 2)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.amount.MulBps(tt.bps), "%d * %d", tt.amount, tt.bps)
	}
}

func TestAmountArithmetic(t *testing.T) {
	t.Run("overflow", func(t *testing.T) {
		_, err := MaxAmount.Add(1)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("underflow", func(t *testing.T) {
		_, err := Amount(5).Sub(6)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientFunds))
	})
}

func TestParseJurisdiction(t *testing.T) {
	j, err := ParseJurisdiction(" us ")
	require.NoError(t, err)
	assert.Equal(t, Jurisdiction("US"), j)

	for _, bad := range []string{"", "USA", "U1", "ü"} {
		_, err := ParseJurisdiction(bad)
		assert.Error(t, err, bad)
	}
}

func TestDayOf(t *testing.T) {
	d := DayOf(time.Date(2024, 3, 1, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, d+1, DayOf(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-03-01", d.String())

	// Days are UTC regardless of the caller's zone.
	ny := time.FixedZone("EST", -5*60*60)
	assert.Equal(t, d+1, DayOf(time.Date(2024, 3, 1, 20, 0, 0, 0, ny)))

	assert.Equal(t, Day(-1), DayOf(time.Unix(-1, 0)))
}
