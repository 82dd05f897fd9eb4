package domain

import (
	"math/bits"
	"strconv"

	dErrors "unykorn/pkg/domain-errors"
)

// Amount is a quantity in base units. Token amounts and payment amounts share
// the representation but never mix within one ledger.
type Amount uint64

// Bps is a ratio in basis points, 10000 = 100%.
type Bps uint32

// BpsDenominator is the basis point scale.
const BpsDenominator Bps = 10000

// MaxAmount is the largest representable Amount.
const MaxAmount = Amount(^uint64(0))

// Valid reports whether b is at most 100%.
func (b Bps) Valid() bool {
	return b <= BpsDenominator
}

func (b Bps) String() string {
	return strconv.FormatUint(uint64(b), 10) + "bps"
}

// MulBps returns floor(a * b / 10000). The intermediate product is computed in
// 128 bits so it cannot overflow for any a and valid b.
func (a Amount) MulBps(b Bps) Amount {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	q, _ := bits.Div64(hi, lo, uint64(BpsDenominator))
	return Amount(q)
}

// Add returns a+b or a CodeInvariantViolation error on overflow.
func (a Amount) Add(b Amount) (Amount, error) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		return 0, dErrors.New(dErrors.CodeInvariantViolation, "amount overflow")
	}
	return Amount(sum), nil
}

// Sub returns a-b or a CodeInsufficientFunds error when b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	if b > a {
		return 0, dErrors.New(dErrors.CodeInsufficientFunds, "insufficient balance")
	}
	return a - b, nil
}

func (a Amount) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

// ParseAmount parses a base-10 unsigned amount.
func ParseAmount(s string) (Amount, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid amount")
	}
	return Amount(v), nil
}
