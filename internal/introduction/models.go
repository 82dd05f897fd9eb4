package introduction

import (
	"bytes"
	"time"

	"unykorn/pkg/domain"
)

// Introduction records who introduced an unordered pair of identities.
type Introduction struct {
	ID          domain.IntroductionID
	Introducer  domain.Address
	A           domain.Address
	B           domain.Address
	Confirmed   bool
	ConfirmedBy domain.Address
	CreatedAt   time.Time
	ConfirmedAt time.Time
	// Volume and Commission accumulate over recorded transactions. Commission
	// is the pre-burn amount sent to the introducer.
	Volume     domain.Amount
	Commission domain.Amount
}

// Involves reports whether who is one of the introduced parties.
func (i Introduction) Involves(who domain.Address) bool {
	return who == i.A || who == i.B
}

// Pair is the order-independent key of two identities.
type Pair struct {
	Lo, Hi domain.Address
}

// PairOf orders a and b so PairOf(a, b) == PairOf(b, a).
func PairOf(a, b domain.Address) Pair {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return Pair{Lo: a, Hi: b}
}

// Payout is the result of one commission payment.
type Payout struct {
	Introducer domain.Address
	Commission domain.Amount
	Burned     domain.Amount
}

// Received is what the introducer actually got after the transfer burn.
func (p Payout) Received() domain.Amount {
	return p.Commission - p.Burned
}
