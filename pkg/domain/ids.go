package domain

import (
	"strconv"
	"strings"
	"time"

	dErrors "unykorn/pkg/domain-errors"
)

// Sequential identifiers handed out by their owning component, starting at 1.
type (
	OfferID        uint64
	ProposalID     uint64
	BeaconID       uint64
	IntroductionID uint64
	TierID         uint64
)

func (id OfferID) String() string        { return strconv.FormatUint(uint64(id), 10) }
func (id ProposalID) String() string     { return strconv.FormatUint(uint64(id), 10) }
func (id BeaconID) String() string       { return strconv.FormatUint(uint64(id), 10) }
func (id IntroductionID) String() string { return strconv.FormatUint(uint64(id), 10) }
func (id TierID) String() string         { return strconv.FormatUint(uint64(id), 10) }

// Jurisdiction is an ISO 3166-1 alpha-2 country code.
type Jurisdiction string

// ParseJurisdiction normalizes and validates a two-letter code.
func ParseJurisdiction(s string) (Jurisdiction, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	if len(code) != 2 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "jurisdiction must be a two-letter code")
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "jurisdiction must be alphabetic")
		}
	}
	return Jurisdiction(code), nil
}

func (j Jurisdiction) String() string { return string(j) }

// Day is a UTC calendar day counted from the Unix epoch.
type Day int64

const secondsPerDay = 24 * 60 * 60

// DayOf returns the UTC day containing t.
func DayOf(t time.Time) Day {
	sec := t.Unix()
	d := sec / secondsPerDay
	if sec%secondsPerDay < 0 {
		d--
	}
	return Day(d)
}

// Start returns midnight UTC of d.
func (d Day) Start() time.Time {
	return time.Unix(int64(d)*secondsPerDay, 0).UTC()
}

func (d Day) String() string {
	return d.Start().Format(time.DateOnly)
}
