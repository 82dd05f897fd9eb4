// Package domain holds the value types shared by every ledger component:
// identities, amounts, basis points, roles, jurisdictions and UTC days.
package domain

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	dErrors "unykorn/pkg/domain-errors"
)

// AddressLength is the byte length of an identity.
const AddressLength = 20

// Address identifies a participant or component. The zero Address means "none".
type Address [AddressLength]byte

// ParseAddress parses a 0x-prefixed, 40 hex digit identity. Case is ignored.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimSpace(s)
	if s == "" {
		return a, dErrors.New(dErrors.CodeInvalidInput, "address is required")
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return a, dErrors.New(dErrors.CodeInvalidInput, "address must start with 0x")
	}
	raw := s[2:]
	if len(raw) != AddressLength*2 {
		return a, dErrors.New(dErrors.CodeInvalidInput, "address must have 40 hex digits")
	}
	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address contains non-hex characters")
	}
	return a, nil
}

// MustAddress parses s and panics on error. Intended for constants and tests.
func MustAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ComponentAddress derives a deterministic identity for an internal component
// (for example the presence registry acting as minter) from the last 20 bytes
// of keccak256(name).
func ComponentAddress(name string) Address {
	var a Address
	sum := Keccak256([]byte(name))
	copy(a[:], sum[len(sum)-AddressLength:])
	return a
}

// Keccak256 returns the legacy Keccak-256 digest of data.
func Keccak256(data []byte) [32]byte {
	var out [32]byte
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	h.Sum(out[:0])
	return out
}

// IsZero reports whether a is the empty identity.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the lower-case 0x form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Short returns an abbreviated form for log lines.
func (a Address) Short() string {
	s := a.String()
	return s[:6] + ".." + s[len(s)-4:]
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
