package settlement

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"unykorn/pkg/domain"
	dErrors "unykorn/pkg/domain-errors"
)

// Operation selects the supply change an instruction requests.
type Operation string

const (
	OpMint   Operation = "mint"
	OpRedeem Operation = "redeem"
)

// Instruction is a settlement confirmation delivered by a payment rail
// (SWIFT, Fedwire, a CBDC bridge).
type Instruction struct {
	Op        Operation
	Account   domain.Address
	Amount    domain.Amount
	Reference string
	Rail      string
}

// instructionClaims is the signed wire form. Amount travels as a decimal
// string so values above 2^53 survive JSON tooling.
type instructionClaims struct {
	Op        string `json:"op"`
	Account   string `json:"account"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
	Rail      string `json:"rail,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies HS256 instruction tokens.
type Codec struct {
	signingKey []byte
	issuer     string
}

func NewCodec(signingKey, issuer string) (*Codec, error) {
	if signingKey == "" {
		return nil, errors.New("settlement signing key is required")
	}
	return &Codec{signingKey: []byte(signingKey), issuer: issuer}, nil
}

// Sign encodes in as a token valid for ttl from now. Used by rail adapters and
// tests.
func (c *Codec) Sign(in Instruction, now time.Time, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, instructionClaims{
		Op:        string(in.Op),
		Account:   in.Account.String(),
		Amount:    in.Amount.String(),
		Reference: in.Reference,
		Rail:      in.Rail,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(c.signingKey)
}

// Verify checks the signature, expiry and issuer of raw and decodes the
// instruction it carries.
func (c *Codec) Verify(raw string) (Instruction, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	claims := &instructionClaims{}
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return c.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Instruction{}, dErrors.New(dErrors.CodeUnauthorized, "settlement instruction has expired")
		}
		return Instruction{}, dErrors.New(dErrors.CodeUnauthorized, "invalid settlement instruction signature")
	}
	if !parsed.Valid {
		return Instruction{}, dErrors.New(dErrors.CodeUnauthorized, "invalid settlement instruction")
	}
	return claims.instruction()
}

func (c *instructionClaims) instruction() (Instruction, error) {
	op := Operation(strings.ToLower(c.Op))
	if op != OpMint && op != OpRedeem {
		return Instruction{}, dErrors.Newf(dErrors.CodeInvalidInput, "unknown settlement operation %q", c.Op)
	}
	account, err := domain.ParseAddress(c.Account)
	if err != nil {
		return Instruction{}, err
	}
	amount, err := domain.ParseAmount(c.Amount)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		Op:        op,
		Account:   account,
		Amount:    amount,
		Reference: c.Reference,
		Rail:      c.Rail,
	}, nil
}
