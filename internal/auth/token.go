package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/olympic-platform/onboarding/internal/identity"
)

const roleAdmin = "admin"

var (
	// ErrTokenExpired is returned for a well-formed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for malformed tokens or signature mismatches.
	ErrTokenInvalid = errors.New("invalid token")
)

// PrincipalKind distinguishes the two kinds of caller.
type PrincipalKind string

const (
	KindApplicant PrincipalKind = "applicant"
	KindAdmin     PrincipalKind = "admin"
)

// Principal is the caller decoded from a verified token. Status is the
// snapshot taken at issuance and goes stale; business logic reloads the user.
type Principal struct {
	Kind   PrincipalKind
	UserID string
	Status identity.Status
}

// IsAdmin reports whether the principal carries the admin role.
func (p Principal) IsAdmin() bool {
	return p.Kind == KindAdmin
}

// Claims is the signed payload: {role: admin} or {sub, status}.
type Claims struct {
	jwt.RegisteredClaims
	Role   string `json:"role,omitempty"`
	Status string `json:"status,omitempty"`
}

// TokenIssuer mints and verifies HS256 tokens. It holds no session state.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer builds an issuer signing with secret.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// IssueApplicant mints a token for user carrying its current status.
func (t *TokenIssuer) IssueApplicant(user identity.User) (string, error) {
	claims := t.baseClaims()
	claims.Subject = user.ID
	claims.Status = string(user.Status)
	return t.sign(claims)
}

// IssueAdmin mints an admin-scoped token.
func (t *TokenIssuer) IssueAdmin() (string, error) {
	claims := t.baseClaims()
	claims.Role = roleAdmin
	return t.sign(claims)
}

// Verify checks signature and expiry and decodes the principal.
func (t *TokenIssuer) Verify(token string) (Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrTokenExpired
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.Role == roleAdmin {
		return Principal{Kind: KindAdmin}, nil
	}
	if claims.Role != "" || claims.Subject == "" {
		return Principal{}, ErrTokenInvalid
	}
	status, err := identity.ParseStatus(claims.Status)
	if err != nil {
		return Principal{}, ErrTokenInvalid
	}
	return Principal{Kind: KindApplicant, UserID: claims.Subject, Status: status}, nil
}

func (t *TokenIssuer) baseClaims() *Claims {
	now := t.now()
	return &Claims{RegisteredClaims: jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}}
}

func (t *TokenIssuer) sign(claims *Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
