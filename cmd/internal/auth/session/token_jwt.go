package session

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the identity an access token is minted for.
type Principal struct {
	UserID string
	Email  string
	Name   string
	Roles  []string
}

// AccessClaims is what Verify recovers from an access token.
type AccessClaims struct {
	UserID    string
	Email     string
	Name      string
	Roles     []string
	Issuer    string
	Audience  []string
	IssuedAt  time.Time
	NotBefore time.Time
	ExpiresAt time.Time
}

// AccessTokenManager issues and verifies short-lived access tokens.
type AccessTokenManager interface {
	Issue(p Principal, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (AccessClaims, error)
}

// jwtClaims is the wire form. "nameid" duplicates "sub" for clients that
// read the name-identifier claim.
type jwtClaims struct {
	NameID string   `json:"nameid,omitempty"`
	Email  string   `json:"email,omitempty"`
	Name   string   `json:"name,omitempty"`
	Roles  []string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager signs HS512 access tokens.
type JWTManager struct {
	issuer   string
	audience string
	ttl      time.Duration
	key      []byte

	enforceLifetime bool
	clockSkew       time.Duration
}

var _ AccessTokenManager = (*JWTManager)(nil)

// NewJWTManager builds a JWTManager from cfg. Keys shorter than
// MinSigningKeyBytes are rejected with ErrConfig.
func NewJWTManager(cfg Config) (*JWTManager, error) {
	if len(cfg.SigningKey) < MinSigningKeyBytes {
		return nil, fmt.Errorf("%w: signing key must be at least %d bytes", ErrConfig, MinSigningKeyBytes)
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, fmt.Errorf("%w: issuer and audience are required", ErrConfig)
	}
	if cfg.AccessTokenTTL <= 0 {
		return nil, fmt.Errorf("%w: access token ttl must be positive", ErrConfig)
	}

	return &JWTManager{
		issuer:          cfg.Issuer,
		audience:        cfg.Audience,
		ttl:             cfg.AccessTokenTTL,
		key:             slices.Clone(cfg.SigningKey),
		enforceLifetime: cfg.EnforceAccessLifetime,
		clockSkew:       cfg.ClockSkew,
	}, nil
}

func (m *JWTManager) Issue(p Principal, now time.Time) (string, time.Time, error) {
	if p.UserID == "" {
		return "", time.Time{}, fmt.Errorf("session: issue access token: empty user id")
	}

	now = now.UTC()
	exp := now.Add(m.ttl)

	claims := jwtClaims{
		NameID: p.UserID,
		Email:  p.Email,
		Name:   p.Name,
		Roles:  slices.Clone(p.Roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(m.key)
	if err != nil {
		return "", time.Time{}, err
	}
	// Encoded NumericDate has second precision.
	return signed, exp.Truncate(time.Second), nil
}

// Verify checks signature, algorithm, issuer and audience. Lifetime is
// checked only when the manager was built with EnforceAccessLifetime.
func (m *JWTManager) Verify(token string, now time.Time) (AccessClaims, error) {
	if token == "" {
		return AccessClaims{}, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
	}
	if m.enforceLifetime {
		opts = append(opts,
			jwt.WithIssuer(m.issuer),
			jwt.WithAudience(m.audience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(m.clockSkew),
			jwt.WithTimeFunc(func() time.Time { return now }),
		)
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	var claims jwtClaims
	_, err := jwt.ParseWithClaims(token, &claims, m.keyFunc, opts...)
	if err != nil {
		return AccessClaims{}, classifyJWTErr(err)
	}

	// WithoutClaimsValidation skips iss/aud too.
	if claims.Issuer != m.issuer || !slices.Contains(claims.Audience, m.audience) {
		return AccessClaims{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return AccessClaims{}, ErrInvalidToken
	}

	out := AccessClaims{
		UserID:   claims.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
		Roles:    claims.Roles,
		Issuer:   claims.Issuer,
		Audience: claims.Audience,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.NotBefore != nil {
		out.NotBefore = claims.NotBefore.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (m *JWTManager) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != jwt.SigningMethodHS512.Alg() {
		return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
	}
	return m.key, nil
}

func classifyJWTErr(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrInvalidToken
	}
}
