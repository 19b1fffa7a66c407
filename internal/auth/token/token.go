// Package token signs and verifies the JWT envelope around an access token row id.
//
// The envelope only proves who issued the token and which row it points at; abilities and
// revocation live on the access_tokens row.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/quickcart/internal/clock"
	"github.com/smallbiznis/quickcart/internal/config"
)

const (
	defaultIssuer  = "quickcart"
	allowedSkew    = 5 * time.Second
	minSecretBytes = 32
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingSecret = errors.New("auth token secret is not configured")

	// ErrExpired matches ErrInvalidToken as well.
	ErrExpired = fmt.Errorf("%w: expired", ErrInvalidToken)
)

// Claims is the JWT payload. ID (jti) is the access token row id.
type Claims struct {
	Guard string `json:"guard"`
	jwt.RegisteredClaims
}

type Signer struct {
	secret []byte
	issuer string
	clock  clock.Clock
}

func NewSigner(cfg config.Config, clk clock.Clock) (*Signer, error) {
	secret := strings.TrimSpace(cfg.AuthTokenSecret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if len(secret) < minSecretBytes && cfg.IsProduction() {
		return nil, fmt.Errorf("auth token secret must be at least %d bytes", minSecretBytes)
	}
	issuer := strings.TrimSpace(cfg.AuthIssuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	return &Signer{secret: []byte(secret), issuer: issuer, clock: clk}, nil
}

// Sign returns a compact HS256 JWT for the given token row.
func (s *Signer) Sign(tokenID, subject snowflake.ID, guard string, issuedAt, expiresAt time.Time) (string, error) {
	claims := Claims{
		Guard: guard,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        tokenID.String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, issuer and timestamps and returns the claims.
func (s *Signer) Parse(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(allowedSkew),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpired
	}
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.ID) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenID returns the access token row id carried in jti.
func (c *Claims) TokenID() (snowflake.ID, error) {
	id, err := snowflake.ParseString(c.ID)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// SubjectID returns the tokenable id carried in sub.
func (c *Claims) SubjectID() (snowflake.ID, error) {
	id, err := snowflake.ParseString(c.Subject)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}
