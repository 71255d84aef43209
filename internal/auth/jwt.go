// Package auth validates viewer access tokens for the feed API.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeAccess is the only token type the feed accepts.
const TokenTypeAccess = "access"

// Issuer is stamped on tokens issued by this service and required on validation.
const Issuer = "feedrank"

// DefaultAccessTokenExpiry is the lifetime of tokens minted by IssueAccessToken.
const DefaultAccessTokenExpiry = 15 * time.Minute

// Default leeway for token validation.
const DefaultLeeway = 30 * time.Second

// Token errors.
var (
	// ErrInvalidToken is returned when token validation fails.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")

	// ErrEmptyViewerID is returned when a token would carry no subject.
	ErrEmptyViewerID = errors.New("viewer id cannot be empty")
)

// Claims are the JWT claims carried by a viewer access token.
// The subject is the viewer's identity ID.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// ViewerID returns the identity the token was issued to.
func (c *Claims) ViewerID() string {
	return c.Subject
}

// TokenService validates HS256 viewer tokens.
// Supports dual-key rotation: tokens are signed with the current secret,
// but validate against either the current or the previous secret.
type TokenService struct {
	secrets [][]byte
	leeway  time.Duration
}

// NewTokenService creates a TokenService. previousSecret may be empty when
// no rotation is in progress.
func NewTokenService(currentSecret, previousSecret string) *TokenService {
	return NewTokenServiceWithLeeway(currentSecret, previousSecret, DefaultLeeway)
}

// NewTokenServiceWithLeeway creates a TokenService with a custom clock-skew leeway.
func NewTokenServiceWithLeeway(currentSecret, previousSecret string, leeway time.Duration) *TokenService {
	s := &TokenService{
		secrets: [][]byte{[]byte(currentSecret)},
		leeway:  leeway,
	}
	if previousSecret != "" {
		s.secrets = append(s.secrets, []byte(previousSecret))
	}
	return s
}

// IssueAccessToken mints a token for viewerID signed with the current secret.
// Production tokens come from the identity service; this is used by tests
// and local tooling.
func (s *TokenService) IssueAccessToken(viewerID string, ttl time.Duration) (string, error) {
	if viewerID == "" {
		return "", ErrEmptyViewerID
	}
	if ttl <= 0 {
		ttl = DefaultAccessTokenExpiry
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   viewerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: TokenTypeAccess,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secrets[0])
}

// ValidateToken parses tokenString and returns its claims. Secrets are tried
// in order, current first. Only unexpired HS256 access tokens with a subject
// are accepted.
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	var lastErr error
	for _, secret := range s.secrets {
		claims, err := s.parse(tokenString, secret)
		if err == nil {
			return claims, nil
		}
		lastErr = err
		// An expired token will not become valid under another key
		if errors.Is(err, jwt.ErrTokenExpired) {
			break
		}
	}

	if errors.Is(lastErr, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	return nil, ErrInvalidToken
}

func (s *TokenService) parse(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Type != TokenTypeAccess || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
