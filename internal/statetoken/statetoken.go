// Package statetoken issues and verifies the signed state parameter used
// during the interactive connection authorization flow. The token binds a
// connection attempt to a user, a source and a return path so the OAuth
// callback cannot be replayed by or for anyone else.
package statetoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrExpired means the token was well formed but past its expiry
var ErrExpired = errors.New("state token expired")

// ErrInvalid means the token failed signature or claim validation
var ErrInvalid = errors.New("state token invalid")

const issuer = "document-source-sync"

// DefaultTTL bounds how long a consent screen round trip may take
const DefaultTTL = 15 * time.Minute

// Claims is what a verified state token carries
type Claims struct {
	UserID     string
	SourceID   int64
	ReturnPath string
}

type tokenClaims struct {
	SourceID   int64  `json:"source_id"`
	ReturnPath string `json:"return_path"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies state tokens with an HMAC key
type Issuer struct {
	key []byte
	ttl time.Duration
}

// NewIssuer creates an Issuer. A zero ttl means DefaultTTL.
func NewIssuer(key string, ttl time.Duration) (*Issuer, error) {
	if key == "" {
		return nil, fmt.Errorf("state token signing key is not configured")
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Issuer{key: []byte(key), ttl: ttl}, nil
}

// Issue signs a token binding the user, source and return path
func (i *Issuer) Issue(userID string, sourceID int64, returnPath string) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		SourceID:   sourceID,
		ReturnPath: returnPath,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.key)
}

// Verify checks signature, issuer and expiry and returns the bound claims
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.key, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	if !token.Valid || claims.Subject == "" || claims.SourceID == 0 {
		return nil, ErrInvalid
	}
	return &Claims{
		UserID:     claims.Subject,
		SourceID:   claims.SourceID,
		ReturnPath: claims.ReturnPath,
	}, nil
}
