// Package auth issues the anonymous client token that identifies a browser
// across requests. It carries no user account; it only scopes submission
// limits.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	CookieName = "valentine_client"
	issuer     = "valentine"
)

type Claims struct {
	jwt.RegisteredClaims
	ClientID string `json:"cid"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// NewClientID returns a fresh random client id.
func NewClientID() string {
	return uuid.NewString()
}

func IssueToken(secret []byte, clientID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		ClientID: clientID,
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign client token: %w", err)
	}
	return signed, nil
}

func ParseToken(secret []byte, raw string) (Claims, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, ErrExpiredToken
	case err != nil, !token.Valid:
		return Claims{}, ErrInvalidToken
	}
	if claims.ClientID == "" || claims.Subject != claims.ClientID {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// Clients reads and issues the client cookie.
type Clients struct {
	Secret []byte
	TTL    time.Duration
	Secure bool
}

// Identify returns the client id of the request, issuing a new cookie on w
// when the request has none or an invalid one.
func (c Clients) Identify(w http.ResponseWriter, r *http.Request) (string, error) {
	if cookie, err := r.Cookie(CookieName); err == nil {
		if claims, err := ParseToken(c.Secret, cookie.Value); err == nil {
			return claims.ClientID, nil
		}
	}

	clientID := NewClientID()
	token, err := IssueToken(c.Secret, clientID, c.TTL)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.TTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return clientID, nil
}
