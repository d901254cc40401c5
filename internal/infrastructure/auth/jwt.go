package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the trusted payload of a verified handshake credential. It is
// captured once at handshake time and never re-validated for the life of the
// connection.
type Identity struct {
	UserID string `json:"id"`
	Role   string `json:"role"`
}

// claims matches the token payload issued by the REST API's login endpoint:
// a "user" object alongside the registered claims.
type claims struct {
	User Identity `json:"user"`
	jwt.RegisteredClaims
}

var ErrInvalidToken = errors.New("invalid token")

// Verifier validates handshake credentials against the signing secret shared
// with the REST API.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify returns the identity carried by the token. Expired, malformed and
// wrongly-signed tokens are all the same failure; there is no partial trust.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	c, ok := token.Claims.(*claims)
	if !ok || c.User.UserID == "" {
		return nil, ErrInvalidToken
	}

	identity := c.User
	return &identity, nil
}

// Sign issues a credential for the given identity. The gateway itself never
// issues tokens in production; this backs tests and local tooling.
func (v *Verifier) Sign(identity Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		User: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	return token.SignedString(v.secret)
}
