// Package auth is the identity collaborator: it verifies the token a client
// presents at handshake time and hands back the identity it certifies. The
// core never accepts a self-asserted identity without going through it.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chat-relay/errors"
)

// IdentityClaims is the payload stored inside the JWT.
type IdentityClaims struct {
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) Verifier {
	return Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates the signature and expiration of a token string
// and returns the identity it carries.
func (v Verifier) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidIdentity, err)
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid || claims.Identity == "" {
		return "", errors.ErrInvalidIdentity
	}
	return claims.Identity, nil
}

// Issue creates a signed token for identity. Session issuance lives outside
// this system; Issue exists for the external issuer to share key handling,
// and for tests.
func (v Verifier) Issue(identity string, ttl time.Duration) (string, error) {
	claims := &IdentityClaims{
		Identity: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    v.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
