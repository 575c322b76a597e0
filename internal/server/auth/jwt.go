// Package auth extracts the already-authenticated actor identity from a
// bearer token and hashes room passwords. Token issuance lives outside the
// engine; only HS256 verification happens here.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akarpovs/roomdrop/internal/common"
)

// Actor is the authenticated identity attached to a connection or request.
type Actor struct {
	ID          string
	DisplayName string
}

// Claims includes the registered claims plus the actor fields roomdrop needs.
type Claims struct {
	jwt.RegisteredClaims
	ActorID     string `json:"actorId"`
	DisplayName string `json:"displayName,omitempty"`
}

// GenerateToken signs an actor token. Used by tests and local tooling; in
// production the identity provider issues these.
func GenerateToken(actor Actor, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		ActorID:     actor.ID,
		DisplayName: actor.DisplayName,
	})

	return token.SignedString(secretKey)
}

// ActorFromToken verifies the signature and returns the actor identity.
func ActorFromToken(tokenString string, secretKey []byte) (Actor, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Actor{}, common.ErrUnauthorized
	}

	if !token.Valid || claims.ActorID == "" {
		return Actor{}, common.ErrUnauthorized
	}

	return Actor{ID: claims.ActorID, DisplayName: claims.DisplayName}, nil
}
