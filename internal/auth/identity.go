// Package auth verifies access tokens and second-factor codes
package auth

import (
	"crypto/rsa"
	"fmt"
	"os"
	"strconv"

	"github.com/0xArchitect/ludo-backend/internal/types"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the verified caller
type Identity struct {
	UserID  uint64
	Subject string
}

// JWTVerifier verifies RS256 access tokens issued by the account service.
// The numeric user id is carried in the sub claim.
type JWTVerifier struct {
	publicKey *rsa.PublicKey
	issuer    string
}

// NewJWTVerifier creates a verifier from a PEM encoded RSA public key.
// An empty issuer disables the iss check.
func NewJWTVerifier(publicKeyPEM []byte, issuer string) (*JWTVerifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse jwt public key: %w", err)
	}
	return &JWTVerifier{publicKey: key, issuer: issuer}, nil
}

// NewJWTVerifierFromFile reads the PEM public key from path
func NewJWTVerifierFromFile(path, issuer string) (*JWTVerifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jwt public key %s: %w", path, err)
	}
	return NewJWTVerifier(data, issuer)
}

// Verify validates the token and returns the identity it carries
func (v *JWTVerifier) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, fmt.Errorf("%w: empty token", types.ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", types.ErrUnauthorized, err)
	}
	if !token.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token", types.ErrUnauthorized)
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || userID == 0 {
		return Identity{}, fmt.Errorf("%w: subject %q is not a user id", types.ErrUnauthorized, claims.Subject)
	}
	return Identity{UserID: userID, Subject: claims.Subject}, nil
}
