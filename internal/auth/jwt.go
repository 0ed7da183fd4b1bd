package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "pulsechat"

// Claims is the payload inside every JWT token.
//
// Login and signup mint a token with these fields. The middleware reads it
// back on every REST call and on the websocket handshake, so handlers and
// the session registry know who is calling without a database round trip.
//
// Why embed jwt.RegisteredClaims?
//   - ExpiresAt, IssuedAt and Issuer come with it, and the parser checks
//     expiry on its own.
//   - jwt.io and other tooling recognize the standard names.
//   - UserID and Email sit on top; nothing else is needed to route pushes.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for a user, valid for ttl.
//
// Why HS256?
//   - One service both issues and verifies tokens, so a shared secret
//     (config.JWTSecret) is all it takes.
//   - Symmetric signing is cheaper than RSA on every websocket handshake.
//   - If another service ever needs to verify without issuing, move to
//     RS256 so only this one holds the private key.
func GenerateToken(userID uuid.UUID, email, secret string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	// NewWithClaims builds the unsigned token; SignedString signs and
	// serializes it.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ParseToken validates a JWT string and extracts the claims.
//
// It verifies:
//  1. The signature matches our secret.
//  2. The token hasn't expired.
//  3. The issuer is "pulsechat".
//  4. The signing method is HMAC.
//
// Why check the method by hand?
//   - The key callback runs before the signature check and sees the alg
//     the client claims. Without the check a token that says "none", or
//     RS256 with our secret used as a public key, would get a chance to
//     verify. Only HMAC ever receives the secret.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("token has no subject")
	}

	return claims, nil
}
