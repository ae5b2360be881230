package sso

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ProviderPartner names the partner-portal JWT backend.
const ProviderPartner = "partner"

// JWTVerifier accepts HS256 tokens minted by the partner portal.
type JWTVerifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewJWT builds a verifier for tokens signed with secret. When issuer is
// non-empty the iss claim must match it.
func NewJWT(secret, issuer string) *JWTVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTVerifier{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(opts...),
	}
}

func (v *JWTVerifier) Name() string { return ProviderPartner }

// Verify checks signature, expiry and issuer, then requires sub and email.
func (v *JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return Identity{}, err
	}

	sub, _ := claims.GetSubject()
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	if sub == "" || strings.TrimSpace(email) == "" {
		return Identity{}, errors.New("token missing sub or email claim")
	}

	return Identity{
		Provider: ProviderPartner,
		Subject:  sub,
		Email:    email,
		Name:     name,
	}, nil
}
