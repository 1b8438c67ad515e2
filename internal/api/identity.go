package api

import (
	"errors"
	"fmt"
	"strings"

	"turnero/internal/config"
	"turnero/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the caller as asserted by the identity provider.
type Identity struct {
	ID         string
	Name       string
	Contact    string
	Role       string
	BusinessID int64
}

// IdentityClaims is the token payload issued by the identity provider.
type IdentityClaims struct {
	Name       string `json:"name"`
	Contact    string `json:"contact,omitempty"`
	Role       string `json:"role"`
	BusinessID int64  `json:"business_id,omitempty"`
	jwt.RegisteredClaims
}

var errUnauthenticated = errors.New("unauthenticated")

// IdentityVerifier validates HS256 bearer tokens.
type IdentityVerifier struct {
	secret []byte
	issuer string
}

func NewIdentityVerifier(cfg config.APIAuthConfig) *IdentityVerifier {
	return &IdentityVerifier{secret: []byte(cfg.JWTSecret), issuer: cfg.JWTIssuer}
}

func (v *IdentityVerifier) Verify(tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", errUnauthenticated)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: token has no subject", errUnauthenticated)
	}
	if claims.Role != models.RoleClient && claims.Role != models.RoleOwner {
		return nil, fmt.Errorf("%w: unknown role %q", errUnauthenticated, claims.Role)
	}

	return &Identity{
		ID:         claims.Subject,
		Name:       claims.Name,
		Contact:    claims.Contact,
		Role:       claims.Role,
		BusinessID: claims.BusinessID,
	}, nil
}

// bearer extracts the token from an Authorization header value.
func bearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
