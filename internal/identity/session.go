package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pgconsole/gateway/internal/domain"
)

// claims is the jwt/v5 wrapper over domain.SessionClaims: it embeds the
// registered claims jwt/v5 validates (exp/iat/iss/sub) directly so parsing
// gets expiry enforcement for free, and carries the display fields the
// gateway needs to rebuild a Principal without a database round-trip.
type claims struct {
	jwt.RegisteredClaims
	DisplayName         string                 `json:"name,omitempty"`
	IdentityProviderTag domain.IdentityProvider `json:"idp,omitempty"`
	AvatarURL           string                  `json:"avatar,omitempty"`
	Groups              []string                `json:"groups,omitempty"`
}

// tokenSigner issues and parses the signed session token described in
// spec.md §4.2: HMAC-SHA256, issuer "pgconsole", configurable expiry.
type tokenSigner struct {
	secret []byte
	expiry time.Duration
}

func newTokenSigner(secret string, expiry time.Duration) *tokenSigner {
	return &tokenSigner{secret: []byte(secret), expiry: expiry}
}

// issue signs a session token for principal.
func (t *tokenSigner) issue(principal *domain.Principal) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.Email,
			Issuer:    domain.SessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiry)),
		},
		DisplayName:         principal.DisplayName,
		IdentityProviderTag: principal.IdentityProviderTag,
		AvatarURL:           principal.AvatarURL,
		Groups:              principal.Groups,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(t.secret)
}

// parse validates a signed session token and rebuilds the Principal it
// encodes. Expiry, issuer mismatch, and signature failure are all reported
// as a single opaque error: the caller only needs to know "not a valid
// session", never why.
func (t *tokenSigner) parse(tokenString string) (*domain.Principal, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(tok *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithIssuer(domain.SessionIssuer))
	if err != nil {
		return nil, err
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return &domain.Principal{
		Email:               c.Subject,
		DisplayName:         c.DisplayName,
		IdentityProviderTag: c.IdentityProviderTag,
		AvatarURL:           c.AvatarURL,
		Groups:              c.Groups,
	}, nil
}
