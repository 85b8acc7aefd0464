package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pgconsole/gateway/internal/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// oidcProvider pairs a resolved OIDC provider with the oauth2 client config
// built from it, the way the teacher's domain.SSOProvider bundles
// authorization/token/userinfo URLs with client credentials — except here
// the URLs come from real discovery instead of being hand-entered.
type oidcProvider struct {
	providerType domain.OIDCProviderType
	verifier     *oidc.IDTokenVerifier
	oauth2Config oauth2.Config
	userInfoURL  func(ctx context.Context, token *oauth2.Token) (*oidc.UserInfo, error)
}

// buildOIDCProvider runs OIDC discovery (or Google's well-known endpoints)
// for one configured provider and returns the ready-to-use client.
func buildOIDCProvider(ctx context.Context, cfg domain.OIDCProvider, redirectURL string) (*oidcProvider, error) {
	var endpoint oauth2.Endpoint
	var verifier *oidc.IDTokenVerifier
	var userInfo func(ctx context.Context, token *oauth2.Token) (*oidc.UserInfo, error)

	switch cfg.Type {
	case domain.OIDCProviderGoogle:
		endpoint = google.Endpoint
		provider, err := oidc.NewProvider(ctx, "https://accounts.google.com")
		if err != nil {
			return nil, fmt.Errorf("discover google oidc issuer: %w", err)
		}
		verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
		userInfo = provider.UserInfo
	case domain.OIDCProviderKeycloak, domain.OIDCProviderOkta:
		if cfg.IssuerURL == "" {
			return nil, fmt.Errorf("issuerUrl is required for provider type %q", cfg.Type)
		}
		provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
		if err != nil {
			return nil, fmt.Errorf("discover oidc issuer %s: %w", cfg.IssuerURL, err)
		}
		endpoint = provider.Endpoint()
		verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
		userInfo = provider.UserInfo
	default:
		return nil, fmt.Errorf("unknown oidc provider type %q", cfg.Type)
	}

	return &oidcProvider{
		providerType: cfg.Type,
		verifier:     verifier,
		userInfoURL:  userInfo,
		oauth2Config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  redirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

// claimsFromUserInfo adapts the go-oidc UserInfo response into the handful
// of fields the gateway cares about.
type oidcClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (p *oidcProvider) exchangeAndFetch(ctx context.Context, code string) (oidcClaims, error) {
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return oidcClaims{}, fmt.Errorf("token exchange failed: %w", err)
	}

	info, err := p.userInfoURL(ctx, p.oauth2Config.TokenSource(ctx, token))
	if err != nil {
		return oidcClaims{}, fmt.Errorf("userinfo fetch failed: %w", err)
	}

	var claims oidcClaims
	if err := info.Claims(&claims); err != nil {
		return oidcClaims{}, fmt.Errorf("decode userinfo claims failed: %w", err)
	}
	return claims, nil
}
