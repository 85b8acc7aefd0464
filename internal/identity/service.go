// Package identity implements C3 Identity & Session: password and OIDC
// authentication, session token issuance/validation, and the guest
// principal fallback used when auth is disabled entirely.
package identity

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pgconsole/gateway/internal/apierr"
	"github.com/pgconsole/gateway/internal/config"
	"github.com/pgconsole/gateway/internal/domain"
	"github.com/pgconsole/gateway/internal/license"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// CallbackErrorKind is the closed set of reasons an OIDC callback can fail,
// each mapped to a `/signin?error=<kind>` redirect per spec.md §4.2.
type CallbackErrorKind string

const (
	ErrNotConfigured  CallbackErrorKind = "not_configured"
	ErrInvalidState   CallbackErrorKind = "invalid_state"
	ErrNoCode         CallbackErrorKind = "no_code"
	ErrTokenFailed    CallbackErrorKind = "token_failed"
	ErrUserInfoFailed CallbackErrorKind = "userinfo_failed"
	ErrNoEmail        CallbackErrorKind = "no_email"
	ErrUserNotAllowed CallbackErrorKind = "user_not_allowed"
	ErrOAuthError     CallbackErrorKind = "oauth_error"
)

// CallbackError carries the redirect kind a handler should surface.
type CallbackError struct {
	Kind CallbackErrorKind
	err  error
}

func (e *CallbackError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.err)
	}
	return string(e.Kind)
}

func (e *CallbackError) Unwrap() error { return e.err }

// Service is C3: it authenticates principals via password or OIDC and
// issues/validates the session token that represents them afterward.
type Service struct {
	store     *config.Store
	signer    *tokenSigner
	states    stateStore
	providers map[domain.OIDCProviderType]*oidcProvider
	logger    zerolog.Logger
}

// NewService builds the identity service. If store.AuthConfig() is nil,
// every authentication call is bypassed by the caller in favor of
// domain.GuestPrincipal(); this service is simply not constructed in that
// case by main.go.
func NewService(ctx context.Context, store *config.Store, redisClient *redis.Client, logger zerolog.Logger) (*Service, error) {
	auth := store.AuthConfig()
	if auth == nil {
		return nil, fmt.Errorf("identity.NewService called with auth disabled")
	}

	var states stateStore
	if redisClient != nil {
		states = newRedisStateStore(redisClient)
	} else {
		states = newMemoryStateStore()
	}

	svc := &Service{
		store:     store,
		signer:    newTokenSigner(auth.JWTSecret, auth.SigninExpiry),
		states:    states,
		providers: make(map[domain.OIDCProviderType]*oidcProvider),
		logger:    logger,
	}

	for _, p := range auth.Providers {
		if !license.FeatureAllowed(store.Plan(), providerFeature(p.Type)) {
			logger.Warn().Str("provider", string(p.Type)).Msg("oidc provider configured but not included in current plan, skipping")
			continue
		}
		redirectURL := strings.TrimRight(store.ExternalURL(), "/") + "/auth/callback/" + string(p.Type)
		built, err := buildOIDCProvider(ctx, p, redirectURL)
		if err != nil {
			return nil, fmt.Errorf("configure oidc provider %s: %w", p.Type, err)
		}
		svc.providers[p.Type] = built
	}

	return svc, nil
}

func providerFeature(t domain.OIDCProviderType) domain.Feature {
	switch t {
	case domain.OIDCProviderGoogle:
		return domain.FeatureSSOGoogle
	case domain.OIDCProviderKeycloak:
		return domain.FeatureSSOKeycloak
	case domain.OIDCProviderOkta:
		return domain.FeatureSSOOkta
	default:
		return ""
	}
}

// AuthenticatePassword checks email/password against the configured users
// list using a constant-time comparison (spec.md §4.2), so response timing
// cannot be used to probe for valid emails.
func (s *Service) AuthenticatePassword(email, password string) (*domain.Principal, error) {
	user, ok := s.store.UserByEmail(email)
	if !ok || user.Password == "" {
		// Still run a comparison against a fixed-size buffer so a missing
		// user takes the same code path length as a wrong password.
		subtle.ConstantTimeCompare([]byte(password), make([]byte, len(password)))
		return nil, apierr.Unauthenticated("invalid email or password")
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(user.Password)) != 1 {
		return nil, apierr.Unauthenticated("invalid email or password")
	}
	return s.principalFor(user.Email), nil
}

func (s *Service) principalFor(email string) *domain.Principal {
	return &domain.Principal{
		Email:               email,
		DisplayName:         email,
		IdentityProviderTag: domain.IdentityProviderNone,
		Groups:              s.store.GroupsForUser(email),
	}
}

// IssueSessionToken signs a session token for principal.
func (s *Service) IssueSessionToken(principal *domain.Principal) (string, error) {
	return s.signer.issue(principal)
}

// ParseSessionToken validates a session token and rebuilds the Principal
// it encodes, re-resolving group membership against the live policy store
// rather than trusting the token's stale snapshot.
func (s *Service) ParseSessionToken(token string) (*domain.Principal, error) {
	principal, err := s.signer.parse(token)
	if err != nil {
		return nil, apierr.Unauthenticated("invalid or expired session")
	}
	principal.Groups = s.store.GroupsForUser(principal.Email)
	return principal, nil
}

// BeginOIDC starts an OIDC login flow for the given provider type,
// returning the URL to redirect the browser to.
func (s *Service) BeginOIDC(ctx context.Context, providerType domain.OIDCProviderType) (string, error) {
	provider, ok := s.providers[providerType]
	if !ok {
		return "", &CallbackError{Kind: ErrNotConfigured}
	}

	state, err := newState()
	if err != nil {
		return "", apierr.Internal("failed to generate oauth state")
	}
	if err := s.states.put(ctx, state, authState{
		ProviderType: string(providerType),
		ExpiresAt:    time.Now().Add(10 * time.Minute),
	}); err != nil {
		return "", apierr.Internal("failed to persist oauth state")
	}

	return provider.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// HandleOIDCCallback completes an OIDC login: validates the state,
// exchanges the code, fetches the user's identity, and checks that its
// email belongs to a configured user.
func (s *Service) HandleOIDCCallback(ctx context.Context, providerType domain.OIDCProviderType, state, code, oauthError string) (*domain.Principal, error) {
	if oauthError != "" {
		return nil, &CallbackError{Kind: ErrOAuthError, err: fmt.Errorf("%s", oauthError)}
	}

	provider, ok := s.providers[providerType]
	if !ok {
		return nil, &CallbackError{Kind: ErrNotConfigured}
	}

	saved, ok, err := s.states.consume(ctx, state)
	if err != nil || !ok || saved.ProviderType != string(providerType) {
		return nil, &CallbackError{Kind: ErrInvalidState}
	}

	if code == "" {
		return nil, &CallbackError{Kind: ErrNoCode}
	}

	claims, err := provider.exchangeAndFetch(ctx, code)
	if err != nil {
		if strings.Contains(err.Error(), "token exchange") {
			return nil, &CallbackError{Kind: ErrTokenFailed, err: err}
		}
		return nil, &CallbackError{Kind: ErrUserInfoFailed, err: err}
	}

	if claims.Email == "" {
		return nil, &CallbackError{Kind: ErrNoEmail}
	}

	if _, ok := s.store.UserByEmail(claims.Email); !ok {
		return nil, &CallbackError{Kind: ErrUserNotAllowed}
	}

	return &domain.Principal{
		Email:               claims.Email,
		DisplayName:         orDefault(claims.Name, claims.Email),
		IdentityProviderTag: domain.IdentityProvider(providerType),
		AvatarURL:           claims.Picture,
		Groups:              s.store.GroupsForUser(claims.Email),
	}, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// ParseRedirectURL validates that a post-login redirect target is a
// relative path, never an absolute URL, so the OIDC flow cannot be abused
// as an open redirector.
func ParseRedirectURL(raw string) (string, bool) {
	if raw == "" {
		return "/", true
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/", false
	}
	return raw, true
}
