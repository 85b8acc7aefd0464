package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pgconsole/gateway/internal/apierr"
	"github.com/pgconsole/gateway/internal/domain"
	"github.com/pgconsole/gateway/internal/identity"
	"github.com/pgconsole/gateway/internal/middleware"
	"github.com/rs/zerolog"
)

// AuthHandler serves signin/signout and the OIDC begin/callback routes.
type AuthHandler struct {
	identity *identity.Service // nil when auth is disabled
	logger   zerolog.Logger
	secure   bool
}

// NewAuthHandler builds the auth handler. identitySvc may be nil when auth
// is disabled; Signin, BeginOIDC and OIDCCallback then answer 503
// Unavailable.
func NewAuthHandler(identitySvc *identity.Service, logger zerolog.Logger, secureCookies bool) *AuthHandler {
	return &AuthHandler{identity: identitySvc, logger: logger, secure: secureCookies}
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signin authenticates an email/password pair and sets the session cookie.
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	if h.identity == nil {
		WriteAPIError(w, apierr.Unavailable("authentication is not configured"))
		return
	}

	var req signinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, apierr.InvalidArgument("malformed request body"))
		return
	}

	principal, err := h.identity.AuthenticatePassword(req.Email, req.Password)
	if err != nil {
		WriteAPIError(w, err)
		return
	}

	token, err := h.identity.IssueSessionToken(principal)
	if err != nil {
		WriteAPIError(w, apierr.Wrap(apierr.KindInternal, "issue session token", err))
		return
	}

	h.setSessionCookie(w, token)
	WriteSuccess(w, principal)
}

// Signout clears the session cookie. It is a no-op when auth is disabled.
func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionTokenCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	WriteSuccess(w, map[string]bool{"ok": true})
}

// BeginOIDC redirects the browser to the provider's authorization endpoint.
func (h *AuthHandler) BeginOIDC(w http.ResponseWriter, r *http.Request) {
	if h.identity == nil {
		WriteAPIError(w, apierr.Unavailable("authentication is not configured"))
		return
	}

	providerType := domain.OIDCProviderType(chi.URLParam(r, "provider"))
	authURL, err := h.identity.BeginOIDC(r.Context(), providerType)
	if err != nil {
		var cbErr *identity.CallbackError
		if asCallbackError(err, &cbErr) && cbErr.Kind == identity.ErrNotConfigured {
			err = apierr.NotFound("oidc provider not configured")
		}
		WriteAPIError(w, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// OIDCCallback completes the authorization code exchange and sets the
// session cookie before redirecting the browser back into the app.
func (h *AuthHandler) OIDCCallback(w http.ResponseWriter, r *http.Request) {
	if h.identity == nil {
		WriteAPIError(w, apierr.Unavailable("authentication is not configured"))
		return
	}

	providerType := domain.OIDCProviderType(chi.URLParam(r, "provider"))
	q := r.URL.Query()

	principal, err := h.identity.HandleOIDCCallback(r.Context(), providerType, q.Get("state"), q.Get("code"), q.Get("error"))
	if err != nil {
		h.logger.Warn().Err(err).Str("provider", string(providerType)).Msg("oidc callback failed")
		http.Redirect(w, r, "/signin?error="+callbackErrorKind(err), http.StatusFound)
		return
	}

	token, err := h.identity.IssueSessionToken(principal)
	if err != nil {
		WriteAPIError(w, apierr.Wrap(apierr.KindInternal, "issue session token", err))
		return
	}

	h.setSessionCookie(w, token)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionTokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int((7 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func callbackErrorKind(err error) string {
	var cbErr *identity.CallbackError
	if asCallbackError(err, &cbErr) {
		return string(cbErr.Kind)
	}
	return "oauth_error"
}

func asCallbackError(err error, target **identity.CallbackError) bool {
	for err != nil {
		if cbErr, ok := err.(*identity.CallbackError); ok {
			*target = cbErr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
