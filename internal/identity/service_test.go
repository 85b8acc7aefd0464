package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pgconsole/gateway/internal/config"
	"github.com/pgconsole/gateway/internal/domain"
	"github.com/pgconsole/gateway/internal/license"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const identityTestPolicy = `
[auth]
jwtSecret = "01234567890123456789012345678901"

[[connections]]
id = "prod"
name = "Production"
host = "localhost"
port = 5432
database = "app"
username = "app"

[[users]]
email = "owner@example.com"
password = "hunter2"
owner = true

[[groups]]
id = "analysts"
name = "Analysts"
members = ["owner@example.com"]
`

func buildIdentityService(t *testing.T) *Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte(identityTestPolicy), 0o600))

	store, err := config.Load(path, config.Options{
		Logger:       zerolog.Nop(),
		Validator:    license.NewStaticValidator(license.Result{Plan: domain.PlanTeam, SeatLimit: 10}, nil),
		LicenseToken: "tok",
	})
	require.NoError(t, err)

	svc, err := NewService(context.Background(), store, nil, zerolog.Nop())
	require.NoError(t, err)
	return svc
}

func TestAuthenticatePassword_Succeeds(t *testing.T) {
	svc := buildIdentityService(t)

	principal, err := svc.AuthenticatePassword("owner@example.com", "hunter2")

	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", principal.Email)
	assert.Contains(t, principal.Groups, "analysts")
}

func TestAuthenticatePassword_WrongPassword(t *testing.T) {
	svc := buildIdentityService(t)

	_, err := svc.AuthenticatePassword("owner@example.com", "wrong")

	require.Error(t, err)
}

func TestAuthenticatePassword_UnknownUserAndWrongPasswordLookTheSame(t *testing.T) {
	svc := buildIdentityService(t)

	_, err1 := svc.AuthenticatePassword("nobody@example.com", "hunter2")
	_, err2 := svc.AuthenticatePassword("owner@example.com", "wrong")

	assert.Equal(t, err1.Error(), err2.Error())
}

func TestSessionToken_RoundTrips(t *testing.T) {
	svc := buildIdentityService(t)
	principal := &domain.Principal{Email: "owner@example.com", DisplayName: "Owner"}

	token, err := svc.IssueSessionToken(principal)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	parsed, err := svc.ParseSessionToken(token)
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", parsed.Email)
	assert.Contains(t, parsed.Groups, "analysts", "groups are re-resolved against the live store, not the stale token")
}

func TestParseSessionToken_RejectsGarbage(t *testing.T) {
	svc := buildIdentityService(t)

	_, err := svc.ParseSessionToken("not-a-real-token")

	require.Error(t, err)
}

func TestParseRedirectURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantOK  bool
	}{
		{"empty defaults to root", "", "/", true},
		{"relative path is allowed", "/connections/prod", "/connections/prod", true},
		{"absolute url is rejected", "https://evil.example.com/", "/", false},
		{"protocol-relative url is rejected", "//evil.example.com/", "/", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRedirectURL(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}
