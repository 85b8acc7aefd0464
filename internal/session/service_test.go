package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pgconsole/gateway/internal/apierr"
	"github.com/pgconsole/gateway/internal/config"
	"github.com/pgconsole/gateway/internal/database"
	"github.com/pgconsole/gateway/internal/domain"
	"github.com/pgconsole/gateway/internal/iam"
	"github.com/pgconsole/gateway/internal/license"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sessionTestPolicy = `
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
email = "analyst@example.com"
password = "hunter2"
`

func buildTestService(t *testing.T) *Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte(sessionTestPolicy), 0o600))

	store, err := config.Load(path, config.Options{
		Logger:       zerolog.Nop(),
		Validator:    license.NewStaticValidator(license.Result{Plan: domain.PlanTeam, SeatLimit: 10}, nil),
		LicenseToken: "tok",
	})
	require.NoError(t, err)

	iamSvc := iam.NewService(store, zerolog.Nop())
	factory := database.NewClientFactory(zerolog.Nop())
	return NewService(store, factory, iamSvc)
}

func TestActiveSessions_DeniesBeforeAcquiringAConnection(t *testing.T) {
	svc := buildTestService(t)
	analyst := &domain.Principal{Email: "analyst@example.com"}

	_, err := svc.ActiveSessions(context.Background(), analyst, "prod")

	require.Error(t, err)
	_, code, _ := apierr.As(err)
	assert.Equal(t, "NOT_FOUND", code, "no grant on prod looks identical to a nonexistent connection")
}

func TestTerminateSession_UnknownConnectionIsNotFound(t *testing.T) {
	svc := buildTestService(t)
	analyst := &domain.Principal{Email: "analyst@example.com"}

	err := svc.TerminateSession(context.Background(), analyst, "does-not-exist", 1234)

	require.Error(t, err)
	_, code, _ := apierr.As(err)
	assert.Equal(t, "NOT_FOUND", code)
}
