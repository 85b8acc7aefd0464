package iam

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pgconsole/gateway/internal/apierr"
	"github.com/pgconsole/gateway/internal/config"
	"github.com/pgconsole/gateway/internal/domain"
	"github.com/pgconsole/gateway/internal/license"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const teamPolicy = `
[auth]
jwtSecret = "01234567890123456789012345678901"

[[connections]]
id = "prod"
name = "Production"
host = "localhost"
port = 5432
database = "app"
username = "app"

[[connections]]
id = "staging"
name = "Staging"
host = "localhost"
port = 5432
database = "app"
username = "app"

[[users]]
email = "owner@example.com"
password = "hunter2"
owner = true

[[users]]
email = "analyst@example.com"
password = "hunter2"

[[groups]]
id = "analysts"
name = "Analysts"
members = ["analyst@example.com"]

[[iam]]
connection = "prod"
permissions = ["read"]
members = ["group:analysts"]

[[iam]]
connection = "*"
permissions = ["*"]
members = ["user:owner@example.com"]
`

func loadTeamStore(t *testing.T) *config.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte(teamPolicy), 0o600))

	store, err := config.Load(path, config.Options{
		Logger:       zerolog.Nop(),
		Validator:    license.NewStaticValidator(license.Result{Plan: domain.PlanTeam, SeatLimit: 10}, nil),
		LicenseToken: "tok",
	})
	require.NoError(t, err)
	return store
}

func newIAM(t *testing.T) (*Service, *config.Store) {
	store := loadTeamStore(t)
	return NewService(store, zerolog.Nop()), store
}

func TestPermissionsFor_GuestGetsEverything(t *testing.T) {
	svc, _ := newIAM(t)
	guest := domain.GuestPrincipal()

	perms := svc.PermissionsFor(guest, "prod")

	assert.Equal(t, domain.FullPermissionSet(), perms)
}

func TestPermissionsFor_GroupRuleGrantsReadOnProdOnly(t *testing.T) {
	svc, _ := newIAM(t)
	analyst := &domain.Principal{Email: "analyst@example.com", Groups: []string{"analysts"}}

	assert.True(t, svc.PermissionsFor(analyst, "prod").Has(domain.PermissionRead))
	assert.False(t, svc.PermissionsFor(analyst, "prod").Has(domain.PermissionWrite))
	assert.Empty(t, svc.PermissionsFor(analyst, "staging"))
}

func TestPermissionsFor_WildcardRuleGrantsEverywhere(t *testing.T) {
	svc, _ := newIAM(t)
	owner := &domain.Principal{Email: "owner@example.com"}

	assert.Equal(t, domain.FullPermissionSet(), svc.PermissionsFor(owner, "prod"))
	assert.Equal(t, domain.FullPermissionSet(), svc.PermissionsFor(owner, "staging"))
}

func TestAccessibleConnections_OnlyListsGrantedOnes(t *testing.T) {
	svc, _ := newIAM(t)
	analyst := &domain.Principal{Email: "analyst@example.com", Groups: []string{"analysts"}}

	assert.Equal(t, []string{"prod"}, svc.AccessibleConnections(analyst))
}

func TestRequirePermission_UnknownConnectionIsNotFound(t *testing.T) {
	svc, _ := newIAM(t)
	owner := &domain.Principal{Email: "owner@example.com"}

	err := svc.RequirePermission(owner, "does-not-exist", domain.PermissionRead)

	status, code, _ := apierr.As(err)
	assert.Equal(t, 404, status)
	assert.Equal(t, "NOT_FOUND", code)
}

func TestRequirePermission_NoGrantLooksLikeNotFound(t *testing.T) {
	svc, _ := newIAM(t)
	analyst := &domain.Principal{Email: "analyst@example.com", Groups: []string{"analysts"}}

	err := svc.RequirePermission(analyst, "staging", domain.PermissionRead)

	status, code, _ := apierr.As(err)
	assert.Equal(t, 404, status, "a principal with zero grants must see the same error as a missing connection")
	assert.Equal(t, "NOT_FOUND", code)
}

func TestRequirePermission_PartialGrantIsPermissionDenied(t *testing.T) {
	svc, _ := newIAM(t)
	analyst := &domain.Principal{Email: "analyst@example.com", Groups: []string{"analysts"}}

	err := svc.RequirePermission(analyst, "prod", domain.PermissionWrite)

	status, code, _ := apierr.As(err)
	assert.Equal(t, 403, status)
	assert.Equal(t, "PERMISSION_DENIED", code)
}

func TestRequireAnyPermission_SucceedsIfOneMatches(t *testing.T) {
	svc, _ := newIAM(t)
	analyst := &domain.Principal{Email: "analyst@example.com", Groups: []string{"analysts"}}

	err := svc.RequireAnyPermission(analyst, "prod", domain.PermissionWrite, domain.PermissionRead)

	assert.NoError(t, err)
}
