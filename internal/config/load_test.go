package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pgconsole/gateway/internal/domain"
	"github.com/pgconsole/gateway/internal/license"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicy(t *testing.T, toml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o600))
	return path
}

const minimalPolicy = `
[[connections]]
id = "main"
name = "Main"
host = "localhost"
port = 5432
database = "app"
username = "app"
`

func TestLoad_MinimalPolicyStartsOnFreePlan(t *testing.T) {
	path := writePolicy(t, minimalPolicy)

	store, err := Load(path, Options{Logger: zerolog.Nop()})

	require.NoError(t, err)
	assert.Equal(t, domain.PlanFree, store.Plan())
	assert.Len(t, store.Connections(), 1)
	assert.Nil(t, store.AuthConfig())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"), Options{Logger: zerolog.Nop()})

	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, loadErr.Reason, "cannot read file")
}

func TestLoad_DuplicateLabelIDFailsClosed(t *testing.T) {
	path := writePolicy(t, `
[[labels]]
id = "prod"
name = "Production"
colorHex = "#ff0000"

[[labels]]
id = "prod"
name = "Production Again"
colorHex = "#00ff00"
`)

	_, err := Load(path, Options{Logger: zerolog.Nop()})

	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, loadErr.Reason, "duplicate label id")
}

func TestLoad_UserCountOverLicenseSeatLimitFails(t *testing.T) {
	path := writePolicy(t, `
[auth]
jwtSecret = "01234567890123456789012345678901"

[[users]]
email = "a@example.com"
password = "hunter2"
owner = true

[[users]]
email = "b@example.com"
password = "hunter2"
`)

	validator := license.NewStaticValidator(license.Result{Plan: domain.PlanTeam, SeatLimit: 1}, nil)

	_, err := Load(path, Options{Logger: zerolog.Nop(), Validator: validator, LicenseToken: "tok"})

	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, loadErr.Reason, "exceeds license seat limit")
}

func TestLoad_ValidatorFailureClampsToFreePlan(t *testing.T) {
	path := writePolicy(t, minimalPolicy)
	validator := license.NewStaticValidator(license.Result{}, assertError("license service unreachable"))

	store, err := Load(path, Options{Logger: zerolog.Nop(), Validator: validator, LicenseToken: "tok"})

	require.NoError(t, err)
	assert.Equal(t, domain.PlanFree, store.Plan())
}

type assertError string

func (e assertError) Error() string { return string(e) }
