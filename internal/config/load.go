// Package config loads and validates the declarative policy file (spec.md
// §4.1, §6) into an immutable domain.Policy, and exposes typed read-only
// accessors over it via Store. All validation happens once, at Load time;
// every Store accessor afterward returns referentially stable data for the
// process lifetime, same contract the teacher's config.Config.Load gives
// its env-derived struct — just against a richer, file-backed schema.
package config

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/pgconsole/gateway/internal/domain"
	"github.com/pgconsole/gateway/internal/license"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// LoadError is a fatal configuration problem: the caller should print Path
// and Reason and exit non-zero (spec.md §6 "Exit codes").
type LoadError struct {
	Path   string
	Reason string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Path, e.Reason)
}

// Options controls how Load resolves the license and environment overlay.
type Options struct {
	Validator    license.Validator
	LicenseToken string
	Logger       zerolog.Logger
}

// Load reads the policy file at path, validates it, resolves the license,
// and returns an immutable Store. A malformed file, a field that fails
// validation, or an over-license user count is a *LoadError; callers should
// treat that as fatal (spec.md §4.1 "Failure semantics").
func Load(path string, opts Options) (*Store, error) {
	// Best-effort .env overlay: godotenv copies a local .env, when present,
	// into the process environment before the policy file is read. Values in
	// the policy file are used literally; ${VAR} references are not expanded.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, &LoadError{Path: path, Reason: "cannot read file: " + err.Error()}
	}
	v.AutomaticEnv()

	var raw rawFile
	if err := v.Unmarshal(&raw); err != nil {
		return nil, &LoadError{Path: path, Reason: "cannot parse table structure: " + err.Error()}
	}

	policy, verr := validate(raw, opts.Logger)
	if verr != nil {
		verr.Path = path
		return nil, verr
	}

	result := resolveLicense(context.Background(), opts)
	policy.License = domain.LicenseInfo{
		Plan:            result.Plan,
		LicenseMaxUsers: result.SeatLimit,
		LicenseExpiry:   result.Expiry,
		LicenseEmail:    result.Email,
	}

	if policy.Auth != nil && len(policy.Users) > policy.License.LicenseMaxUsers {
		return nil, &LoadError{
			Path:   path,
			Reason: fmt.Sprintf("configured user count (%d) exceeds license seat limit (%d)", len(policy.Users), policy.License.LicenseMaxUsers),
		}
	}

	return &Store{policy: policy}, nil
}

// resolveLicense calls the opaque validator and clamps to FREE/1-seat on any
// failure, per spec.md §4.1: "Missing/invalid license token → start but
// clamp plan to FREE and licenseMaxUsers=1."
func resolveLicense(ctx context.Context, opts Options) license.Result {
	if opts.Validator == nil || opts.LicenseToken == "" {
		opts.Logger.Warn().Msg("no license token configured, starting on FREE plan with a single seat")
		return license.Free()
	}
	result, err := opts.Validator.Validate(ctx, opts.LicenseToken)
	if err != nil {
		opts.Logger.Warn().Err(err).Msg("license validation failed, starting on FREE plan with a single seat")
		return license.Free()
	}
	return result
}
