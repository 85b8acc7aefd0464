// Package license resolves the opaque license token into a plan tier. The
// verification service itself (out of scope per spec.md §1) is modeled as a
// single interface call so the config loader never depends on how licenses
// are actually checked.
package license

import (
	"context"
	"time"

	"github.com/pgconsole/gateway/internal/domain"
)

// Result is what a successful Validate call returns: plan, seat-limit,
// expiry — exactly the shape spec.md §1 describes for the opaque collaborator.
type Result struct {
	Plan      domain.Plan
	SeatLimit int
	Expiry    time.Time
	Email     string
}

// Validator is the external collaborator boundary. Production wiring can
// point this at a real licensing backend; nothing in C1 cares which.
type Validator interface {
	Validate(ctx context.Context, token string) (Result, error)
}

// Free is the fallback plan used whenever no token is configured or
// validation fails: the config loader must still start (§4.1 failure
// semantics), just clamped to a single seat.
func Free() Result {
	return Result{Plan: domain.PlanFree, SeatLimit: 1}
}

// StaticValidator validates against a single pre-resolved Result, useful for
// self-hosted deployments that embed a signed license blob decoded once at
// startup rather than calling out to a network service.
type StaticValidator struct {
	result Result
	err    error
}

// NewStaticValidator wraps an already-resolved result (or resolution error)
// behind the Validator interface.
func NewStaticValidator(result Result, err error) *StaticValidator {
	return &StaticValidator{result: result, err: err}
}

func (v *StaticValidator) Validate(_ context.Context, _ string) (Result, error) {
	if v.err != nil {
		return Result{}, v.err
	}
	return v.result, nil
}

// FeatureAllowed reports whether a plan includes a given gated feature. The
// ordering FREE < TEAM < ENTERPRISE determines inclusion.
func FeatureAllowed(plan domain.Plan, feature domain.Feature) bool {
	switch feature {
	case domain.FeatureIAM:
		// Granular per-connection IAM is a paid feature; FREE plans fall
		// back to "anyone who can authenticate has full access" per
		// spec.md §4.3 step 2.
		return plan == domain.PlanTeam || plan == domain.PlanEnterprise
	case domain.FeatureSSOGoogle:
		return plan == domain.PlanTeam || plan == domain.PlanEnterprise
	case domain.FeatureSSOKeycloak, domain.FeatureSSOOkta:
		return plan == domain.PlanEnterprise
	default:
		return false
	}
}

// Rank orders plans for comparisons other than FeatureAllowed.
func Rank(p domain.Plan) int {
	switch p {
	case domain.PlanFree:
		return 0
	case domain.PlanTeam:
		return 1
	case domain.PlanEnterprise:
		return 2
	default:
		return -1
	}
}
