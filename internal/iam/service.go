// Package iam implements the IAM policy evaluator (C4): given a principal
// and a connection, it decides the permission set that principal holds,
// and exposes the require-style checks the broker and session layers call
// before acting.
package iam

import (
	"github.com/pgconsole/gateway/internal/apierr"
	"github.com/pgconsole/gateway/internal/config"
	"github.com/pgconsole/gateway/internal/domain"
	"github.com/pgconsole/gateway/internal/license"
	"github.com/rs/zerolog"
)

// Service evaluates IAM rules against the declarative policy store.
type Service struct {
	store  *config.Store
	logger zerolog.Logger
}

// NewService builds an evaluator over store.
func NewService(store *config.Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// PermissionsFor returns the permission set principal holds on connectionID
// (spec.md §4.3). A guest principal (auth disabled) and any principal on a
// plan without the IAM feature both get the full set; otherwise it is the
// union of every IAM rule whose selector and member list match.
func (s *Service) PermissionsFor(principal *domain.Principal, connectionID string) domain.PermissionSet {
	if principal == nil {
		return domain.PermissionSet{}
	}
	if principal.Guest {
		return domain.FullPermissionSet()
	}
	if !license.FeatureAllowed(s.store.Plan(), domain.FeatureIAM) {
		return domain.FullPermissionSet()
	}

	perms := domain.PermissionSet{}
	for _, rule := range s.store.IAMRules() {
		if rule.ConnectionSelector != "*" && rule.ConnectionSelector != connectionID {
			continue
		}
		if !s.principalMatchesMembers(principal, rule.Members) {
			continue
		}
		perms = perms.Union(rule.Permissions)
	}
	return perms
}

func (s *Service) principalMatchesMembers(principal *domain.Principal, members []string) bool {
	for _, m := range members {
		switch {
		case m == "*":
			return true
		case m == "user:"+principal.Email:
			return true
		case len(m) > 6 && m[:6] == "group:":
			if principal.InGroup(m[6:]) {
				return true
			}
		}
	}
	return false
}

// AccessibleConnections returns every connection id the principal holds at
// least one permission on, in declaration order.
func (s *Service) AccessibleConnections(principal *domain.Principal) []string {
	var ids []string
	for _, c := range s.store.Connections() {
		if len(s.PermissionsFor(principal, c.ID)) > 0 {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// RequirePermission demands a single permission on a connection. A
// principal with zero permissions on the connection, and a reference to a
// connection that does not exist, both return the same NotFound error, so
// the gateway never confirms a connection's existence to someone who isn't
// permitted to see it (spec.md §4.3 step 5).
func (s *Service) RequirePermission(principal *domain.Principal, connectionID string, perm domain.Permission) error {
	return s.RequirePermissions(principal, connectionID, domain.NewPermissionSet(perm))
}

// RequirePermissions demands every permission in required on a connection.
func (s *Service) RequirePermissions(principal *domain.Principal, connectionID string, required domain.PermissionSet) error {
	if principal == nil {
		return apierr.Unauthenticated("authentication required")
	}
	if _, ok := s.store.ConnectionByID(connectionID); !ok {
		return apierr.NotFound("connection not found")
	}
	granted := s.PermissionsFor(principal, connectionID)
	if len(granted) == 0 {
		return apierr.NotFound("connection not found")
	}
	missing := granted.Missing(required)
	if len(missing) > 0 {
		s.logger.Warn().
			Str("email", principal.Email).
			Str("connection_id", connectionID).
			Interface("missing", missing).
			Msg("permission denied")
		return apierr.PermissionDenied("missing permissions: " + joinPermissions(missing))
	}
	return nil
}

// RequireAnyPermission demands at least one of the given permissions.
func (s *Service) RequireAnyPermission(principal *domain.Principal, connectionID string, anyOf ...domain.Permission) error {
	if principal == nil {
		return apierr.Unauthenticated("authentication required")
	}
	if _, ok := s.store.ConnectionByID(connectionID); !ok {
		return apierr.NotFound("connection not found")
	}
	granted := s.PermissionsFor(principal, connectionID)
	if len(granted) == 0 {
		return apierr.NotFound("connection not found")
	}
	for _, p := range anyOf {
		if granted.Has(p) {
			return nil
		}
	}
	return apierr.PermissionDenied("none of the required permissions are granted")
}

func joinPermissions(perms []domain.Permission) string {
	out := ""
	for i, p := range perms {
		if i > 0 {
			out += ","
		}
		out += string(p)
	}
	return out
}
