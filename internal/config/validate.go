package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pgconsole/gateway/internal/domain"
	"github.com/rs/zerolog"
)

var fieldValidator = validator.New()

var signinExpiryPattern = regexp.MustCompile(`^\d+[hdw]$`)

var labelColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

const defaultSigninExpiry = 7 * 24 * time.Hour

// validate converts a rawFile into a domain.Policy, applying both
// struct-tag validation (required fields, formats) and the cross-field
// business rules spec.md §3/§4.1 describe: uniqueness, referential
// integrity, and the owner invariant. The license seat limit is not checked
// here; Load checks it after the license is resolved. Any failure is
// returned as a *LoadError with Path left blank for the caller to fill in.
func validate(raw rawFile, log zerolog.Logger) (*domain.Policy, *LoadError) {
	if err := fieldValidator.Struct(struct {
		Labels      []rawLabel
		Connections []rawConnection
	}{raw.Labels, raw.Connections}); err != nil {
		return nil, fieldErr(err)
	}

	labels, labelIDs, err := validateLabels(raw.Labels)
	if err != nil {
		return nil, err
	}

	connections, err := validateConnections(raw.Connections, labelIDs)
	if err != nil {
		return nil, err
	}

	groups, groupIDs, err := validateGroups(raw.Groups)
	if err != nil {
		return nil, err
	}

	users, err := validateUsers(raw.Users)
	if err != nil {
		return nil, err
	}

	auth, err := validateAuth(raw.Auth, users, log)
	if err != nil {
		return nil, err
	}

	connIDs := make(map[string]struct{}, len(connections))
	for _, c := range connections {
		connIDs[c.ID] = struct{}{}
	}

	rules, err := validateIAMRules(raw.IAM, connIDs, groupIDs)
	if err != nil {
		return nil, err
	}

	externalURL := strings.TrimRight(strings.TrimSpace(raw.General.ExternalURL), "/")
	if auth != nil && len(auth.Providers) > 0 && externalURL == "" {
		return nil, &LoadError{Reason: "general.externalUrl is required when auth.providers is non-empty"}
	}

	return &domain.Policy{
		ExternalURL: externalURL,
		Users:       users,
		Groups:      groups,
		Labels:      labels,
		Connections: connections,
		Auth:        auth,
		IAMRules:    rules,
	}, nil
}

func fieldErr(err error) *LoadError {
	return &LoadError{Reason: "field validation failed: " + err.Error()}
}

func validateLabels(raw []rawLabel) ([]domain.Label, map[string]struct{}, *LoadError) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]domain.Label, 0, len(raw))
	for _, l := range raw {
		if err := fieldValidator.Struct(l); err != nil {
			return nil, nil, fieldErr(err)
		}
		if !labelColorPattern.MatchString(l.ColorHex) {
			return nil, nil, &LoadError{Reason: fmt.Sprintf("label %q has invalid colorHex %q (want #rgb or #rrggbb)", l.ID, l.ColorHex)}
		}
		if _, dup := seen[l.ID]; dup {
			return nil, nil, &LoadError{Reason: fmt.Sprintf("duplicate label id %q", l.ID)}
		}
		seen[l.ID] = struct{}{}
		out = append(out, domain.Label{ID: l.ID, Name: l.Name, ColorHex: l.ColorHex})
	}
	return out, seen, nil
}

func validateConnections(raw []rawConnection, labelIDs map[string]struct{}) ([]domain.Connection, *LoadError) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]domain.Connection, 0, len(raw))
	for _, c := range raw {
		if err := fieldValidator.Struct(c); err != nil {
			return nil, fieldErr(err)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, &LoadError{Reason: fmt.Sprintf("duplicate connection id %q", c.ID)}
		}
		seen[c.ID] = struct{}{}

		for _, l := range c.Labels {
			if _, ok := labelIDs[l]; !ok {
				return nil, &LoadError{Reason: fmt.Sprintf("connection %q references undeclared label %q", c.ID, l)}
			}
		}

		sslMode := domain.SSLMode(c.SSLMode)
		if sslMode == "" {
			sslMode = domain.SSLModePrefer
		}
		switch sslMode {
		case domain.SSLModeDisable, domain.SSLModePrefer, domain.SSLModeRequire, domain.SSLModeVerifyFull:
		default:
			return nil, &LoadError{Reason: fmt.Sprintf("connection %q has invalid sslMode %q", c.ID, c.SSLMode)}
		}

		lockTimeout, lerr := parseOptionalDuration(c.LockTimeout)
		if lerr != nil {
			return nil, &LoadError{Reason: fmt.Sprintf("connection %q lockTimeout: %s", c.ID, lerr)}
		}
		statementTimeout, serr := parseOptionalDuration(c.StatementTimeout)
		if serr != nil {
			return nil, &LoadError{Reason: fmt.Sprintf("connection %q statementTimeout: %s", c.ID, serr)}
		}

		out = append(out, domain.Connection{
			ID:               c.ID,
			Name:             c.Name,
			Host:             c.Host,
			Port:             c.Port,
			Database:         c.Database,
			Username:         c.Username,
			Password:         c.Password,
			SSLMode:          sslMode,
			SSLCA:            c.SSLCA,
			SSLCert:          c.SSLCert,
			SSLKey:           c.SSLKey,
			LabelIDs:         c.Labels,
			LockTimeout:      lockTimeout,
			StatementTimeout: statementTimeout,
			Lazy:             c.Lazy,
		})
	}
	return out, nil
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func validateGroups(raw []rawGroup) ([]domain.Group, map[string]struct{}, *LoadError) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]domain.Group, 0, len(raw))
	for _, g := range raw {
		if err := fieldValidator.Struct(g); err != nil {
			return nil, nil, fieldErr(err)
		}
		if _, dup := seen[g.ID]; dup {
			return nil, nil, &LoadError{Reason: fmt.Sprintf("duplicate group id %q", g.ID)}
		}
		seen[g.ID] = struct{}{}
		out = append(out, domain.Group{ID: g.ID, Name: g.Name, Members: g.Members})
	}
	return out, seen, nil
}

// validateUsers enforces unique emails and the "at least one owner" rule:
// if users are declared but none is marked owner, the first declared user
// is promoted (spec.md §3 "at least one owner must exist").
func validateUsers(raw []rawUser) ([]domain.User, *LoadError) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]domain.User, 0, len(raw))
	hasOwner := false
	for _, u := range raw {
		if err := fieldValidator.Struct(u); err != nil {
			return nil, fieldErr(err)
		}
		email := strings.ToLower(u.Email)
		if _, dup := seen[email]; dup {
			return nil, &LoadError{Reason: fmt.Sprintf("duplicate user email %q", u.Email)}
		}
		seen[email] = struct{}{}
		if u.Owner {
			hasOwner = true
		}
		out = append(out, domain.User{Email: u.Email, Password: u.Password, Owner: u.Owner})
	}
	if len(out) > 0 && !hasOwner {
		out[0].Owner = true
	}
	return out, nil
}

func validateAuth(raw *rawAuth, users []domain.User, log zerolog.Logger) (*domain.AuthConfig, *LoadError) {
	if raw == nil {
		return nil, nil
	}
	if err := fieldValidator.Struct(raw); err != nil {
		return nil, fieldErr(err)
	}
	if len(users) == 0 {
		return nil, &LoadError{Reason: "auth is configured but no users are declared"}
	}

	expiry := defaultSigninExpiry
	if raw.SigninExpiry != "" {
		if !signinExpiryPattern.MatchString(raw.SigninExpiry) {
			log.Warn().Str("signinExpiry", raw.SigninExpiry).Msg("auth.signinExpiry does not match \\d+[hdw], falling back to 7 days")
		} else {
			d, err := parseSigninExpiry(raw.SigninExpiry)
			if err != nil {
				log.Warn().Str("signinExpiry", raw.SigninExpiry).Err(err).Msg("auth.signinExpiry unparseable, falling back to 7 days")
			} else {
				expiry = d
			}
		}
	}

	providers := make([]domain.OIDCProvider, 0, len(raw.Providers))
	for _, p := range raw.Providers {
		if err := fieldValidator.Struct(p); err != nil {
			return nil, fieldErr(err)
		}
		providerType := domain.OIDCProviderType(p.Type)
		if providerType != domain.OIDCProviderGoogle && p.IssuerURL == "" {
			return nil, &LoadError{Reason: fmt.Sprintf("auth.providers[%s] requires issuerUrl", p.Type)}
		}
		providers = append(providers, domain.OIDCProvider{
			Type:         providerType,
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			IssuerURL:    p.IssuerURL,
		})
	}

	return &domain.AuthConfig{
		JWTSecret:    raw.JWTSecret,
		SigninExpiry: expiry,
		Providers:    providers,
	}, nil
}

// parseSigninExpiry parses the `\d+[hdw]` shorthand into a duration; time.ParseDuration
// has no "d"/"w" units so days and weeks are expanded by hand.
func parseSigninExpiry(s string) (time.Duration, error) {
	unit := s[len(s)-1]
	var n int
	if _, err := fmt.Sscanf(s[:len(s)-1], "%d", &n); err != nil {
		return 0, err
	}
	switch unit {
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown unit %q", string(unit))
	}
}

func validateIAMRules(raw []rawIAMRule, connIDs, groupIDs map[string]struct{}) ([]domain.IAMRule, *LoadError) {
	out := make([]domain.IAMRule, 0, len(raw))
	for _, r := range raw {
		if err := fieldValidator.Struct(r); err != nil {
			return nil, fieldErr(err)
		}
		if r.Connection != "*" {
			if _, ok := connIDs[r.Connection]; !ok {
				return nil, &LoadError{Reason: fmt.Sprintf("iam rule references undeclared connection %q", r.Connection)}
			}
		}

		perms := domain.PermissionSet{}
		for _, p := range r.Permissions {
			if p == "*" {
				perms = domain.FullPermissionSet()
				break
			}
			parsed, ok := domain.ParsePermission(p)
			if !ok {
				return nil, &LoadError{Reason: fmt.Sprintf("iam rule on %q has unknown permission %q", r.Connection, p)}
			}
			perms.Add(parsed)
		}

		for _, m := range r.Members {
			switch {
			case m == "*":
			case strings.HasPrefix(m, "user:"):
			case strings.HasPrefix(m, "group:"):
				id := strings.TrimPrefix(m, "group:")
				if _, ok := groupIDs[id]; !ok {
					return nil, &LoadError{Reason: fmt.Sprintf("iam rule on %q references undeclared group %q", r.Connection, id)}
				}
			default:
				return nil, &LoadError{Reason: fmt.Sprintf("iam rule on %q has malformed member token %q", r.Connection, m)}
			}
		}

		out = append(out, domain.IAMRule{
			ConnectionSelector: r.Connection,
			Permissions:        perms,
			Members:            r.Members,
		})
	}
	return out, nil
}
