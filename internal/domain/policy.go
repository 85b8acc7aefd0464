package domain

import "time"

// SSLMode enumerates the connection's TLS posture.
type SSLMode string

const (
	SSLModeDisable    SSLMode = "disable"
	SSLModePrefer     SSLMode = "prefer"
	SSLModeRequire    SSLMode = "require"
	SSLModeVerifyFull SSLMode = "verify-full"
)

// Label tags connections for grouping in the UI (e.g. "production",
// "staging"). Purely descriptive; never consulted by the IAM evaluator.
type Label struct {
	ID       string
	Name     string
	ColorHex string
}

// Connection is a named, declaratively configured PostgreSQL endpoint. It is
// not a physical TCP connection — the broker opens and closes short-lived
// pooled client connections per request against it.
type Connection struct {
	ID               string
	Name             string
	Host             string
	Port             int
	Database         string
	Username         string
	Password         string
	SSLMode          SSLMode
	SSLCA            string
	SSLCert          string
	SSLKey           string
	LabelIDs         []string
	LockTimeout      time.Duration
	StatementTimeout time.Duration
	Lazy             bool
}

// User is a configured login identity. A user with no Password cannot
// authenticate via the password flow.
type User struct {
	Email    string
	Password string
	Owner    bool
}

// Group is a named collection of users, referenced by IAM rules and by
// principals' Groups field.
type Group struct {
	ID      string
	Name    string
	Members []string // emails
}

// OIDCProviderType enumerates the supported OIDC identity providers.
type OIDCProviderType string

const (
	OIDCProviderGoogle   OIDCProviderType = "google"
	OIDCProviderKeycloak OIDCProviderType = "keycloak"
	OIDCProviderOkta     OIDCProviderType = "okta"
)

// OIDCProvider is one configured OpenID Connect identity provider.
type OIDCProvider struct {
	Type         OIDCProviderType
	ClientID     string
	ClientSecret string
	IssuerURL    string
}

// AuthConfig configures session signing and, optionally, OIDC providers.
type AuthConfig struct {
	JWTSecret     string
	SigninExpiry  time.Duration
	Providers     []OIDCProvider
}

// IAMRule grants a set of permissions on a connection (or all connections,
// via the "*" selector) to a set of members. Order of declaration does not
// affect the evaluated result: IAM evaluation is a union over every
// matching rule.
type IAMRule struct {
	ConnectionSelector string // connection id, or "*"
	Permissions        PermissionSet
	Members            []string // "*", "user:<email>", or "group:<id>"
}

// Plan is the license tier resolved at startup.
type Plan string

const (
	PlanFree       Plan = "FREE"
	PlanTeam       Plan = "TEAM"
	PlanEnterprise Plan = "ENTERPRISE"
)

// LicenseInfo carries the result of validating the license token (§4.1,
// §6 "opaque validate(token) call").
type LicenseInfo struct {
	Plan            Plan
	LicenseMaxUsers int
	LicenseExpiry   time.Time
	LicenseEmail    string
}

// Feature is a plan-gated capability name consulted by C10.
type Feature string

const (
	FeatureSSOGoogle   Feature = "SSO_GOOGLE"
	FeatureSSOKeycloak Feature = "SSO_KEYCLOAK"
	FeatureSSOOkta     Feature = "SSO_OKTA"
	FeatureIAM         Feature = "IAM"
)

// Policy is the fully validated, immutable configuration root. It is loaded
// once at startup; every accessor on it returns referentially stable data
// for the process lifetime.
type Policy struct {
	ExternalURL string
	Users       []User
	Groups      []Group
	Labels      []Label
	Connections []Connection
	Auth        *AuthConfig // nil when auth is disabled
	IAMRules    []IAMRule
	License     LicenseInfo
}
