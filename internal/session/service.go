// Package session implements C9 Session Admission: listing and
// terminating live PostgreSQL backend sessions on a connection, filtered
// by whether the caller is an admin (sees everyone) or a regular
// principal (sees only sessions tagged with their own application_name).
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgconsole/gateway/internal/apierr"
	"github.com/pgconsole/gateway/internal/config"
	"github.com/pgconsole/gateway/internal/database"
	"github.com/pgconsole/gateway/internal/domain"
	"github.com/pgconsole/gateway/internal/iam"
)

// Info is one row from pg_stat_activity, filtered to the fields the
// gateway ever surfaces to a client.
type Info struct {
	PID             uint32 `json:"pid"`
	ApplicationName string `json:"application_name"`
	Email           string `json:"email,omitempty"` // recovered from the pgconsole: prefix, if present
	State           string `json:"state"`
	Query           string `json:"query"`
	BackendStart    string `json:"backend_start"`
}

// Service is C9.
type Service struct {
	store   *config.Store
	factory *database.ClientFactory
	iam     *iam.Service
}

// NewService builds a session admission service.
func NewService(store *config.Store, factory *database.ClientFactory, iamSvc *iam.Service) *Service {
	return &Service{store: store, factory: factory, iam: iamSvc}
}

const applicationNamePrefix = "pgconsole:"

// ActiveSessions lists live backends on connectionID. Callers without
// admin permission only ever see sessions tagged with their own email; an
// admin sees every session the gateway itself opened.
func (s *Service) ActiveSessions(ctx context.Context, principal *domain.Principal, connectionID string) ([]Info, error) {
	if err := s.iam.RequirePermission(principal, connectionID, domain.PermissionRead); err != nil {
		return nil, err
	}

	conn, ok := s.store.ConnectionByID(connectionID)
	if !ok {
		return nil, apierr.NotFound("connection not found")
	}

	client, err := s.factory.Acquire(ctx, conn, principal.Email)
	if err != nil {
		return nil, apierr.Unavailable("failed to acquire database connection: " + err.Error())
	}
	defer client.Release()

	isAdmin := s.iam.RequirePermission(principal, connectionID, domain.PermissionAdmin) == nil

	rows, err := client.Conn().Query(ctx, `
		SELECT pid, application_name, state, COALESCE(query, ''), backend_start::text
		FROM pg_stat_activity
		WHERE application_name LIKE $1 || '%'`, applicationNamePrefix)
	if err != nil {
		return nil, fmt.Errorf("query pg_stat_activity: %w", err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var info Info
		var appName string
		if err := rows.Scan(&info.PID, &appName, &info.State, &info.Query, &info.BackendStart); err != nil {
			return nil, err
		}
		info.ApplicationName = appName
		info.Email = strings.TrimPrefix(appName, applicationNamePrefix)

		if !isAdmin && !strings.EqualFold(info.Email, principal.Email) {
			continue
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// TerminateSession kills a live backend. Only an admin may terminate a
// session that isn't their own.
func (s *Service) TerminateSession(ctx context.Context, principal *domain.Principal, connectionID string, pid uint32) error {
	sessions, err := s.ActiveSessions(ctx, principal, connectionID)
	if err != nil {
		return err
	}

	var target *Info
	for i := range sessions {
		if sessions[i].PID == pid {
			target = &sessions[i]
			break
		}
	}
	if target == nil {
		return apierr.NotFound("session not found")
	}

	if !strings.EqualFold(target.Email, principal.Email) {
		if err := s.iam.RequirePermission(principal, connectionID, domain.PermissionAdmin); err != nil {
			return err
		}
	}

	conn, ok := s.store.ConnectionByID(connectionID)
	if !ok {
		return apierr.NotFound("connection not found")
	}
	client, err := s.factory.Acquire(ctx, conn, principal.Email)
	if err != nil {
		return apierr.Unavailable("failed to acquire database connection: " + err.Error())
	}
	defer client.Release()

	_, err = client.Conn().Exec(ctx, "SELECT pg_terminate_backend($1)", pid)
	return err
}
