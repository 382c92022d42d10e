// Package access defines actors, roles and the grants that scope launchers
// to sectors and teams.
package access

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/metas/internal/platform/errors"
	"github.com/louisbranch/metas/internal/platform/id"
)

// Role is the authorization class claimed by the identity provider.
type Role string

const (
	// RoleAdmin configures the organization and finalizes results.
	RoleAdmin Role = "admin"
	// RoleLauncher suggests goals and submits results for granted teams.
	RoleLauncher Role = "launcher"
	// RoleViewer only reads.
	RoleViewer Role = "viewer"
)

var roleAliases = map[string]Role{
	"admin":         RoleAdmin,
	"administrator": RoleAdmin,
	"launcher":      RoleLauncher,
	"manager":       RoleLauncher,
	"lancamento":    RoleLauncher,
	"viewer":        RoleViewer,
	"visualizacao":  RoleViewer,
}

var (
	// ErrPermissionDenied indicates the actor's role or grants are insufficient.
	ErrPermissionDenied = apperrors.New(apperrors.CodePermissionDenied, "permission denied")
	// ErrUnauthenticated indicates a missing or anonymous actor.
	ErrUnauthenticated = apperrors.New(apperrors.CodeUnauthenticated, "authenticated actor is required")
	// ErrGrantUserMissing indicates a grant without a grantee.
	ErrGrantUserMissing = apperrors.New(apperrors.CodeGrantUserMissing, "grant user is required")
	// ErrGrantTargetMissing indicates a grant that names neither or both targets.
	ErrGrantTargetMissing = apperrors.New(apperrors.CodeGrantTargetMissing, "grant needs exactly one sector or team")
)

// ParseRole maps a role claim, including legacy aliases, to a Role.
func ParseRole(raw string) (Role, error) {
	role, ok := roleAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", apperrors.WithMetadata(apperrors.CodeValidationFailed, fmt.Sprintf("unknown role %q", raw), map[string]string{
			"Reason": "unknown role",
		})
	}
	return role, nil
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID string
	Name   string
	Role   Role
}

// IsAdmin reports whether the actor is an administrator.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Validate ensures the actor carries an identity and a known role.
func (a Actor) Validate() error {
	if strings.TrimSpace(a.UserID) == "" {
		return ErrUnauthenticated
	}
	switch a.Role {
	case RoleAdmin, RoleLauncher, RoleViewer:
		return nil
	default:
		return ErrUnauthenticated
	}
}

// RequireAdmin fails unless actor is an administrator.
func RequireAdmin(actor Actor) error {
	if !actor.IsAdmin() {
		return ErrPermissionDenied
	}
	return nil
}

// Scope names what a grant covers.
type Scope string

const (
	ScopeSector Scope = "sector"
	ScopeTeam   Scope = "team"
)

// Grant gives a user write access to every team of a sector, or to one team.
type Grant struct {
	ID        string
	UserID    string
	SectorID  string
	TeamID    string
	GrantedBy string
	Active    bool
	CreatedAt time.Time
}

// Scope reports whether the grant targets a sector or a team.
func (g Grant) Scope() Scope {
	if g.TeamID != "" {
		return ScopeTeam
	}
	return ScopeSector
}

// Covers reports whether the grant allows writes on team within sector.
func (g Grant) Covers(sectorID, teamID string) bool {
	if !g.Active {
		return false
	}
	if g.TeamID != "" {
		return g.TeamID == teamID
	}
	return g.SectorID != "" && g.SectorID == sectorID
}

// CreateGrantInput describes a new access grant.
type CreateGrantInput struct {
	UserID   string
	SectorID string
	TeamID   string
}

// CreateGrant builds an active grant issued by grantor.
func CreateGrant(input CreateGrantInput, grantor Actor, now func() time.Time, idGenerator func() (string, error)) (Grant, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	if err := RequireAdmin(grantor); err != nil {
		return Grant{}, err
	}
	input.UserID = strings.TrimSpace(input.UserID)
	input.SectorID = strings.TrimSpace(input.SectorID)
	input.TeamID = strings.TrimSpace(input.TeamID)
	if input.UserID == "" {
		return Grant{}, ErrGrantUserMissing
	}
	if (input.SectorID == "") == (input.TeamID == "") {
		return Grant{}, ErrGrantTargetMissing
	}

	grantID, err := idGenerator()
	if err != nil {
		return Grant{}, fmt.Errorf("generate grant id: %w", err)
	}
	return Grant{
		ID:        grantID,
		UserID:    input.UserID,
		SectorID:  input.SectorID,
		TeamID:    input.TeamID,
		GrantedBy: grantor.UserID,
		Active:    true,
		CreatedAt: now().UTC(),
	}, nil
}

// RequireTeamWrite fails unless actor may write goals or results of team.
// Administrators are never scoped; viewers never write; launchers need a
// covering grant.
func RequireTeamWrite(actor Actor, grants []Grant, sectorID, teamID string) error {
	switch actor.Role {
	case RoleAdmin:
		return nil
	case RoleLauncher:
		for _, grant := range grants {
			if grant.UserID == actor.UserID && grant.Covers(sectorID, teamID) {
				return nil
			}
		}
	}
	return ErrPermissionDenied
}
