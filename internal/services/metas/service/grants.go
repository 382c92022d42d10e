package service

import (
	"context"

	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/events"
)

// GrantAccess gives a user write access to a sector or a team.
// Administrators only.
func (s *Service) GrantAccess(ctx context.Context, actor access.Actor, input access.CreateGrantInput) (_ access.Grant, err error) {
	ctx, finish, err := s.begin(ctx, "grant_access", actor)
	defer finish(&err)
	if err != nil {
		return access.Grant{}, err
	}
	grant, err := access.CreateGrant(input, actor, s.now, s.newID)
	if err != nil {
		return access.Grant{}, err
	}
	if grant.TeamID != "" {
		if _, err := s.store.GetTeam(ctx, grant.TeamID); err != nil {
			return access.Grant{}, notFound(err, "team")
		}
	} else if _, err := s.store.GetSector(ctx, grant.SectorID); err != nil {
		return access.Grant{}, notFound(err, "sector")
	}
	if err := s.store.CreateGrant(ctx, grant); err != nil {
		return access.Grant{}, alreadyExists(err, "grant")
	}
	s.publish(ctx, actor, events.GrantCreated, grant.ID, grant.TeamID, map[string]string{
		"user_id":   grant.UserID,
		"sector_id": grant.SectorID,
	})
	return grant, nil
}

// RevokeAccess deactivates a grant. Revoking twice is a no-op.
// Administrators only.
func (s *Service) RevokeAccess(ctx context.Context, actor access.Actor, grantID string) (_ access.Grant, err error) {
	ctx, finish, err := s.begin(ctx, "revoke_access", actor)
	defer finish(&err)
	if err != nil {
		return access.Grant{}, err
	}
	if err := access.RequireAdmin(actor); err != nil {
		return access.Grant{}, err
	}
	grant, err := s.store.GetGrant(ctx, grantID)
	if err != nil {
		return access.Grant{}, notFound(err, "grant")
	}
	if !grant.Active {
		return grant, nil
	}
	grant.Active = false
	if err := s.store.UpdateGrant(ctx, grant); err != nil {
		return access.Grant{}, notFound(err, "grant")
	}
	s.publish(ctx, actor, events.GrantRevoked, grant.ID, grant.TeamID, map[string]string{"user_id": grant.UserID})
	return grant, nil
}

// ListGrants returns the grants of userID, or every grant when empty.
// Administrators see everyone's grants; other actors only their own.
func (s *Service) ListGrants(ctx context.Context, actor access.Actor, userID string) (_ []access.Grant, err error) {
	ctx, finish, err := s.begin(ctx, "list_grants", actor)
	defer finish(&err)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		if userID != "" && userID != actor.UserID {
			return nil, access.ErrPermissionDenied
		}
		userID = actor.UserID
	}
	return s.store.ListGrants(ctx, userID)
}
