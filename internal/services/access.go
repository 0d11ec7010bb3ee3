package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/tutorbridge-backend/internal/data/repos"
	types "github.com/yungbote/tutorbridge-backend/internal/domain"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/tutorbridge-backend/internal/platform/apierr"
)

type AuthMode string

const (
	// AuthEnforce requires a verified caller and checks document ownership.
	AuthEnforce AuthMode = "enforce"
	// AuthAdvisory accepts anonymous callers; ownership is checked only when a caller is known.
	AuthAdvisory AuthMode = "advisory"
)

func ParseAuthMode(raw string) AuthMode {
	if strings.EqualFold(strings.TrimSpace(raw), string(AuthAdvisory)) {
		return AuthAdvisory
	}
	return AuthEnforce
}

// Access compares the caller attached to ctx against the ids that own a document.
type Access struct {
	Mode AuthMode
}

func (a Access) Enforced() bool { return a.Mode != AuthAdvisory }

// Caller returns the verified caller. In enforce mode an anonymous request is rejected.
func (a Access) Caller(ctx context.Context) (uuid.UUID, error) {
	caller := ctxutil.CallerID(ctx)
	if caller == uuid.Nil && a.Enforced() {
		return uuid.Nil, apierr.Unauthorized("authentication required")
	}
	return caller, nil
}

// Require passes when the caller is one of owners, or when no caller is known in advisory mode.
func (a Access) Require(ctx context.Context, what string, owners ...uuid.UUID) error {
	caller, err := a.Caller(ctx)
	if err != nil {
		return err
	}
	if caller == uuid.Nil {
		return nil
	}
	for _, o := range owners {
		if o != uuid.Nil && o == caller {
			return nil
		}
	}
	return apierr.Forbidden("caller may not act on this %s", what)
}

// childOwners lists the ids allowed to act for a child: the child and, when a
// different caller is present, the child's parent.
func childOwners(ctx context.Context, userRepo repos.UserRepo, childID uuid.UUID) ([]uuid.UUID, error) {
	owners := []uuid.UUID{childID}
	caller := ctxutil.CallerID(ctx)
	if caller == uuid.Nil || caller == childID || userRepo == nil {
		return owners, nil
	}
	child, err := userRepo.GetByID(ctx, nil, childID)
	if err != nil {
		return nil, apierr.Upstream("load child", err)
	}
	if child != nil && child.ParentID != nil {
		owners = append(owners, *child.ParentID)
	}
	return owners, nil
}

// RequireGuardian passes only for the parent profile linked to childID acting as parentID.
// Anonymous callers in advisory mode are not checked.
func (a Access) RequireGuardian(ctx context.Context, userRepo repos.UserRepo, parentID, childID uuid.UUID) error {
	caller, err := a.Caller(ctx)
	if err != nil {
		return err
	}
	if caller == uuid.Nil {
		return nil
	}
	if caller != parentID {
		return apierr.Forbidden("caller may not act for parent %s", parentID)
	}
	profiles, err := userRepo.GetByIDs(ctx, nil, []uuid.UUID{parentID, childID})
	if err != nil {
		return apierr.Upstream("load family", err)
	}
	var parent, child *types.User
	for _, p := range profiles {
		switch p.ID {
		case parentID:
			parent = p
		case childID:
			child = p
		}
	}
	role := ctxutil.CallerRole(ctx)
	if role == "" && parent != nil {
		role = parent.Role
	}
	if role != types.RoleParent {
		return apierr.Forbidden("only a parent may manage curricula")
	}
	if child == nil || child.Role != types.RoleChild || child.ParentID == nil || *child.ParentID != parentID {
		return apierr.Forbidden("child %s is not linked to this parent", childID)
	}
	return nil
}
