package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/tutorbridge-backend/internal/data/db"
	"github.com/yungbote/tutorbridge-backend/internal/data/repos"
	types "github.com/yungbote/tutorbridge-backend/internal/domain"
	"github.com/yungbote/tutorbridge-backend/internal/domain/user"
	pkgerrors "github.com/yungbote/tutorbridge-backend/internal/pkg/errors"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
	"github.com/yungbote/tutorbridge-backend/internal/platform/apierr"
	"github.com/yungbote/tutorbridge-backend/internal/platform/identity"
)

const (
	inviteCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	inviteCodeLen      = 8
	inviteCodeAttempts = 5
)

type SignupInput struct {
	Email      string
	Password   string
	Role       string
	Name       string
	InviteCode string
}

type SignupResult struct {
	Message    string    `json:"message"`
	InviteCode string    `json:"inviteCode,omitempty"`
	UID        uuid.UUID `json:"uid"`
	Role       string    `json:"role"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	UID       uuid.UUID `json:"uid"`
	Role      string    `json:"role"`
	ExpiresIn int64     `json:"expiresIn"`
}

type UserInfo struct {
	Role       string  `json:"role"`
	InviteCode *string `json:"inviteCode"`
}

type ChildSummary struct {
	UID       uuid.UUID `json:"uid"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Progress  int       `json:"progress"`
	TimeSpent int       `json:"timeSpent"`
}

type AccountService interface {
	Signup(ctx context.Context, in SignupInput) (*SignupResult, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	GetUserInfo(ctx context.Context, uid uuid.UUID) (*UserInfo, error)
	GetChildren(ctx context.Context, parentID uuid.UUID) ([]ChildSummary, error)
}

type accountService struct {
	log      *logger.Logger
	idp      identity.Provider
	userRepo repos.UserRepo
	access   Access
}

func NewAccountService(log *logger.Logger, idp identity.Provider, userRepo repos.UserRepo, access Access) AccountService {
	serviceLog := log.With("service", "AccountService")
	return &accountService{
		log:      serviceLog,
		idp:      idp,
		userRepo: userRepo,
		access:   access,
	}
}

func mintInviteCode() (string, error) {
	out := make([]byte, inviteCodeLen)
	size := big.NewInt(int64(len(inviteCodeAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		out[i] = inviteCodeAlphabet[n.Int64()]
	}
	return string(out), nil
}

func (as *accountService) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	role := strings.ToLower(strings.TrimSpace(in.Role))
	inviteCode := strings.TrimSpace(in.InviteCode)
	switch {
	case email == "":
		return nil, apierr.MissingField("email")
	case in.Password == "":
		return nil, apierr.MissingField("password")
	case role == "":
		return nil, apierr.MissingField("role")
	case !user.ValidRole(role):
		return nil, apierr.Client(apierr.CodeInvalidRequest, "role must be %q or %q", types.RoleParent, types.RoleChild)
	case role == types.RoleChild && inviteCode == "":
		return nil, apierr.MissingField("inviteCode")
	}

	uid, err := as.idp.CreateIdentity(ctx, email, in.Password)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrInvalidArgument) {
			return nil, apierr.Client(apierr.CodeInvalidRequest, "%s", err.Error())
		}
		return nil, apierr.Upstream("create identity", err)
	}

	profile := &types.User{
		ID:    uid,
		Email: email,
		Name:  strings.TrimSpace(in.Name),
		Role:  role,
	}

	if role == types.RoleChild {
		parents, err := as.userRepo.GetParentsByInviteCode(ctx, nil, inviteCode)
		if err != nil {
			as.compensate(ctx, uid, "invite lookup failed")
			return nil, apierr.Upstream("lookup invite code", err)
		}
		if len(parents) != 1 {
			as.compensate(ctx, uid, "invalid invite code")
			return nil, apierr.Client(apierr.CodeInvalidInvite, "invalid invite code")
		}
		profile.ParentID = &parents[0].ID
		if _, err := as.userRepo.Create(ctx, nil, []*types.User{profile}); err != nil {
			as.compensate(ctx, uid, "profile write failed")
			return nil, apierr.Upstream("create profile", err)
		}
		as.log.Info("Child signed up", "user_id", uid, "parent_id", parents[0].ID)
		return &SignupResult{Message: "User created successfully", UID: uid, Role: role}, nil
	}

	code, err := as.createParentProfile(ctx, profile)
	if err != nil {
		as.compensate(ctx, uid, "profile write failed")
		return nil, apierr.Upstream("create profile", err)
	}
	as.log.Info("Parent signed up", "user_id", uid)
	return &SignupResult{Message: "User created successfully", InviteCode: code, UID: uid, Role: role}, nil
}

// createParentProfile mints invite codes until one is free. The unique index is
// the final arbiter when two signups race for the same code.
func (as *accountService) createParentProfile(ctx context.Context, profile *types.User) (string, error) {
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code, err := mintInviteCode()
		if err != nil {
			return "", fmt.Errorf("mint invite code: %w", err)
		}
		taken, err := as.userRepo.InviteCodeExists(ctx, nil, code)
		if err != nil {
			return "", err
		}
		if taken {
			continue
		}
		profile.InviteCode = &code
		if _, err := as.userRepo.Create(ctx, nil, []*types.User{profile}); err != nil {
			if db.IsUniqueViolation(err) {
				as.log.Warn("Invite code collision, retrying", "attempt", attempt)
				continue
			}
			return "", err
		}
		return code, nil
	}
	return "", fmt.Errorf("could not mint a unique invite code after %d attempts", inviteCodeAttempts)
}

// compensate removes an identity whose profile could not be written.
func (as *accountService) compensate(ctx context.Context, uid uuid.UUID, reason string) {
	if err := as.idp.DeleteIdentity(context.WithoutCancel(ctx), uid); err != nil {
		as.log.Error("Compensating identity delete failed", "user_id", uid, "reason", reason, "error", err)
		return
	}
	as.log.Warn("Signup rolled back", "user_id", uid, "reason", reason)
}

func (as *accountService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apierr.MissingField("email")
	}
	if password == "" {
		return nil, apierr.MissingField("password")
	}
	tok, err := as.idp.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrUnauthorized) {
			return nil, apierr.Unauthorized("invalid email or password")
		}
		return nil, apierr.Upstream("sign in", err)
	}
	profile, err := as.userRepo.GetByID(ctx, nil, tok.UID)
	if err != nil {
		return nil, apierr.Upstream("load profile", err)
	}
	if profile == nil {
		return nil, apierr.NotFound("user", tok.UID)
	}
	return &LoginResult{
		Token:     tok.Value,
		UID:       tok.UID,
		Role:      profile.Role,
		ExpiresIn: int64(as.idp.AccessTTL().Seconds()),
	}, nil
}

func (as *accountService) GetUserInfo(ctx context.Context, uid uuid.UUID) (*UserInfo, error) {
	if uid == uuid.Nil {
		return nil, apierr.MissingField("uid")
	}
	if err := as.access.Require(ctx, "user", uid); err != nil {
		return nil, err
	}
	profile, err := as.userRepo.GetByID(ctx, nil, uid)
	if err != nil {
		return nil, apierr.Upstream("load profile", err)
	}
	if profile == nil {
		return nil, apierr.NotFound("user", uid)
	}
	return &UserInfo{Role: profile.Role, InviteCode: profile.InviteCode}, nil
}

func (as *accountService) GetChildren(ctx context.Context, parentID uuid.UUID) ([]ChildSummary, error) {
	if parentID == uuid.Nil {
		return nil, apierr.MissingField("parentUid")
	}
	if err := as.access.Require(ctx, "parent", parentID); err != nil {
		return nil, err
	}
	kids, err := as.userRepo.ListChildren(ctx, nil, parentID)
	if err != nil {
		return nil, apierr.Upstream("list children", err)
	}
	out := make([]ChildSummary, 0, len(kids))
	for _, k := range kids {
		out = append(out, ChildSummary{
			UID:       k.ID,
			Email:     k.Email,
			Name:      k.Name,
			Progress:  k.Progress,
			TimeSpent: k.TimeSpentSeconds,
		})
	}
	return out, nil
}
