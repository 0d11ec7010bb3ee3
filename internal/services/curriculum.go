package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/tutorbridge-backend/internal/data/repos"
	types "github.com/yungbote/tutorbridge-backend/internal/domain"
	"github.com/yungbote/tutorbridge-backend/internal/observability"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/pointers"
	"github.com/yungbote/tutorbridge-backend/internal/platform/apierr"
	"github.com/yungbote/tutorbridge-backend/internal/platform/openai"
	"github.com/yungbote/tutorbridge-backend/internal/prompts"
)

type GenerateCurriculumInput struct {
	ParentID uuid.UUID
	ChildID  uuid.UUID
	Subject  string
	AgeRange string
}

// CurriculumService owns the curriculum state machine:
// pending_review -> approved | pending_review (revised) | cancelled.
//
// There is no optimistic locking. Two concurrent transitions on one curriculum
// both pass the status check and the later write wins.
type CurriculumService interface {
	Generate(ctx context.Context, in GenerateCurriculumInput) (*types.Curriculum, error)
	Approve(ctx context.Context, curriculumID, parentID, childID uuid.UUID) (*types.Curriculum, error)
	RequestChanges(ctx context.Context, curriculumID, parentID uuid.UUID, changeRequest string) (*types.Curriculum, error)
	Cancel(ctx context.Context, curriculumID, parentID uuid.UUID) error
	Purge(ctx context.Context, curriculumID uuid.UUID) error
	Get(ctx context.Context, curriculumID uuid.UUID) (*types.Curriculum, error)
	ListApproved(ctx context.Context, childID uuid.UUID) ([]*types.Curriculum, error)
	ListForParent(ctx context.Context, parentID uuid.UUID, status string) ([]*types.Curriculum, error)
}

type curriculumService struct {
	db             *gorm.DB
	log            *logger.Logger
	llm            openai.Client
	prompts        *prompts.Pack
	curriculumRepo repos.CurriculumRepo
	assignmentRepo repos.ChildAssignmentRepo
	userRepo       repos.UserRepo
	notify         LearningNotifier
	metrics        *observability.Metrics
	access         Access
}

func NewCurriculumService(
	db *gorm.DB,
	log *logger.Logger,
	llm openai.Client,
	pack *prompts.Pack,
	curriculumRepo repos.CurriculumRepo,
	assignmentRepo repos.ChildAssignmentRepo,
	userRepo repos.UserRepo,
	notify LearningNotifier,
	metrics *observability.Metrics,
	access Access,
) CurriculumService {
	if notify == nil {
		notify = NewLearningNotifier(nil)
	}
	return &curriculumService{
		db:             db,
		log:            log.With("service", "CurriculumService"),
		llm:            llm,
		prompts:        pack,
		curriculumRepo: curriculumRepo,
		assignmentRepo: assignmentRepo,
		userRepo:       userRepo,
		notify:         notify,
		metrics:        metrics,
		access:         access,
	}
}

// load fetches a live (not cancelled) curriculum.
func (cs *curriculumService) load(ctx context.Context, curriculumID uuid.UUID) (*types.Curriculum, error) {
	c, err := cs.curriculumRepo.GetByID(ctx, nil, curriculumID)
	if err != nil {
		return nil, apierr.Upstream("load curriculum", err)
	}
	if c == nil {
		return nil, apierr.NotFound("curriculum", curriculumID)
	}
	return c, nil
}

func requirePending(c *types.Curriculum, op string) error {
	if c.Status != types.CurriculumPendingReview {
		return apierr.Conflict("cannot %s a curriculum in status %q", op, c.Status)
	}
	return nil
}

func (cs *curriculumService) Approve(ctx context.Context, curriculumID, parentID, childID uuid.UUID) (*types.Curriculum, error) {
	switch {
	case curriculumID == uuid.Nil:
		return nil, apierr.MissingField("curriculumId")
	case parentID == uuid.Nil:
		return nil, apierr.MissingField("parentId")
	case childID == uuid.Nil:
		return nil, apierr.MissingField("childId")
	}
	c, err := cs.load(ctx, curriculumID)
	if err != nil {
		return nil, err
	}
	if childID != c.ChildID {
		return nil, apierr.Forbidden("curriculum %s was drafted for another child", c.ID)
	}
	if err := cs.access.Require(ctx, "curriculum", c.ParentID); err != nil {
		return nil, err
	}
	if err := cs.access.RequireGuardian(ctx, cs.userRepo, parentID, childID); err != nil {
		return nil, err
	}
	if err := requirePending(c, "approve"); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := cs.curriculumRepo.UpdateFields(ctx, tx, c.ID, map[string]any{
			"status":      types.CurriculumApproved,
			"approved_by": parentID,
			"assigned_to": childID,
			"approved_at": now,
		}); err != nil {
			return err
		}
		return cs.assignmentRepo.Assign(ctx, tx, childID, c.ID, parentID)
	})
	if err != nil {
		return nil, apierr.Upstream("approve curriculum", err)
	}

	c.Status = types.CurriculumApproved
	c.ApprovedBy = pointers.Ptr(parentID)
	c.AssignedTo = pointers.Ptr(childID)
	c.ApprovedAt = pointers.Ptr(now)
	cs.log.Info("Curriculum approved", "curriculum_id", c.ID, "child_id", childID)
	cs.metrics.IncTransition("approve")
	cs.notify.CurriculumApproved(ctx, c)
	return c, nil
}

func (cs *curriculumService) RequestChanges(ctx context.Context, curriculumID, parentID uuid.UUID, changeRequest string) (*types.Curriculum, error) {
	changeRequest = strings.TrimSpace(changeRequest)
	switch {
	case curriculumID == uuid.Nil:
		return nil, apierr.MissingField("curriculumId")
	case parentID == uuid.Nil:
		return nil, apierr.MissingField("parentId")
	case changeRequest == "":
		return nil, apierr.MissingField("changeRequest")
	}
	c, err := cs.load(ctx, curriculumID)
	if err != nil {
		return nil, err
	}
	if err := cs.access.Require(ctx, "curriculum", c.ParentID); err != nil {
		return nil, err
	}
	if err := requirePending(c, "revise"); err != nil {
		return nil, err
	}

	prompt, err := cs.prompts.Revise(prompts.ReviseData{
		Subject:       c.Subject,
		AgeRange:      c.AgeRange,
		Current:       RenderCurriculum(&c.CurriculumContent),
		ChangeRequest: changeRequest,
	})
	if err != nil {
		return nil, apierr.Upstream("render revision prompt", err)
	}
	content, err := cs.completeCurriculum(ctx, prompt)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	n, err := cs.curriculumRepo.UpdateFields(ctx, nil, c.ID, map[string]any{
		"title":               content.Title,
		"overview":            content.Overview,
		"objectives":          content.Objectives,
		"key_concepts":        content.KeyConcepts,
		"lessons":             content.Lessons,
		"assessment":          content.Assessment,
		"resources":           content.Resources,
		"last_change_request": changeRequest,
		"change_requested_by": parentID,
		"change_requested_at": now,
	})
	if err != nil {
		return nil, apierr.Upstream("store revision", err)
	}
	if n == 0 {
		return nil, apierr.NotFound("curriculum", c.ID)
	}

	updated, err := cs.load(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	cs.log.Info("Curriculum revised", "curriculum_id", c.ID, "lessons", len(updated.Lessons))
	cs.metrics.IncTransition("request_changes")
	cs.notify.CurriculumRevised(ctx, updated)
	return updated, nil
}

// Cancel records the cancellation and then hides the row; Purge erases it.
func (cs *curriculumService) Cancel(ctx context.Context, curriculumID, parentID uuid.UUID) error {
	switch {
	case curriculumID == uuid.Nil:
		return apierr.MissingField("curriculumId")
	case parentID == uuid.Nil:
		return apierr.MissingField("parentId")
	}
	c, err := cs.load(ctx, curriculumID)
	if err != nil {
		return err
	}
	if err := cs.access.Require(ctx, "curriculum", c.ParentID); err != nil {
		return err
	}
	if err := requirePending(c, "cancel"); err != nil {
		return err
	}

	now := time.Now().UTC()
	err = cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := cs.curriculumRepo.UpdateFields(ctx, tx, c.ID, map[string]any{
			"status":       types.CurriculumCancelled,
			"cancelled_by": parentID,
			"cancelled_at": now,
		}); err != nil {
			return err
		}
		return cs.curriculumRepo.SoftDelete(ctx, tx, c.ID)
	})
	if err != nil {
		return apierr.Upstream("cancel curriculum", err)
	}

	c.Status = types.CurriculumCancelled
	cs.log.Info("Curriculum cancelled", "curriculum_id", c.ID)
	cs.metrics.IncTransition("cancel")
	cs.notify.CurriculumCancelled(ctx, c)
	return nil
}

// Purge always needs a verified caller, whatever the auth mode.
func (cs *curriculumService) Purge(ctx context.Context, curriculumID uuid.UUID) error {
	if curriculumID == uuid.Nil {
		return apierr.MissingField("curriculumId")
	}
	enforced := Access{Mode: AuthEnforce}
	if _, err := enforced.Caller(ctx); err != nil {
		return err
	}
	c, err := cs.curriculumRepo.GetByIDUnscoped(ctx, nil, curriculumID)
	if err != nil {
		return apierr.Upstream("load curriculum", err)
	}
	if c == nil {
		return apierr.NotFound("curriculum", curriculumID)
	}
	if err := enforced.Require(ctx, "curriculum", c.ParentID); err != nil {
		return err
	}

	err = cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := cs.assignmentRepo.DeleteByCurriculum(ctx, tx, c.ID); err != nil {
			return err
		}
		_, err := cs.curriculumRepo.HardDelete(ctx, tx, c.ID)
		return err
	})
	if err != nil {
		return apierr.Upstream("purge curriculum", err)
	}
	cs.log.Warn("Curriculum purged", "curriculum_id", c.ID, "status", c.Status)
	cs.metrics.IncTransition("purge")
	return nil
}

func (cs *curriculumService) Get(ctx context.Context, curriculumID uuid.UUID) (*types.Curriculum, error) {
	if curriculumID == uuid.Nil {
		return nil, apierr.MissingField("curriculumId")
	}
	c, err := cs.load(ctx, curriculumID)
	if err != nil {
		return nil, err
	}
	if err := cs.access.Require(ctx, "curriculum", c.ParentID, c.ChildID); err != nil {
		return nil, err
	}
	return c, nil
}

func (cs *curriculumService) ListApproved(ctx context.Context, childID uuid.UUID) ([]*types.Curriculum, error) {
	if childID == uuid.Nil {
		return nil, apierr.MissingField("childId")
	}
	owners, err := childOwners(ctx, cs.userRepo, childID)
	if err != nil {
		return nil, err
	}
	if err := cs.access.Require(ctx, "child", owners...); err != nil {
		return nil, err
	}
	list, err := cs.curriculumRepo.ListApprovedForChild(ctx, nil, childID)
	if err != nil {
		return nil, apierr.Upstream("list approved curricula", err)
	}
	return list, nil
}

func (cs *curriculumService) ListForParent(ctx context.Context, parentID uuid.UUID, status string) ([]*types.Curriculum, error) {
	if parentID == uuid.Nil {
		return nil, apierr.MissingField("parentId")
	}
	status = strings.TrimSpace(status)
	switch status {
	case "", types.CurriculumPendingReview, types.CurriculumApproved:
	default:
		return nil, apierr.Client(apierr.CodeInvalidRequest, "status must be %q or %q", types.CurriculumPendingReview, types.CurriculumApproved)
	}
	if err := cs.access.Require(ctx, "parent", parentID); err != nil {
		return nil, err
	}
	list, err := cs.curriculumRepo.ListByParent(ctx, nil, parentID, status)
	if err != nil {
		return nil, apierr.Upstream("list curricula", err)
	}
	return list, nil
}
