package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	types "github.com/yungbote/tutorbridge-backend/internal/domain"
	"github.com/yungbote/tutorbridge-backend/internal/observability"
	"github.com/yungbote/tutorbridge-backend/internal/platform/apierr"
	"github.com/yungbote/tutorbridge-backend/internal/platform/openai"
	"github.com/yungbote/tutorbridge-backend/internal/prompts"
)

// Generate drafts a curriculum with one completion and stores it as pending_review.
// Repeated calls create independent drafts.
func (cs *curriculumService) Generate(ctx context.Context, in GenerateCurriculumInput) (*types.Curriculum, error) {
	subject := strings.TrimSpace(in.Subject)
	ageRange := strings.TrimSpace(in.AgeRange)
	switch {
	case in.ParentID == uuid.Nil:
		return nil, apierr.MissingField("parentId")
	case in.ChildID == uuid.Nil:
		return nil, apierr.MissingField("childId")
	case subject == "":
		return nil, apierr.MissingField("subject")
	case ageRange == "":
		return nil, apierr.MissingField("ageRange")
	}
	if err := cs.access.RequireGuardian(ctx, cs.userRepo, in.ParentID, in.ChildID); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "curriculum.generate", attribute.String("curriculum.subject", subject))
	defer span.End()

	prompt, err := cs.prompts.Generate(prompts.GenerateData{Subject: subject, AgeRange: ageRange})
	if err != nil {
		return nil, apierr.Upstream("render curriculum prompt", err)
	}
	content, err := cs.completeCurriculum(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	c := &types.Curriculum{
		ID:                uuid.New(),
		ParentID:          in.ParentID,
		ChildID:           in.ChildID,
		Subject:           subject,
		AgeRange:          ageRange,
		CurriculumContent: *content,
		Status:            types.CurriculumPendingReview,
	}
	if _, err := cs.curriculumRepo.Create(ctx, nil, []*types.Curriculum{c}); err != nil {
		return nil, apierr.Upstream("store curriculum", err)
	}

	cs.log.Info("Curriculum generated", "curriculum_id", c.ID, "child_id", c.ChildID, "lessons", len(c.Lessons))
	cs.metrics.IncTransition("generate")
	cs.notify.CurriculumGenerated(ctx, c)
	return c, nil
}

// completeCurriculum runs one non-streamed completion and parses it. Parse
// failures carry the raw model text and are not retried.
func (cs *curriculumService) completeCurriculum(ctx context.Context, prompt string) (*types.CurriculumContent, error) {
	raw, err := cs.llm.Complete(ctx, []openai.Message{
		{Role: openai.RoleSystem, Content: cs.prompts.CurriculumSystem()},
		{Role: openai.RoleUser, Content: prompt},
	})
	if err != nil {
		return nil, apierr.Upstream("text generation", err)
	}
	content, err := parseCurriculum(raw)
	if err != nil {
		cs.log.Warn("Curriculum output rejected", "error", err, "raw_len", len(raw))
		return nil, apierr.Parse(err, raw)
	}
	if !lessonCountInRange(len(content.Lessons)) {
		cs.log.Warn("Curriculum lesson count outside prompt range", "lessons", len(content.Lessons), "min", minLessons, "max", maxLessons)
	}
	return content, nil
}
