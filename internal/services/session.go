package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/tutorbridge-backend/internal/data/repos"
	types "github.com/yungbote/tutorbridge-backend/internal/domain"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
	"github.com/yungbote/tutorbridge-backend/internal/platform/apierr"
	"github.com/yungbote/tutorbridge-backend/internal/prompts"
	"github.com/yungbote/tutorbridge-backend/internal/relay"
)

type StartSessionInput struct {
	ChildID      uuid.UUID
	CurriculumID uuid.UUID
	SubjectName  string
}

// ProgressUpdate is a partial merge: nil fields leave the stored value alone.
type ProgressUpdate struct {
	SessionID        uuid.UUID
	CurrentLesson    *int
	CompletedLessons *[]int
	ChatHistory      *[]types.ChatMessage
	// TimeSpentSeconds is added to the child's running total.
	TimeSpentSeconds *int
}

type SessionService interface {
	StartOrFetch(ctx context.Context, in StartSessionInput) (session *types.Session, created bool, err error)
	UpdateProgress(ctx context.Context, upd ProgressUpdate) error
	Get(ctx context.Context, sessionID uuid.UUID) (*types.Session, error)
	ChatTurn(ctx context.Context, sessionID uuid.UUID, message string) (<-chan relay.Event, error)
}

type sessionService struct {
	db             *gorm.DB
	log            *logger.Logger
	sessionRepo    repos.SessionRepo
	curriculumRepo repos.CurriculumRepo
	userRepo       repos.UserRepo
	relay          *relay.Relay
	prompts        *prompts.Pack
	notify         LearningNotifier
	access         Access
}

func NewSessionService(
	db *gorm.DB,
	log *logger.Logger,
	sessionRepo repos.SessionRepo,
	curriculumRepo repos.CurriculumRepo,
	userRepo repos.UserRepo,
	rl *relay.Relay,
	pack *prompts.Pack,
	notify LearningNotifier,
	access Access,
) SessionService {
	if notify == nil {
		notify = NewLearningNotifier(nil)
	}
	return &sessionService{
		db:             db,
		log:            log.With("service", "SessionService"),
		sessionRepo:    sessionRepo,
		curriculumRepo: curriculumRepo,
		userRepo:       userRepo,
		relay:          rl,
		prompts:        pack,
		notify:         notify,
		access:         access,
	}
}

func (ss *sessionService) StartOrFetch(ctx context.Context, in StartSessionInput) (*types.Session, bool, error) {
	subject := strings.TrimSpace(in.SubjectName)
	switch {
	case in.ChildID == uuid.Nil:
		return nil, false, apierr.MissingField("childId")
	case in.CurriculumID == uuid.Nil:
		return nil, false, apierr.MissingField("curriculumId")
	case subject == "":
		return nil, false, apierr.MissingField("subjectName")
	}
	owners, err := childOwners(ctx, ss.userRepo, in.ChildID)
	if err != nil {
		return nil, false, err
	}
	if err := ss.access.Require(ctx, "session", owners...); err != nil {
		return nil, false, err
	}

	existing, err := ss.sessionRepo.GetByChildAndCurriculum(ctx, nil, in.ChildID, in.CurriculumID)
	if err != nil {
		return nil, false, apierr.Upstream("lookup session", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	s := &types.Session{
		ID:               uuid.New(),
		ChildID:          in.ChildID,
		CurriculumID:     in.CurriculumID,
		SubjectName:      subject,
		StartedAt:        time.Now().UTC(),
		CurrentLesson:    0,
		CompletedLessons: []int{},
		ChatHistory:      []types.ChatMessage{},
		Status:           types.SessionActive,
	}
	created, err := ss.sessionRepo.CreateIfAbsent(ctx, nil, s)
	if err != nil {
		return nil, false, apierr.Upstream("create session", err)
	}
	if !created {
		// Lost a race with a concurrent first visit; return the winner.
		winner, err := ss.sessionRepo.GetByChildAndCurriculum(ctx, nil, in.ChildID, in.CurriculumID)
		if err != nil {
			return nil, false, apierr.Upstream("lookup session", err)
		}
		if winner == nil {
			return nil, false, apierr.Upstream("lookup session", gorm.ErrRecordNotFound)
		}
		return winner, false, nil
	}

	ss.log.Info("Session started", "session_id", s.ID, "child_id", s.ChildID)
	ss.notify.SessionStarted(ctx, s)
	return s, true, nil
}

func (ss *sessionService) load(ctx context.Context, sessionID uuid.UUID) (*types.Session, error) {
	s, err := ss.sessionRepo.GetByID(ctx, nil, sessionID)
	if err != nil {
		return nil, apierr.Upstream("load session", err)
	}
	if s == nil {
		return nil, apierr.NotFound("session", sessionID)
	}
	owners, err := childOwners(ctx, ss.userRepo, s.ChildID)
	if err != nil {
		return nil, err
	}
	if err := ss.access.Require(ctx, "session", owners...); err != nil {
		return nil, err
	}
	return s, nil
}

func (ss *sessionService) Get(ctx context.Context, sessionID uuid.UUID) (*types.Session, error) {
	if sessionID == uuid.Nil {
		return nil, apierr.MissingField("sessionId")
	}
	return ss.load(ctx, sessionID)
}

// normalizeCompleted returns the lesson indices as a sorted set.
func normalizeCompleted(in []int) []int {
	out := make([]int, 0, len(in))
	seen := make(map[int]struct{}, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// persistableHistory drops in-flight placeholders; only final text is stored.
func persistableHistory(in []types.ChatMessage) []types.ChatMessage {
	out := make([]types.ChatMessage, 0, len(in))
	for _, m := range in {
		if m.Loading {
			continue
		}
		out = append(out, types.ChatMessage{Sender: m.Sender, Text: m.Text})
	}
	return out
}

func (ss *sessionService) UpdateProgress(ctx context.Context, upd ProgressUpdate) error {
	if upd.SessionID == uuid.Nil {
		return apierr.MissingField("sessionId")
	}
	s, err := ss.load(ctx, upd.SessionID)
	if err != nil {
		return err
	}

	updates := map[string]any{}
	if upd.CurrentLesson != nil {
		updates["current_lesson"] = *upd.CurrentLesson
	}
	var completed []int
	lessonCount := 0
	if upd.CompletedLessons != nil {
		completed = normalizeCompleted(*upd.CompletedLessons)
		updates["completed_lessons"] = datatypes.JSONSlice[int](completed)
		lessonCount = ss.lessonCount(ctx, s.CurriculumID)
		if allLessonsDone(completed, lessonCount) {
			updates["status"] = types.SessionCompleted
		}
	}
	if upd.ChatHistory != nil {
		updates["chat_history"] = datatypes.JSONSlice[types.ChatMessage](persistableHistory(*upd.ChatHistory))
	}

	n, err := ss.sessionRepo.UpdateFields(ctx, nil, s.ID, updates)
	if err != nil {
		return apierr.Upstream("update session", err)
	}
	if n == 0 {
		return apierr.NotFound("session", s.ID)
	}

	if upd.CompletedLessons != nil || upd.TimeSpentSeconds != nil {
		if err := ss.rollUpProgress(ctx, s, completed, lessonCount, upd); err != nil {
			ss.log.Warn("Child progress roll-up failed", "session_id", s.ID, "error", err)
		}
	}
	return nil
}

// lessonCount returns 0 when the curriculum cannot be read; progress is then left alone.
func (ss *sessionService) lessonCount(ctx context.Context, curriculumID uuid.UUID) int {
	c, err := ss.curriculumRepo.GetByIDUnscoped(ctx, nil, curriculumID)
	if err != nil {
		ss.log.Warn("Curriculum lookup for progress failed", "curriculum_id", curriculumID, "error", err)
		return 0
	}
	if c == nil {
		return 0
	}
	return len(c.Lessons)
}

// lessonsDone counts the entries of the set completed that index a real lesson.
func lessonsDone(completed []int, lessons int) int {
	n := 0
	for _, v := range completed {
		if v >= 0 && v < lessons {
			n++
		}
	}
	return n
}

func allLessonsDone(completed []int, lessons int) bool {
	return lessons > 0 && lessonsDone(completed, lessons) == lessons
}

// rollUpProgress refreshes the denormalized progress fields on the child profile.
// Progress is the share of this session's curriculum completed, so the latest
// active subject wins.
func (ss *sessionService) rollUpProgress(ctx context.Context, s *types.Session, completed []int, lessons int, upd ProgressUpdate) error {
	child, err := ss.userRepo.GetByID(ctx, nil, s.ChildID)
	if err != nil || child == nil {
		return err
	}
	progress := child.Progress
	if upd.CompletedLessons != nil && lessons > 0 {
		progress = lessonsDone(completed, lessons) * 100 / lessons
	}
	addSeconds := 0
	if upd.TimeSpentSeconds != nil && *upd.TimeSpentSeconds > 0 {
		addSeconds = *upd.TimeSpentSeconds
	}
	return ss.userRepo.UpdateProgress(ctx, nil, s.ChildID, progress, addSeconds)
}
