package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yungbote/tutorbridge-backend/internal/data/repos"
	"github.com/yungbote/tutorbridge-backend/internal/data/repos/testutil"
	"github.com/yungbote/tutorbridge-backend/internal/observability"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/tutorbridge-backend/internal/platform/identity"
	"github.com/yungbote/tutorbridge-backend/internal/platform/openai"
	"github.com/yungbote/tutorbridge-backend/internal/prompts"
	"github.com/yungbote/tutorbridge-backend/internal/realtime"
	"github.com/yungbote/tutorbridge-backend/internal/relay"
)

const fractionsJSON = `{
  "title": "Frações para pequenos chefs",
  "overview": "Aprender frações cozinhando.",
  "objectives": ["reconhecer metades", "comparar frações"],
  "keyConcepts": ["numerador", "denominador"],
  "lessons": [
    {"title": "Metades", "description": "Dividir uma pizza", "goals": ["dividir em 2"], "activities": ["cortar papel"]},
    {"title": "Quartos", "description": "Dividir em 4", "goals": ["dividir em 4"], "activities": ["dobrar papel"]},
    {"title": "Comparar", "description": "Qual é maior?", "goals": ["comparar"], "activities": ["jogo"]},
    {"title": "Somar", "description": "Somar frações iguais", "goals": ["somar"], "activities": ["receita"]},
    {"title": "Revisão", "description": "Juntar tudo", "goals": ["revisar"], "activities": ["quiz"]}
  ],
  "assessment": "Quiz final com 5 perguntas.",
  "resources": "Papel, tesoura, receita de bolo."
}`

type fakeLLM struct {
	mu        sync.Mutex
	replies   []string
	err       error
	chunks    []string
	streamErr error
	calls     [][]openai.Message
}

func (f *fakeLLM) Complete(_ context.Context, msgs []openai.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msgs)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

func (f *fakeLLM) StreamComplete(_ context.Context, msgs []openai.Message, onDelta func(string)) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, msgs)
	chunks, streamErr := f.chunks, f.streamErr
	f.mu.Unlock()
	for _, c := range chunks {
		onDelta(c)
	}
	if streamErr != nil {
		return "", streamErr
	}
	return strings.Join(chunks, ""), nil
}

func (f *fakeLLM) Model() string { return "fake" }

func (f *fakeLLM) lastCall() []openai.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

type recordedEvent struct {
	userID uuid.UUID
	event  realtime.SSEEvent
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEmitter) Emit(_ context.Context, userID uuid.UUID, event realtime.SSEEvent, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{userID: userID, event: event})
}

func (r *recordingEmitter) count(userID uuid.UUID, event realtime.SSEEvent) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.userID == userID && e.event == event {
			n++
		}
	}
	return n
}

type harness struct {
	db        *gorm.DB
	llm       *fakeLLM
	idp       identity.Provider
	userRepo  repos.UserRepo
	emitter   *recordingEmitter
	metrics   *observability.Metrics
	accounts  AccountService
	curricula CurriculumService
	sessions  SessionService
}

func newHarness(t *testing.T, mode AuthMode) *harness {
	t.Helper()
	log := testutil.Logger(t)
	db := testutil.DB(t, identity.Models()...)

	idp, err := identity.NewLocalProvider(db, log, identity.Config{JWTSecret: "test-secret", BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	pack, err := prompts.Load(log, "")
	if err != nil {
		t.Fatalf("prompts: %v", err)
	}

	llm := &fakeLLM{}
	emitter := &recordingEmitter{}
	metrics := observability.New()
	notify := NewLearningNotifier(emitter)
	access := Access{Mode: mode}

	userRepo := repos.NewUserRepo(db, log)
	curriculumRepo := repos.NewCurriculumRepo(db, log)
	assignmentRepo := repos.NewChildAssignmentRepo(db, log)
	sessionRepo := repos.NewSessionRepo(db, log)
	rl := relay.New(llm, log, metrics, 5*time.Second)

	return &harness{
		db:        db,
		llm:       llm,
		idp:       idp,
		userRepo:  userRepo,
		emitter:   emitter,
		metrics:   metrics,
		accounts:  NewAccountService(log, idp, userRepo, access),
		curricula: NewCurriculumService(db, log, llm, pack, curriculumRepo, assignmentRepo, userRepo, notify, metrics, access),
		sessions:  NewSessionService(db, log, sessionRepo, curriculumRepo, userRepo, rl, pack, notify, access),
	}
}

func asCaller(ctx context.Context, uid uuid.UUID) context.Context {
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: uid})
}

// family signs up one parent and one linked child through the account service.
func (h *harness) family(t *testing.T) (parentID, childID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	p, err := h.accounts.Signup(ctx, SignupInput{Email: uuid.NewString() + "@parent.test", Password: "secret123", Role: "parent", Name: "Ana"})
	if err != nil {
		t.Fatalf("parent signup: %v", err)
	}
	c, err := h.accounts.Signup(ctx, SignupInput{Email: uuid.NewString() + "@child.test", Password: "secret123", Role: "child", Name: "Bia", InviteCode: p.InviteCode})
	if err != nil {
		t.Fatalf("child signup: %v", err)
	}
	return p.UID, c.UID
}

func drain(t *testing.T, events <-chan relay.Event) []relay.Event {
	t.Helper()
	var out []relay.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out draining chat events")
			return out
		}
	}
}
