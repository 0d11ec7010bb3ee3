package services

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"

	types "github.com/yungbote/tutorbridge-backend/internal/domain"
	"github.com/yungbote/tutorbridge-backend/internal/platform/apierr"
	"github.com/yungbote/tutorbridge-backend/internal/platform/openai"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/pointers"
	"github.com/yungbote/tutorbridge-backend/internal/relay"
)

func TestStartOrFetchIsIdempotent(t *testing.T) {
	h := newHarness(t, AuthAdvisory)
	ctx := context.Background()
	in := StartSessionInput{ChildID: uuid.New(), CurriculumID: uuid.New(), SubjectName: "Frações"}

	first, created, err := h.sessions.StartOrFetch(ctx, in)
	if err != nil || !created {
		t.Fatalf("first StartOrFetch: created=%v err=%v", created, err)
	}
	if first.CurrentLesson != 0 || len(first.CompletedLessons) != 0 || len(first.ChatHistory) != 0 || first.Status != types.SessionActive {
		t.Fatalf("new session: %+v", first)
	}
	second, created, err := h.sessions.StartOrFetch(ctx, in)
	if err != nil || created {
		t.Fatalf("second StartOrFetch: created=%v err=%v", created, err)
	}
	if second.ID != first.ID {
		t.Fatalf("session id: want=%s got=%s", first.ID, second.ID)
	}
	if n := countRows(t, h, &types.Session{}); n != 1 {
		t.Fatalf("sessions: want=1 got=%d", n)
	}

	_, _, err = h.sessions.StartOrFetch(ctx, StartSessionInput{ChildID: in.ChildID, CurriculumID: in.CurriculumID})
	if ae := apierr.From(err); ae == nil || ae.Code != apierr.CodeMissingField {
		t.Fatalf("missing subject: got=%v", err)
	}
}

func TestUpdateProgressPartialMerge(t *testing.T) {
	h := newHarness(t, AuthAdvisory)
	ctx := context.Background()
	s, _, err := h.sessions.StartOrFetch(ctx, StartSessionInput{ChildID: uuid.New(), CurriculumID: uuid.New(), SubjectName: "Frações"})
	if err != nil {
		t.Fatalf("StartOrFetch: %v", err)
	}

	history := []types.ChatMessage{
		{Sender: types.SenderStudent, Text: "oi"},
		{Sender: types.SenderTutor, Text: "Olá!"},
		{Sender: types.SenderTutor, Text: "Ol", Loading: true},
	}
	completed := []int{2, 0, 2}
	if err := h.sessions.UpdateProgress(ctx, ProgressUpdate{SessionID: s.ID, CompletedLessons: &completed, ChatHistory: &history}); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := h.sessions.UpdateProgress(ctx, ProgressUpdate{SessionID: s.ID, CurrentLesson: pointers.Ptr(3)}); err != nil {
		t.Fatalf("UpdateProgress (lesson only): %v", err)
	}

	got, err := h.sessions.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CurrentLesson != 3 {
		t.Fatalf("currentLesson: want=3 got=%d", got.CurrentLesson)
	}
	if !reflect.DeepEqual([]int(got.CompletedLessons), []int{0, 2}) {
		t.Fatalf("completedLessons: want=[0 2] got=%v", got.CompletedLessons)
	}
	wantHistory := []types.ChatMessage{
		{Sender: types.SenderStudent, Text: "oi"},
		{Sender: types.SenderTutor, Text: "Olá!"},
	}
	if !reflect.DeepEqual([]types.ChatMessage(got.ChatHistory), wantHistory) {
		t.Fatalf("chatHistory: want=%v got=%v", wantHistory, got.ChatHistory)
	}

	if err := h.sessions.UpdateProgress(ctx, ProgressUpdate{SessionID: s.ID}); err != nil {
		t.Fatalf("empty update: %v", err)
	}
	err = h.sessions.UpdateProgress(ctx, ProgressUpdate{SessionID: uuid.New(), CurrentLesson: pointers.Ptr(1)})
	if ae := apierr.From(err); ae == nil || ae.Status != http.StatusNotFound {
		t.Fatalf("unknown session: want 404 got=%v", err)
	}
}

func TestUpdateProgressRollsUpToChildProfile(t *testing.T) {
	h := newHarness(t, AuthAdvisory)
	ctx := context.Background()
	parentID, childID := h.family(t)
	c := generateFractions(t, h, ctx, parentID, childID)

	s, _, err := h.sessions.StartOrFetch(ctx, StartSessionInput{ChildID: childID, CurriculumID: c.ID, SubjectName: "Frações"})
	if err != nil {
		t.Fatalf("StartOrFetch: %v", err)
	}
	completed := []int{0, 1}
	if err := h.sessions.UpdateProgress(ctx, ProgressUpdate{SessionID: s.ID, CompletedLessons: &completed, TimeSpentSeconds: pointers.Ptr(120)}); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	kids, err := h.accounts.GetChildren(ctx, parentID)
	if err != nil || len(kids) != 1 {
		t.Fatalf("GetChildren: %v %v", kids, err)
	}
	if kids[0].Progress != 40 || kids[0].TimeSpent != 120 {
		t.Fatalf("rolled-up progress: want=40/120 got=%d/%d", kids[0].Progress, kids[0].TimeSpent)
	}
}

func TestUpdateProgressCompletesSession(t *testing.T) {
	h := newHarness(t, AuthAdvisory)
	ctx := context.Background()
	parentID, childID := h.family(t)
	c := generateFractions(t, h, ctx, parentID, childID)

	s, _, err := h.sessions.StartOrFetch(ctx, StartSessionInput{ChildID: childID, CurriculumID: c.ID, SubjectName: "Frações"})
	if err != nil {
		t.Fatalf("StartOrFetch: %v", err)
	}
	partial := []int{0, 1, 2, 3, 7}
	if err := h.sessions.UpdateProgress(ctx, ProgressUpdate{SessionID: s.ID, CompletedLessons: &partial}); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got, err := h.sessions.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != types.SessionActive {
		t.Fatalf("partial status: want=%s got=%s", types.SessionActive, got.Status)
	}
	kids, err := h.accounts.GetChildren(ctx, parentID)
	if err != nil || len(kids) != 1 || kids[0].Progress != 80 {
		t.Fatalf("partial progress ignores unknown lessons: want=80 got=%v err=%v", kids, err)
	}

	all := []int{4, 3, 2, 1, 0}
	if err := h.sessions.UpdateProgress(ctx, ProgressUpdate{SessionID: s.ID, CompletedLessons: &all}); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got, err = h.sessions.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != types.SessionCompleted {
		t.Fatalf("final status: want=%s got=%s", types.SessionCompleted, got.Status)
	}
	kids, err = h.accounts.GetChildren(ctx, parentID)
	if err != nil || len(kids) != 1 || kids[0].Progress != 100 {
		t.Fatalf("rolled-up progress: want=100 got=%v err=%v", kids, err)
	}
}

func TestChatTurnPersistsOnlyCompletedReplies(t *testing.T) {
	h := newHarness(t, AuthAdvisory)
	ctx := context.Background()
	s, _, err := h.sessions.StartOrFetch(ctx, StartSessionInput{ChildID: uuid.New(), CurriculumID: uuid.New(), SubjectName: "Frações"})
	if err != nil {
		t.Fatalf("StartOrFetch: %v", err)
	}

	h.llm.streamErr = errors.New("provider exploded")
	h.llm.chunks = []string{"Meta"}
	events, err := h.sessions.ChatTurn(ctx, s.ID, "O que é um meio?")
	if err != nil {
		t.Fatalf("ChatTurn: %v", err)
	}
	got := drain(t, events)
	if last := got[len(got)-1]; last.Kind != relay.KindError {
		t.Fatalf("want error terminal got=%+v", last)
	}
	after, _ := h.sessions.Get(ctx, s.ID)
	if len(after.ChatHistory) != 0 {
		t.Fatalf("failed turn must not persist: %v", after.ChatHistory)
	}

	h.llm.streamErr = nil
	h.llm.chunks = []string{"Um meio ", "é metade."}
	events, err = h.sessions.ChatTurn(ctx, s.ID, "O que é um meio?")
	if err != nil {
		t.Fatalf("ChatTurn: %v", err)
	}
	got = drain(t, events)
	if len(got) != 3 || got[2].Kind != relay.KindDone || got[2].Text != "Um meio é metade." {
		t.Fatalf("events: %+v", got)
	}
	after, _ = h.sessions.Get(ctx, s.ID)
	want := []types.ChatMessage{
		{Sender: types.SenderStudent, Text: "O que é um meio?"},
		{Sender: types.SenderTutor, Text: "Um meio é metade."},
	}
	if !reflect.DeepEqual([]types.ChatMessage(after.ChatHistory), want) {
		t.Fatalf("transcript: want=%v got=%v", want, after.ChatHistory)
	}

	if _, err := h.sessions.ChatTurn(ctx, uuid.New(), "oi"); apierr.From(err).Status != http.StatusNotFound {
		t.Fatalf("unknown session: want 404 got=%v", err)
	}
	if _, err := h.sessions.ChatTurn(ctx, s.ID, " "); apierr.From(err).Code != apierr.CodeMissingField {
		t.Fatalf("empty message: got=%v", err)
	}
}

// Mirrors the full parent/child journey for one subject.
func TestFractionsEndToEnd(t *testing.T) {
	h := newHarness(t, AuthEnforce)
	ctx := context.Background()
	parentID, childID := h.family(t)
	asParent := asCaller(ctx, parentID)
	asChild := asCaller(ctx, childID)

	c := generateFractions(t, h, asParent, parentID, childID)
	if c.Status != types.CurriculumPendingReview || len(c.Lessons) < 4 || len(c.Lessons) > 8 {
		t.Fatalf("draft: status=%s lessons=%d", c.Status, len(c.Lessons))
	}
	if _, err := h.curricula.Approve(asParent, c.ID, parentID, childID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	approved, err := h.curricula.ListApproved(asChild, childID)
	if err != nil || len(approved) != 1 || approved[0].ID != c.ID {
		t.Fatalf("approved list: %v %v", approved, err)
	}

	s, created, err := h.sessions.StartOrFetch(asChild, StartSessionInput{ChildID: childID, CurriculumID: c.ID, SubjectName: c.Subject})
	if err != nil || !created {
		t.Fatalf("StartOrFetch: created=%v err=%v", created, err)
	}
	if s.CurrentLesson != 0 || len(s.ChatHistory) != 0 {
		t.Fatalf("fresh session: %+v", s)
	}

	h.llm.chunks = []string{"Vamos ", "dividir ", "uma pizza!"}
	events, err := h.sessions.ChatTurn(asChild, s.ID, "Oi! Quero aprender frações.")
	if err != nil {
		t.Fatalf("ChatTurn: %v", err)
	}
	drain(t, events)

	sent := h.llm.lastCall()
	if sent[0].Role != openai.RoleSystem || !containsAll(sent[0].Content, "tutor", "Metades") {
		t.Fatalf("tutor context: %q", sent[0].Content)
	}

	final, err := h.sessions.Get(asChild, s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(final.ChatHistory) != 2 {
		t.Fatalf("chatHistory: want=2 got=%d", len(final.ChatHistory))
	}

	if _, err := h.sessions.Get(asCaller(ctx, uuid.New()), s.ID); apierr.From(err).Status != http.StatusForbidden {
		t.Fatalf("stranger reads session: want 403 got=%v", err)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
