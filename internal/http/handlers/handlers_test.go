package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/tutorbridge-backend/internal/domain"
	"github.com/yungbote/tutorbridge-backend/internal/http/response"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
	"github.com/yungbote/tutorbridge-backend/internal/platform/apierr"
	"github.com/yungbote/tutorbridge-backend/internal/platform/openai"
	"github.com/yungbote/tutorbridge-backend/internal/prompts"
	"github.com/yungbote/tutorbridge-backend/internal/relay"
	"github.com/yungbote/tutorbridge-backend/internal/services"
)

func init() { gin.SetMode(gin.TestMode) }

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

type fakeStreamer struct {
	mu     sync.Mutex
	deltas []string
	err    error
	last   []openai.Message
}

func (f *fakeStreamer) StreamComplete(_ context.Context, msgs []openai.Message, onDelta func(string)) (string, error) {
	f.mu.Lock()
	f.last = msgs
	f.mu.Unlock()
	for _, d := range f.deltas {
		onDelta(d)
	}
	if f.err != nil {
		return "", f.err
	}
	return strings.Join(f.deltas, ""), nil
}

func newStreamRouter(t *testing.T, st *fakeStreamer) *gin.Engine {
	t.Helper()
	log := mustTestLogger(t)
	pack, err := prompts.Load(log, "")
	if err != nil {
		t.Fatalf("prompts: %v", err)
	}
	h := NewStreamHandler(log, relay.New(st, log, nil, 2*time.Second), pack)
	r := gin.New()
	r.GET("/stream", h.Stream)
	return r
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) response.APIError {
	t.Helper()
	var env response.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope %q: %v", rec.Body.String(), err)
	}
	return env.Error
}

func TestStreamFramesIncrementsAndDone(t *testing.T) {
	st := &fakeStreamer{deltas: []string{"Olá", "\n", " mundo "}}
	r := newStreamRouter(t, st)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream?prompt="+url.QueryEscape("O que é 1/2?"), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: want=text/event-stream got=%q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "data: %0A\n\n") {
		t.Fatalf("newline chunk not percent-encoded: %q", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Fatalf("missing DONE sentinel: %q", body)
	}

	var buffers []string
	text, err := relay.Consume(strings.NewReader(body), func(b string) { buffers = append(buffers, b) })
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if text != "Olá\n mundo " {
		t.Fatalf("text: want=%q got=%q", "Olá\n mundo ", text)
	}
	if len(buffers) != 3 || buffers[0] != "Olá" {
		t.Fatalf("cumulative buffers: got=%q", buffers)
	}
	if len(st.last) != 2 || st.last[1].Content != "O que é 1/2?" {
		t.Fatalf("upstream messages: got=%+v", st.last)
	}
}

func TestStreamAcceptsHistory(t *testing.T) {
	st := &fakeStreamer{deltas: []string{"ok"}}
	r := newStreamRouter(t, st)

	history := `[{"sender":"Student","text":"oi"},{"sender":"LLM","text":"olá!"},{"sender":"Student","text":"e agora?"}]`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream?messages="+url.QueryEscape(history), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d", http.StatusOK, rec.Code)
	}
	if len(st.last) != 4 {
		t.Fatalf("upstream messages: want=4 got=%d", len(st.last))
	}
	if st.last[2].Role != openai.RoleAssistant {
		t.Fatalf("tutor turn role: want=%s got=%s", openai.RoleAssistant, st.last[2].Role)
	}
}

func TestStreamRejectsBeforeHeaders(t *testing.T) {
	r := newStreamRouter(t, &fakeStreamer{})

	cases := []struct {
		name  string
		query string
		code  string
	}{
		{"no input", "", apierr.CodeMissingField},
		{"blank prompt", "?prompt=%20%20", apierr.CodeMissingField},
		{"bad history", "?messages=" + url.QueryEscape("{not json"), apierr.CodeInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream"+tc.query, nil))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status: want=%d got=%d", http.StatusBadRequest, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); strings.HasPrefix(ct, "text/event-stream") {
				t.Fatalf("stream headers committed on a validation failure")
			}
			if got := decodeError(t, rec).Code; got != tc.code {
				t.Fatalf("code: want=%s got=%s", tc.code, got)
			}
		})
	}
}

func TestStreamUpstreamFailureIsInBand(t *testing.T) {
	r := newStreamRouter(t, &fakeStreamer{deltas: []string{"parcial"}, err: errors.New("provider said no")})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream?prompt=oi", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d", http.StatusOK, rec.Code)
	}
	text, err := relay.Consume(strings.NewReader(rec.Body.String()), nil)
	var se *relay.StreamError
	if !errors.As(err, &se) {
		t.Fatalf("want StreamError got=%v (body %q)", err, rec.Body.String())
	}
	if text != "parcial" {
		t.Fatalf("partial text: want=parcial got=%q", text)
	}
	if strings.Contains(rec.Body.String(), "[DONE]") {
		t.Fatalf("both sentinels written: %q", rec.Body.String())
	}
}

// fakeSessions records what the handler passed through.
type fakeSessions struct {
	session  *types.Session
	created  bool
	err      error
	update   services.ProgressUpdate
	events   []relay.Event
	turnErr  error
	turnArgs []string
}

func (f *fakeSessions) StartOrFetch(_ context.Context, in services.StartSessionInput) (*types.Session, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	s := *f.session
	s.ChildID, s.CurriculumID, s.SubjectName = in.ChildID, in.CurriculumID, in.SubjectName
	return &s, f.created, nil
}

func (f *fakeSessions) UpdateProgress(_ context.Context, upd services.ProgressUpdate) error {
	f.update = upd
	return f.err
}

func (f *fakeSessions) Get(_ context.Context, id uuid.UUID) (*types.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func (f *fakeSessions) ChatTurn(_ context.Context, sessionID uuid.UUID, message string) (<-chan relay.Event, error) {
	f.turnArgs = []string{sessionID.String(), message}
	if f.turnErr != nil {
		return nil, f.turnErr
	}
	out := make(chan relay.Event, len(f.events))
	for _, ev := range f.events {
		out <- ev
	}
	close(out)
	return out, nil
}

func newSessionRouter(t *testing.T, svc *fakeSessions) *gin.Engine {
	t.Helper()
	h := NewSessionHandler(mustTestLogger(t), svc)
	r := gin.New()
	r.POST("/api/subject/session", h.Start)
	r.POST("/api/subject/progress", h.Progress)
	r.GET("/api/subject/session/:id", h.Get)
	r.GET("/api/subject/chat/stream", h.ChatStream)
	return r
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSessionStartStatusReflectsCreation(t *testing.T) {
	childID, curriculumID := uuid.New(), uuid.New()
	body := `{"childId":"` + childID.String() + `","curriculumId":"` + curriculumID.String() + `","subjectName":"Frações"}`

	for _, tc := range []struct {
		created bool
		status  int
	}{{true, http.StatusCreated}, {false, http.StatusOK}} {
		svc := &fakeSessions{session: &types.Session{ID: uuid.New(), Status: types.SessionActive}, created: tc.created}
		rec := postJSON(newSessionRouter(t, svc), "/api/subject/session", body)
		if rec.Code != tc.status {
			t.Fatalf("created=%v status: want=%d got=%d", tc.created, tc.status, rec.Code)
		}
		var got map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got["sessionId"] != svc.session.ID.String() {
			t.Fatalf("sessionId: want=%s got=%v", svc.session.ID, got["sessionId"])
		}
		if got["subjectName"] != "Frações" {
			t.Fatalf("subjectName: want=Frações got=%v", got["subjectName"])
		}
	}
}

func TestSessionStartRequiresIDs(t *testing.T) {
	svc := &fakeSessions{session: &types.Session{}}
	rec := postJSON(newSessionRouter(t, svc), "/api/subject/session", `{"curriculumId":"`+uuid.NewString()+`"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: want=%d got=%d", http.StatusBadRequest, rec.Code)
	}
	if got := decodeError(t, rec); got.Code != apierr.CodeMissingField || !strings.Contains(got.Message, "childId") {
		t.Fatalf("error: got=%+v", got)
	}
}

func TestProgressPassesOnlyPresentFields(t *testing.T) {
	svc := &fakeSessions{}
	sessionID := uuid.New()
	rec := postJSON(newSessionRouter(t, svc), "/api/subject/progress",
		`{"sessionId":"`+sessionID.String()+`","completedLessons":[2,0],"timeSpent":30}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d body=%s", http.StatusOK, rec.Code, rec.Body.String())
	}
	upd := svc.update
	if upd.SessionID != sessionID {
		t.Fatalf("session id: want=%s got=%s", sessionID, upd.SessionID)
	}
	if upd.CurrentLesson != nil || upd.ChatHistory != nil {
		t.Fatalf("absent fields must stay nil: %+v", upd)
	}
	if upd.CompletedLessons == nil || len(*upd.CompletedLessons) != 2 {
		t.Fatalf("completedLessons: got=%v", upd.CompletedLessons)
	}
	if upd.TimeSpentSeconds == nil || *upd.TimeSpentSeconds != 30 {
		t.Fatalf("timeSpent: got=%v", upd.TimeSpentSeconds)
	}
}

func TestProgressErrors(t *testing.T) {
	cases := []struct {
		name   string
		svcErr error
		body   string
		status int
	}{
		{"negative time", nil, `{"sessionId":"` + uuid.NewString() + `","timeSpent":-5}`, http.StatusBadRequest},
		{"bad json", nil, `{"sessionId":`, http.StatusBadRequest},
		{"unknown session", apierr.NotFound("session", "x"), `{"sessionId":"` + uuid.NewString() + `","currentLesson":1}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(newSessionRouter(t, &fakeSessions{err: tc.svcErr}), "/api/subject/progress", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status: want=%d got=%d", tc.status, rec.Code)
			}
		})
	}
}

func TestChatStreamValidatesBeforeStreaming(t *testing.T) {
	svc := &fakeSessions{turnErr: apierr.Forbidden("session belongs to another child")}
	r := newSessionRouter(t, svc)

	cases := []struct {
		name   string
		query  string
		status int
	}{
		{"missing session", "?message=oi", http.StatusBadRequest},
		{"missing message", "?sessionId=" + uuid.NewString(), http.StatusBadRequest},
		{"service refusal", "?sessionId=" + uuid.NewString() + "&message=oi", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/subject/chat/stream"+tc.query, nil))
			if rec.Code != tc.status {
				t.Fatalf("status: want=%d got=%d", tc.status, rec.Code)
			}
			if strings.HasPrefix(rec.Header().Get("Content-Type"), "text/event-stream") {
				t.Fatalf("stream headers committed")
			}
		})
	}
}

func TestChatStreamForwardsTurn(t *testing.T) {
	svc := &fakeSessions{events: []relay.Event{
		{Kind: relay.KindChunk, Text: "Metade "},
		{Kind: relay.KindChunk, Text: "é 1/2."},
		{Kind: relay.KindDone, Text: "Metade é 1/2."},
	}}
	sessionID := uuid.New()
	rec := httptest.NewRecorder()
	newSessionRouter(t, svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/subject/chat/stream?sessionId="+sessionID.String()+"&message="+url.QueryEscape("  o que é metade? "), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d", http.StatusOK, rec.Code)
	}
	text, err := relay.Consume(strings.NewReader(rec.Body.String()), nil)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if text != "Metade é 1/2." {
		t.Fatalf("text: want=%q got=%q", "Metade é 1/2.", text)
	}
	if svc.turnArgs[0] != sessionID.String() || svc.turnArgs[1] != "o que é metade?" {
		t.Fatalf("turn args: got=%q", svc.turnArgs)
	}
}

type fakeCurricula struct {
	services.CurriculumService
	generated *types.Curriculum
	err       error
	gotStatus string
}

func (f *fakeCurricula) Generate(_ context.Context, in services.GenerateCurriculumInput) (*types.Curriculum, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := *f.generated
	c.ParentID, c.ChildID, c.Subject, c.AgeRange = in.ParentID, in.ChildID, in.Subject, in.AgeRange
	return &c, nil
}

func (f *fakeCurricula) ListForParent(_ context.Context, _ uuid.UUID, status string) ([]*types.Curriculum, error) {
	f.gotStatus = status
	return []*types.Curriculum{}, f.err
}

func TestGenerateReturnsFlattenedContent(t *testing.T) {
	cur := &types.Curriculum{ID: uuid.New(), Status: types.CurriculumPendingReview}
	cur.Title = "Frações"
	cur.Lessons = []types.Lesson{{Title: "Metades"}}
	h := NewCurriculumHandler(mustTestLogger(t), &fakeCurricula{generated: cur})
	r := gin.New()
	r.POST("/api/generateCurriculum", h.Generate)

	rec := postJSON(r, "/api/generateCurriculum",
		`{"parentId":"`+uuid.NewString()+`","childId":"`+uuid.NewString()+`","subject":"Frações","ageRange":"8-10"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d body=%s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["curriculumId"] != cur.ID.String() || got["title"] != "Frações" || got["status"] != types.CurriculumPendingReview {
		t.Fatalf("payload: got=%v", got)
	}
	if lessons, ok := got["lessons"].([]any); !ok || len(lessons) != 1 {
		t.Fatalf("lessons: got=%v", got["lessons"])
	}
}

func TestGenerateParseFailureCarriesRaw(t *testing.T) {
	h := NewCurriculumHandler(mustTestLogger(t), &fakeCurricula{err: apierr.Parse(errors.New("invalid character"), "sorry, no JSON today")})
	r := gin.New()
	r.POST("/api/generateCurriculum", h.Generate)

	rec := postJSON(r, "/api/generateCurriculum",
		`{"parentId":"`+uuid.NewString()+`","childId":"`+uuid.NewString()+`","subject":"x","ageRange":"8"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: want=%d got=%d", http.StatusInternalServerError, rec.Code)
	}
	got := decodeError(t, rec)
	if got.Code != apierr.CodeParse || got.Raw != "sorry, no JSON today" {
		t.Fatalf("error: got=%+v", got)
	}
}

func TestListForParentPassesStatus(t *testing.T) {
	svc := &fakeCurricula{}
	h := NewCurriculumHandler(mustTestLogger(t), svc)
	r := gin.New()
	r.GET("/api/parent/curricula", h.ListForParent)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/parent/curricula?parentId="+uuid.NewString()+"&status=approved", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d", http.StatusOK, rec.Code)
	}
	if svc.gotStatus != types.CurriculumApproved {
		t.Fatalf("status filter: want=%s got=%q", types.CurriculumApproved, svc.gotStatus)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"curricula":[]}` {
		t.Fatalf("body: got=%s", rec.Body.String())
	}
}

func TestPurgeRejectsMalformedID(t *testing.T) {
	h := NewCurriculumHandler(mustTestLogger(t), &fakeCurricula{})
	r := gin.New()
	r.DELETE("/api/admin/curricula/:id", h.Purge)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/admin/curricula/not-a-uuid", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: want=%d got=%d", http.StatusBadRequest, rec.Code)
	}
	if got := decodeError(t, rec).Code; got != apierr.CodeInvalidRequest {
		t.Fatalf("code: want=%s got=%s", apierr.CodeInvalidRequest, got)
	}
}
