package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func newTestClient(t *testing.T, baseURL, apiKey string) Client {
	t.Helper()
	c, err := NewClient(mustTestLogger(t), nil, Config{APIKey: apiKey, BaseURL: baseURL, Model: "test-model"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestCompleteReturnsOutputText(t *testing.T) {
	var gotReq responsesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("path: want=/v1/responses got=%s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization: want=%q got=%q", "Bearer sk-test", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"{\"title\":\"x\"}"}]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "sk-test")
	text, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != `{"title":"x"}` {
		t.Fatalf("Complete: unexpected text %q", text)
	}
	if gotReq.Model != "test-model" || gotReq.Stream {
		t.Fatalf("request: unexpected %+v", gotReq)
	}
	if len(gotReq.Input) != 2 || gotReq.Input[0].Role != RoleSystem || gotReq.Input[1].Content != "hi" {
		t.Fatalf("request input: unexpected %+v", gotReq.Input)
	}
}

func TestCompleteMissingKey(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", "")
	if _, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("Complete: want=%v got=%v", ErrMissingAPIKey, err)
	}
	if _, err := c.StreamComplete(context.Background(), nil, nil); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("StreamComplete: want=%v got=%v", ErrMissingAPIKey, err)
	}
}

func TestCompleteProviderErrorNotRetriedByDefault(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "sk-test")
	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	var httpErr *openAIHTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("Complete: expected http 500 error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
}

func writeSSE(w http.ResponseWriter, event string, payload string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func TestStreamCompleteForwardsDeltasInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req responsesRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Errorf("stream: expected true")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w, "response.created", `{"type":"response.created"}`)
		for _, d := range []string{"A", "B", "C"} {
			writeSSE(w, "response.output_text.delta", fmt.Sprintf(`{"type":"response.output_text.delta","delta":%q}`, d))
		}
		writeSSE(w, "response.completed", `{"type":"response.completed"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "sk-test")
	var deltas []string
	full, err := c.StreamComplete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("StreamComplete: %v", err)
	}
	if strings.Join(deltas, ",") != "A,B,C" {
		t.Fatalf("deltas: want=A,B,C got=%v", deltas)
	}
	if full != "ABC" {
		t.Fatalf("full: want=ABC got=%q", full)
	}
}

func TestStreamCompleteErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w, "response.output_text.delta", `{"type":"response.output_text.delta","delta":"A"}`)
		writeSSE(w, "error", `{"type":"error","message":"rate limited"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "sk-test")
	_, err := c.StreamComplete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("StreamComplete: expected stream error, got %v", err)
	}
}

func TestStreamCompleteCancelledContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w, "response.output_text.delta", `{"type":"response.output_text.delta","delta":"A"}`)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL, "sk-test")
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan error, 1)
	go func() {
		_, err := c.StreamComplete(ctx, []Message{{Role: RoleUser, Content: "x"}}, func(string) { cancel() })
		got <- err
	}()

	select {
	case err := <-got:
		if err == nil {
			t.Fatalf("StreamComplete: expected cancellation error")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("StreamComplete: did not return after cancel")
	}
}

func TestStreamSSEFlushesTrailingEvent(t *testing.T) {
	var events []string
	err := streamSSE(strings.NewReader(": ping\n\nevent: a\ndata: one\ndata: two\n\ndata: tail"), func(ev, data string) error {
		events = append(events, ev+"="+data)
		return nil
	})
	if err != nil {
		t.Fatalf("streamSSE: %v", err)
	}
	if len(events) != 2 || events[0] != "a=one\ntwo" || events[1] != "=tail" {
		t.Fatalf("streamSSE: unexpected events %q", events)
	}
}
