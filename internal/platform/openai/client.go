package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/tutorbridge-backend/internal/observability"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/httpx"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	responsesPath = "/v1/responses"
)

// ErrMissingAPIKey is returned by every call when no credential is configured.
// The service still boots without one; the failure surfaces per request.
var ErrMissingAPIKey = errors.New("missing OPENAI_API_KEY")

type Message struct {
	Role    string
	Content string
}

// Client is the text-generation provider capability.
type Client interface {
	// Complete runs one non-streamed completion and returns the full text.
	Complete(ctx context.Context, msgs []Message) (string, error)
	// StreamComplete forwards each output increment to onDelta in arrival order
	// and returns the concatenated text once the provider finishes.
	StreamComplete(ctx context.Context, msgs []Message, onDelta func(delta string)) (string, error)
	Model() string
}

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	Temperature *float64
}

type client struct {
	log          *logger.Logger
	metrics      *observability.Metrics
	baseURL      string
	apiKey       string
	model        string
	httpClient   *http.Client
	streamClient *http.Client
	maxRetries   int
	temperature  *float64
}

func NewClient(log *logger.Logger, metrics *observability.Metrics, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	c := &client{
		log:        log.With("service", "OpenAIClient"),
		metrics:    metrics,
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		// Streams are bounded by the caller's context rather than a client timeout.
		streamClient: &http.Client{},
		maxRetries:   maxRetries,
		temperature:  cfg.Temperature,
	}
	if c.apiKey == "" {
		c.log.Warn("OPENAI_API_KEY not set; text generation calls will fail")
	}
	return c, nil
}

func (c *client) Model() string { return c.model }

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

type inputItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model       string      `json:"model"`
	Input       []inputItem `json:"input"`
	Temperature *float64    `json:"temperature,omitempty"`
	Stream      bool        `json:"stream,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type    string `json:"type"`
			Text    string `json:"text,omitempty"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *client) buildRequest(msgs []Message, stream bool) responsesRequest {
	req := responsesRequest{Model: c.model, Temperature: c.temperature, Stream: stream}
	for _, m := range msgs {
		role := strings.TrimSpace(m.Role)
		if role == "" {
			role = RoleUser
		}
		req.Input = append(req.Input, inputItem{Role: role, Content: m.Content})
	}
	return req
}

func extractOutputText(resp responsesResponse) (string, string) {
	var out, refusal strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, part := range item.Content {
			switch part.Type {
			case "output_text":
				out.WriteString(part.Text)
			case "refusal":
				refusal.WriteString(part.Refusal)
			}
		}
	}
	return out.String(), refusal.String()
}

func (c *client) newRequest(ctx context.Context, body any, stream bool) (*http.Request, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodPost, c.baseURL+responsesPath, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

func (c *client) doOnce(ctx context.Context, body any) (*http.Response, []byte, error) {
	req, err := c.newRequest(ctx, body, false)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

// doWithRetry retries transient failures up to maxRetries times. With the
// default of zero it is a single attempt.
func (c *client) doWithRetry(ctx context.Context, body any, out any) error {
	backoff := time.Second
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, raw, err := c.doOnce(ctx, body)
		if err == nil {
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w", uErr)
			}
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("OpenAI request retrying",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

func (c *client) Complete(ctx context.Context, msgs []Message) (string, error) {
	ctx = ctxutil.Default(ctx)
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	start := time.Now()
	var resp responsesResponse
	if err := c.doWithRetry(ctx, c.buildRequest(msgs, false), &resp); err != nil {
		c.metrics.ObserveLLM(c.model, "complete", "error", time.Since(start))
		return "", err
	}
	text, refusal := extractOutputText(resp)
	if refusal != "" {
		c.metrics.ObserveLLM(c.model, "complete", "refused", time.Since(start))
		return "", fmt.Errorf("model refused: %s", refusal)
	}
	if strings.TrimSpace(text) == "" {
		c.metrics.ObserveLLM(c.model, "complete", "empty", time.Since(start))
		return "", fmt.Errorf("no output_text found in response")
	}
	c.metrics.ObserveLLM(c.model, "complete", "ok", time.Since(start))
	return text, nil
}

type streamEvent struct {
	Type    string `json:"type"`
	Delta   string `json:"delta"`
	Message string `json:"message"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
	Response *struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"response"`
}

func (e streamEvent) failure() string {
	switch {
	case e.Error != nil && e.Error.Message != "":
		return e.Error.Message
	case e.Type == "error" && e.Message != "":
		return e.Message
	case e.Response != nil && e.Response.Error != nil && e.Response.Error.Message != "":
		return e.Response.Error.Message
	case e.Type == "response.failed":
		return "response failed"
	}
	return ""
}

func (c *client) StreamComplete(ctx context.Context, msgs []Message, onDelta func(delta string)) (string, error) {
	ctx = ctxutil.Default(ctx)
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	start := time.Now()

	req, err := c.newRequest(ctx, c.buildRequest(msgs, true), true)
	if err != nil {
		return "", err
	}
	resp, err := c.streamClient.Do(req)
	if err != nil {
		c.metrics.ObserveLLM(c.model, "stream", "error", time.Since(start))
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		c.metrics.ObserveLLM(c.model, "stream", "error", time.Since(start))
		return "", &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var full strings.Builder
	err = streamSSE(resp.Body, func(event string, data string) error {
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			return nil
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil
		}
		if ev.Type == "" {
			ev.Type = event
		}
		if msg := ev.failure(); msg != "" {
			return fmt.Errorf("openai stream error: %s", msg)
		}
		if strings.HasSuffix(ev.Type, "output_text.delta") && ev.Delta != "" {
			full.WriteString(ev.Delta)
			if onDelta != nil {
				onDelta(ev.Delta)
			}
		}
		return nil
	})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		c.metrics.ObserveLLM(c.model, "stream", "error", time.Since(start))
		return full.String(), err
	}
	c.metrics.ObserveLLM(c.model, "stream", "ok", time.Since(start))
	return full.String(), nil
}
