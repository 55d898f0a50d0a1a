package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"meddoc-assistant/internal/domain"
	"meddoc-assistant/internal/domain/model"
	"meddoc-assistant/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AssistantStreamer = (*BackendSSEAdapter)(nil)

// BackendSSEAdapter talks to the document-assistant answer backend. The
// request carries {session_id, user_id, document_id, question}; the response
// is a server-sent stream of JSON events discriminated by a "type" field in
// {start, content, end, error}.
type BackendSSEAdapter struct {
	base   string
	apiKey string
	// streaming requests carry no client timeout; the caller bounds the
	// turn with its context
	client *http.Client
}

func NewBackendSSEAdapter(baseURL, apiKey string) (*BackendSSEAdapter, error) {
	if baseURL == "" {
		return nil, errors.New("backend base url empty")
	}
	return &BackendSSEAdapter{
		base:   strings.TrimRight(baseURL, "/"),
		apiKey: apiKey,
		client: &http.Client{},
	}, nil
}

func (a *BackendSSEAdapter) Name() string { return "backend" }

// CountTokens is a best-effort estimate; the backend does not report usage.
func (a *BackendSSEAdapter) CountTokens(ctx context.Context, text string) (int, error) {
	return (len(text) + 3) / 4, nil
}

type backendEvent struct {
	Type          string `json:"type"`
	InteractionID string `json:"interaction_id,omitempty"`
	Content       string `json:"content,omitempty"`
	Error         string `json:"error,omitempty"`
}

func (a *BackendSSEAdapter) Ask(ctx context.Context, session *model.ChatSession, question string) (<-chan model.StreamEvent, error) {
	if err := ValidateQuestion(session, question); err != nil {
		return nil, err
	}

	reqBody := struct {
		SessionID  string `json:"session_id"`
		UserID     string `json:"user_id"`
		DocumentID string `json:"document_id"`
		Question   string `json:"question"`
	}{session.ID, session.UserID, session.DocumentID, strings.TrimSpace(question)}

	b, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/api/v1/chat/stream", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	out := make(chan model.StreamEvent)
	go func() {
		defer close(out)
		resp, err := a.client.Do(req)
		if err != nil {
			emit(ctx, out, model.StreamEvent{Type: model.EventError, Err: err.Error()})
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			emit(ctx, out, model.StreamEvent{Type: model.EventError, Err: fmt.Sprintf("backend http %d", resp.StatusCode)})
			return
		}
		a.demux(ctx, resp.Body, out)
	}()
	return out, nil
}

// demux reads the response line by line, accepting both SSE "data:" framing
// and bare JSON lines, and forwards one terminal event at most.
func (a *BackendSSEAdapter) demux(ctx context.Context, body io.Reader, out chan<- model.StreamEvent) {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue // keepalive / comment
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if line == "" || line == "[DONE]" {
			continue
		}

		var ev backendEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			emit(ctx, out, model.StreamEvent{Type: model.EventError, Err: "malformed event payload"})
			return
		}
		switch model.StreamEventType(ev.Type) {
		case model.EventStart:
			if !emit(ctx, out, model.StreamEvent{Type: model.EventStart, InteractionID: ev.InteractionID}) {
				return
			}
		case model.EventContent:
			if !emit(ctx, out, model.StreamEvent{Type: model.EventContent, Content: ev.Content}) {
				return
			}
		case model.EventEnd:
			emit(ctx, out, model.StreamEvent{Type: model.EventEnd})
			return
		case model.EventError:
			emit(ctx, out, model.StreamEvent{Type: model.EventError, Err: ev.Error})
			return
		default:
			emit(ctx, out, model.StreamEvent{Type: model.EventError, Err: "unknown event type: " + ev.Type})
			return
		}
	}
	// Connection dropped before a terminal event: the turn must still
	// resolve to exactly one outcome.
	if err := sc.Err(); err != nil {
		emit(ctx, out, model.StreamEvent{Type: model.EventError, Err: err.Error()})
		return
	}
	emit(ctx, out, model.StreamEvent{Type: model.EventError, Err: "stream ended before completion"})
}

// emit delivers ev unless the consumer is gone.
func emit(ctx context.Context, out chan<- model.StreamEvent, ev model.StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// ValidateQuestion enforces the send preconditions shared by all adapters:
// a fully populated session and a trimmed question within the length
// limit. Violations are precondition failures, not stream errors.
func ValidateQuestion(session *model.ChatSession, question string) error {
	if !session.Populated() {
		return domain.ErrNoActiveSession
	}
	q := strings.TrimSpace(question)
	if q == "" {
		return domain.ErrEmptyQuestion
	}
	if len([]rune(q)) > model.MaxQuestionChars {
		return domain.ErrQuestionTooLong
	}
	return nil
}
