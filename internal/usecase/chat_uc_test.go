package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"meddoc-assistant/internal/chat"
	"meddoc-assistant/internal/config"
	"meddoc-assistant/internal/domain"
	"meddoc-assistant/internal/domain/model"
	"meddoc-assistant/internal/infra/logging"
)

func newChatFixture(t *testing.T, streamer *scriptedStreamer) (ChatUseCase, *chat.Registry, *chat.MessageStore, *memHistoryRepo) {
	t.Helper()
	contexts := chat.NewRegistry()
	store := chat.NewMessageStore()
	history := newMemHistoryRepo()
	log := logging.New(config.LogConfig{Level: "error", Format: "console"}, true)
	uc := NewChatUseCase(contexts, store, streamer, history, &allowAllLimiter{}, 2*time.Second, 0, log)
	return uc, contexts, store, history
}

func openContext(contexts *chat.Registry, userID string) *model.ChatSession {
	patient := &model.Patient{ID: "p1", DisplayName: "Jane Doe"}
	session := model.NewChatSession("s1", userID, "d1", "p1")
	contexts.For(userID).Set(patient, session)
	return session
}

func TestChatSend_FoldsDeltasInOrder(t *testing.T) {
	streamer := &scriptedStreamer{events: []model.StreamEvent{
		{Type: model.EventStart, InteractionID: "i1"},
		{Type: model.EventContent, Content: "Hel"},
		{Type: model.EventContent, Content: "lo, "},
		{Type: model.EventContent, Content: "world"},
		{Type: model.EventEnd},
	}}
	uc, contexts, store, _ := newChatFixture(t, streamer)
	openContext(contexts, "u1")

	var deltas []string
	var lastBuffer string
	outcome, err := uc.Send(context.Background(), "u1", "What does this report say?", func(delta, buffer string) {
		deltas = append(deltas, delta)
		lastBuffer = buffer
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if outcome.Role != model.RoleAssistant || outcome.Content != "Hello, world" {
		t.Fatalf("expected finalized answer %q, got %q", "Hello, world", outcome.Content)
	}
	if len(deltas) != 3 || deltas[0] != "Hel" || deltas[1] != "lo, " || deltas[2] != "world" {
		t.Fatalf("deltas out of order: %v", deltas)
	}
	if lastBuffer != "Hello, world" {
		t.Fatalf("running buffer should equal the final answer, got %q", lastBuffer)
	}

	msgs := store.MessagesFor("p1")
	if len(msgs) != 2 {
		t.Fatalf("expected user message + one outcome, got %d messages", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "What does this report say?" {
		t.Fatalf("first message should be the user's question, got %+v", msgs[0])
	}
	if msgs[1].Content != "Hello, world" {
		t.Fatalf("second message should be the answer, got %q", msgs[1].Content)
	}
}

func TestChatSend_AtMostOneOutcomePerAsk(t *testing.T) {
	// Events after the terminal end must not produce a second outcome.
	streamer := &scriptedStreamer{events: []model.StreamEvent{
		{Type: model.EventStart, InteractionID: "i1"},
		{Type: model.EventContent, Content: "done"},
		{Type: model.EventEnd},
		{Type: model.EventError, Err: "late error"},
	}}
	uc, contexts, store, _ := newChatFixture(t, streamer)
	openContext(contexts, "u1")

	if _, err := uc.Send(context.Background(), "u1", "q", nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	assistant := 0
	for _, m := range store.MessagesFor("p1") {
		if m.Role == model.RoleAssistant {
			assistant++
		}
	}
	if assistant != 1 {
		t.Fatalf("expected exactly one outcome message, got %d", assistant)
	}
}

func TestChatSend_GatingRejectsWithoutSideEffects(t *testing.T) {
	streamer := &scriptedStreamer{}
	uc, contexts, store, history := newChatFixture(t, streamer)

	cases := []struct {
		name     string
		open     bool
		question string
		want     error
	}{
		{"no active session", false, "hello", domain.ErrNoActiveSession},
		{"empty question", true, "   \n\t ", domain.ErrEmptyQuestion},
		{"too long", true, strings.Repeat("x", model.MaxQuestionChars+1), domain.ErrQuestionTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			contexts.For("u1").Clear()
			if tc.open {
				openContext(contexts, "u1")
			}
			_, err := uc.Send(context.Background(), "u1", tc.question, nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if store.Len("p1") != 0 {
				t.Fatal("rejected send must not touch the message store")
			}
			if history.count("p1") != 0 {
				t.Fatal("rejected send must not persist anything")
			}
			if streamer.askCount() != 0 {
				t.Fatal("rejected send must not reach the network")
			}
		})
	}
}

func TestChatSend_BoundaryLengthAccepted(t *testing.T) {
	streamer := &scriptedStreamer{events: []model.StreamEvent{
		{Type: model.EventStart},
		{Type: model.EventContent, Content: "ok"},
		{Type: model.EventEnd},
	}}
	uc, contexts, _, _ := newChatFixture(t, streamer)
	openContext(contexts, "u1")

	q := strings.Repeat("y", model.MaxQuestionChars)
	if _, err := uc.Send(context.Background(), "u1", q, nil); err != nil {
		t.Fatalf("question of exactly the limit should be accepted, got %v", err)
	}
}

func TestChatSend_ErrorDiscardsPartialBuffer(t *testing.T) {
	streamer := &scriptedStreamer{events: []model.StreamEvent{
		{Type: model.EventStart, InteractionID: "i1"},
		{Type: model.EventContent, Content: "Par"},
		{Type: model.EventContent, Content: "tial"},
		{Type: model.EventError, Err: "provider overloaded"},
	}}
	uc, contexts, store, _ := newChatFixture(t, streamer)
	openContext(contexts, "u1")

	outcome, err := uc.Send(context.Background(), "u1", "q", nil)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !strings.HasPrefix(outcome.Content, ErrorNotice) {
		t.Fatalf("expected error notice outcome, got %q", outcome.Content)
	}
	for _, m := range store.MessagesFor("p1") {
		if m.Role == model.RoleAssistant && strings.Contains(m.Content, "Partial") {
			t.Fatalf("partial content leaked into the transcript: %q", m.Content)
		}
	}
}

func TestChatSend_AskFailureYieldsErrorNotice(t *testing.T) {
	streamer := &scriptedStreamer{askErr: errors.New("connection refused")}
	uc, contexts, store, _ := newChatFixture(t, streamer)
	openContext(contexts, "u1")

	outcome, err := uc.Send(context.Background(), "u1", "q", nil)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !strings.HasPrefix(outcome.Content, ErrorNotice) {
		t.Fatalf("expected error notice, got %q", outcome.Content)
	}
	// The user's question still stands in the transcript.
	msgs := store.MessagesFor("p1")
	if len(msgs) != 2 || msgs[0].Role != model.RoleUser {
		t.Fatalf("expected question + notice, got %d messages", len(msgs))
	}
}

func TestChatSend_SecondSendWhileInFlight(t *testing.T) {
	streamer := &scriptedStreamer{
		delay: 50 * time.Millisecond,
		events: []model.StreamEvent{
			{Type: model.EventStart},
			{Type: model.EventContent, Content: "slow"},
			{Type: model.EventEnd},
		},
	}
	uc, contexts, _, _ := newChatFixture(t, streamer)
	openContext(contexts, "u1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = uc.Send(context.Background(), "u1", "first", nil)
	}()

	// Give the first turn time to claim the slot.
	time.Sleep(20 * time.Millisecond)
	_, err := uc.Send(context.Background(), "u1", "second", nil)
	if !errors.Is(err, domain.ErrTurnInFlight) {
		t.Fatalf("expected ErrTurnInFlight, got %v", err)
	}
	<-done

	// Once resolved, sends are accepted again.
	if err := uc.CanSend(context.Background(), "u1", "third"); err != nil {
		t.Fatalf("slot should be free after the turn resolved: %v", err)
	}
}

func TestChatSend_TimeoutSynthesizesErrorOutcome(t *testing.T) {
	// One delta, then silence; the turn timeout must resolve the ask.
	streamer := &scriptedStreamer{
		delay: time.Hour,
		events: []model.StreamEvent{
			{Type: model.EventContent, Content: "never arrives"},
		},
	}
	contexts := chat.NewRegistry()
	store := chat.NewMessageStore()
	log := logging.New(config.LogConfig{Level: "error", Format: "console"}, true)
	uc := NewChatUseCase(contexts, store, streamer, newMemHistoryRepo(), &allowAllLimiter{}, 30*time.Millisecond, 0, log)
	openContext(contexts, "u1")

	outcome, err := uc.Send(context.Background(), "u1", "q", nil)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !strings.HasPrefix(outcome.Content, ErrorNotice) {
		t.Fatalf("timeout should resolve as an error notice, got %q", outcome.Content)
	}
}

func TestChatSend_RateLimited(t *testing.T) {
	streamer := &scriptedStreamer{}
	contexts := chat.NewRegistry()
	store := chat.NewMessageStore()
	log := logging.New(config.LogConfig{Level: "error", Format: "console"}, true)
	uc := NewChatUseCase(contexts, store, streamer, newMemHistoryRepo(), &allowAllLimiter{denied: true}, time.Second, 5, log)
	openContext(contexts, "u1")

	_, err := uc.Send(context.Background(), "u1", "q", nil)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if store.Len("p1") != 0 {
		t.Fatal("rate-limited send must not append the question")
	}
}

func TestChatClearHistory_PatientScoped(t *testing.T) {
	streamer := &scriptedStreamer{}
	uc, _, store, history := newChatFixture(t, streamer)

	m := model.ChatMessage{ID: "m1", Role: model.RoleUser, Content: "x", Timestamp: time.Now()}
	store.Append("p1", m)
	store.Append("p2", m)
	_ = history.SaveMessage(context.Background(), nil, "p1", &m)
	_ = history.SaveMessage(context.Background(), nil, "p2", &m)

	if err := uc.ClearHistory(context.Background(), "p1"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if store.Len("p1") != 0 || history.count("p1") != 0 {
		t.Fatal("p1 should be fully cleared")
	}
	if store.Len("p2") != 1 || history.count("p2") != 1 {
		t.Fatal("p2 must be untouched by p1's clear")
	}
}

func TestChatDraft_TracksInFlightBuffer(t *testing.T) {
	streamer := &scriptedStreamer{
		delay: 30 * time.Millisecond,
		events: []model.StreamEvent{
			{Type: model.EventStart},
			{Type: model.EventContent, Content: "partial answer"},
			{Type: model.EventEnd},
		},
	}
	uc, contexts, _, _ := newChatFixture(t, streamer)
	openContext(contexts, "u1")

	seen := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = uc.Send(context.Background(), "u1", "q", func(delta, buffer string) {
			select {
			case seen <- uc.Draft("u1"):
			default:
			}
		})
	}()
	draft := <-seen
	<-done

	if draft != "partial answer" {
		t.Fatalf("draft should expose the running buffer, got %q", draft)
	}
	if uc.Draft("u1") != "" {
		t.Fatal("draft should be empty once the turn resolved")
	}
}
