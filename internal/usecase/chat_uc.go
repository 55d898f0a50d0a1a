// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"meddoc-assistant/internal/chat"
	"meddoc-assistant/internal/domain"
	"meddoc-assistant/internal/domain/model"
	"meddoc-assistant/internal/domain/ports/adapter"
	"meddoc-assistant/internal/domain/ports/repository"
	"meddoc-assistant/internal/infra/logging"
	"meddoc-assistant/internal/infra/metrics"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

// ErrorNotice is the fixed prefix of the message appended when a turn fails.
const ErrorNotice = "Sorry, I could not complete that answer. Please try again."

// DeltaFunc receives each content delta together with the accumulated buffer
// so far, in arrival order.
type DeltaFunc func(delta, buffer string)

// RateLimiter gate for outgoing questions.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type ChatUseCase interface {
	// Send runs one full turn: optimistic user-message append, streaming
	// call, delta folding, and exactly one finalized outcome message which
	// is returned. onDelta may be nil.
	Send(ctx context.Context, userID, question string, onDelta DeltaFunc) (*model.ChatMessage, error)
	// CanSend reports the first violated send precondition, or nil.
	CanSend(ctx context.Context, userID, question string) error
	// Messages returns the patient's current ordered sequence.
	Messages(ctx context.Context, patientID string) ([]model.ChatMessage, error)
	// ClearHistory empties one patient's sequence, in memory and durably.
	ClearHistory(ctx context.Context, patientID string) error
	// Draft returns the in-flight answer buffer for live display ("" when idle).
	Draft(userID string) string
}

type turnState struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (t *turnState) append(delta string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.WriteString(delta)
	return t.buf.String()
}

func (t *turnState) snapshot() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

type chatUC struct {
	contexts *chat.Registry
	store    *chat.MessageStore
	ai       adapter.AssistantStreamer
	history  repository.ChatHistoryRepository
	limiter  RateLimiter

	turnTimeout time.Duration
	ratePerMin  int
	log         *zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]*turnState // userID -> running turn
}

func NewChatUseCase(
	contexts *chat.Registry,
	store *chat.MessageStore,
	ai adapter.AssistantStreamer,
	history repository.ChatHistoryRepository,
	limiter RateLimiter,
	turnTimeout time.Duration,
	ratePerMin int,
	logger *zerolog.Logger,
) *chatUC {
	if turnTimeout <= 0 {
		turnTimeout = 2 * time.Minute
	}
	return &chatUC{
		contexts:    contexts,
		store:       store,
		ai:          ai,
		history:     history,
		limiter:     limiter,
		turnTimeout: turnTimeout,
		ratePerMin:  ratePerMin,
		log:         logger,
		inFlight:    make(map[string]*turnState),
	}
}

func (c *chatUC) CanSend(ctx context.Context, userID, question string) error {
	session := c.contexts.For(userID).Session()
	if !session.Populated() || session.Status != model.ChatSessionActive {
		return domain.ErrNoActiveSession
	}
	q := strings.TrimSpace(question)
	if q == "" {
		return domain.ErrEmptyQuestion
	}
	if len([]rune(q)) > model.MaxQuestionChars {
		return domain.ErrQuestionTooLong
	}
	c.mu.Lock()
	_, busy := c.inFlight[userID]
	c.mu.Unlock()
	if busy {
		return domain.ErrTurnInFlight
	}
	return nil
}

func (c *chatUC) Send(ctx context.Context, userID, question string, onDelta DeltaFunc) (*model.ChatMessage, error) {
	defer logging.TraceDuration(logging.With(ctx, c.log), "ChatUC.Send")()

	snap := c.contexts.For(userID).Current()
	session := snap.Session
	if err := c.CanSend(ctx, userID, question); err != nil {
		metrics.IncSendRejected(rejectReason(err))
		return nil, err
	}
	patientID := session.PatientID
	q := strings.TrimSpace(question)

	// Claim the single in-flight slot for this user.
	turn := &turnState{}
	c.mu.Lock()
	if _, busy := c.inFlight[userID]; busy {
		c.mu.Unlock()
		metrics.IncSendRejected("in_flight")
		return nil, domain.ErrTurnInFlight
	}
	c.inFlight[userID] = turn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inFlight, userID)
		c.mu.Unlock()
	}()

	if c.limiter != nil && c.ratePerMin > 0 {
		ok, err := c.limiter.Allow(ctx, "rate_limit:chat:"+userID, c.ratePerMin, time.Minute)
		if err != nil {
			c.log.Warn().Err(err).Msg("rate limiter unavailable, allowing send")
		} else if !ok {
			metrics.IncSendRejected("rate_limited")
			return nil, domain.ErrRateLimited
		}
	}

	// Optimistic user-message append: always succeeds locally, before any
	// network is touched.
	userMsg := model.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      model.RoleUser,
		Content:   q,
		Timestamp: time.Now(),
	}
	c.store.Append(patientID, userMsg)
	c.persist(ctx, patientID, &userMsg)

	start := time.Now()
	outcome, success := c.streamTurn(ctx, session, q, turn, onDelta)
	outcome.SessionID = session.ID
	c.store.Append(patientID, *outcome)
	c.persist(ctx, patientID, outcome)

	tokens, _ := c.ai.CountTokens(ctx, q)
	metrics.ObserveTurn(c.ai.Name(), tokens, int(time.Since(start).Milliseconds()), success)
	return outcome, nil
}

// streamTurn consumes one event sequence and returns exactly one outcome
// message: the finalized assistant answer on end (success=true), or an error
// notice on error, timeout, cancellation, or abnormal termination. Partial
// content is never finalized.
func (c *chatUC) streamTurn(ctx context.Context, session *model.ChatSession, q string, turn *turnState, onDelta DeltaFunc) (*model.ChatMessage, bool) {
	l := logging.With(ctx, c.log)

	ctx, cancel := context.WithTimeout(ctx, c.turnTimeout)
	defer cancel()

	events, err := c.ai.Ask(ctx, session, q)
	if err != nil {
		l.Error().Err(err).Msg("ask failed before stream opened")
		return c.errorNotice(err.Error()), false
	}

	interactionID := ""
	deltas := 0
	for {
		select {
		case <-ctx.Done():
			l.Warn().Str("interaction_id", interactionID).Int("deltas", deltas).Msg("turn aborted")
			return c.errorNotice("the answer timed out"), false
		case ev, ok := <-events:
			if !ok {
				// Closed without a terminal event; still resolve the turn.
				l.Error().Str("interaction_id", interactionID).Msg("stream closed without terminal event")
				return c.errorNotice("stream ended unexpectedly"), false
			}
			switch ev.Type {
			case model.EventStart:
				interactionID = ev.InteractionID
				l.Debug().Str("interaction_id", interactionID).Msg("assistant turn started")
			case model.EventContent:
				deltas++
				metrics.IncDeltas(c.ai.Name())
				buffer := turn.append(ev.Content)
				if onDelta != nil {
					onDelta(ev.Content, buffer)
				}
			case model.EventEnd:
				return &model.ChatMessage{
					ID:        uuid.NewString(),
					Role:      model.RoleAssistant,
					Content:   turn.snapshot(),
					Timestamp: time.Now(),
				}, true
			case model.EventError:
				l.Warn().Str("interaction_id", interactionID).Int("deltas", deltas).Str("cause", ev.Err).Msg("assistant turn failed")
				return c.errorNotice(ev.Err), false
			}
		}
	}
}

func (c *chatUC) errorNotice(cause string) *model.ChatMessage {
	content := ErrorNotice
	if cause != "" {
		content += " (" + cause + ")"
	}
	return &model.ChatMessage{
		ID:        uuid.NewString(),
		Role:      model.RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// persist writes a committed message through the history repository.
// Persistence is best-effort; the in-memory sequence already holds the
// message.
func (c *chatUC) persist(ctx context.Context, patientID string, msg *model.ChatMessage) {
	if c.history == nil {
		return
	}
	if err := c.history.SaveMessage(ctx, nil, patientID, msg); err != nil {
		logging.With(ctx, c.log).Error().Err(err).Str("patient_id", patientID).Msg("persist message")
	}
}

func (c *chatUC) Messages(ctx context.Context, patientID string) ([]model.ChatMessage, error) {
	return c.store.MessagesFor(patientID), nil
}

func (c *chatUC) ClearHistory(ctx context.Context, patientID string) error {
	c.store.Clear(patientID)
	if c.history == nil {
		return nil
	}
	return c.history.DeleteByPatient(ctx, nil, patientID)
}

func (c *chatUC) Draft(userID string) string {
	c.mu.Lock()
	turn := c.inFlight[userID]
	c.mu.Unlock()
	if turn == nil {
		return ""
	}
	return turn.snapshot()
}

func rejectReason(err error) string {
	switch err {
	case domain.ErrNoActiveSession:
		return "no_session"
	case domain.ErrEmptyQuestion:
		return "empty"
	case domain.ErrQuestionTooLong:
		return "too_long"
	case domain.ErrTurnInFlight:
		return "in_flight"
	case domain.ErrRateLimited:
		return "rate_limited"
	default:
		return "other"
	}
}
