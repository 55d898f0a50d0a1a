// File: internal/usecase/session_uc.go
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"meddoc-assistant/internal/chat"
	"meddoc-assistant/internal/domain"
	"meddoc-assistant/internal/domain/model"
	"meddoc-assistant/internal/domain/ports/repository"
	"meddoc-assistant/internal/infra/logging"
)

var _ SessionUseCase = (*sessionUC)(nil)

// Locker serializes context changes per user.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// SessionCache keeps the active session hot for correlation lookups.
type SessionCache interface {
	StoreSession(ctx context.Context, session *model.ChatSession) error
	GetSession(ctx context.Context, sessionID string) (*model.ChatSession, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ExtendSession(ctx context.Context, sessionID string) error
}

type SessionUseCase interface {
	// OpenContext establishes a fresh patient/document context for the user:
	// a new session replaces any previous one wholesale, and the user's
	// context holder is pointed at it.
	OpenContext(ctx context.Context, userID, patientID, documentID string) (*model.ChatSession, error)
	// CloseContext closes the active session and clears the holder.
	CloseContext(ctx context.Context, userID string) error
	// Current returns the user's (patient, session) snapshot.
	Current(ctx context.Context, userID string) (chat.Snapshot, error)
}

type sessionUC struct {
	contexts *chat.Registry
	store    *chat.MessageStore
	sessions repository.ChatSessionRepository
	patients repository.PatientRepository
	history  repository.ChatHistoryRepository
	cache    SessionCache
	locker   Locker
	hydrate  int
	log      *zerolog.Logger
}

func NewSessionUseCase(
	contexts *chat.Registry,
	store *chat.MessageStore,
	sessions repository.ChatSessionRepository,
	patients repository.PatientRepository,
	history repository.ChatHistoryRepository,
	cache SessionCache,
	locker Locker,
	hydrateLimit int,
	logger *zerolog.Logger,
) *sessionUC {
	if hydrateLimit <= 0 {
		hydrateLimit = 200
	}
	return &sessionUC{
		contexts: contexts,
		store:    store,
		sessions: sessions,
		patients: patients,
		history:  history,
		cache:    cache,
		locker:   locker,
		hydrate:  hydrateLimit,
		log:      logger,
	}
}

func (s *sessionUC) OpenContext(ctx context.Context, userID, patientID, documentID string) (*model.ChatSession, error) {
	if userID == "" || patientID == "" || documentID == "" {
		return nil, domain.ErrInvalidArgument
	}
	ctx = logging.WithPatientID(ctx, patientID)
	l := logging.With(ctx, s.log)

	if s.locker != nil {
		token, err := s.locker.TryLock(ctx, "lock:context:"+userID, 5*time.Second)
		if err != nil {
			return nil, err
		}
		defer func() { _ = s.locker.Unlock(ctx, "lock:context:"+userID, token) }()
	}

	patient, err := s.patients.FindByID(ctx, nil, patientID)
	if err != nil {
		return nil, err
	}

	// Replace any previous session wholesale.
	if prev, err := s.sessions.FindActiveByUser(ctx, nil, userID); err == nil && prev != nil {
		if err := s.sessions.UpdateStatus(ctx, nil, prev.ID, model.ChatSessionClosed); err != nil {
			l.Warn().Err(err).Str("session_id", prev.ID).Msg("close previous session")
		}
		if s.cache != nil {
			_ = s.cache.DeleteSession(ctx, prev.ID)
		}
	}

	session := model.NewChatSession(uuid.NewString(), userID, documentID, patientID)
	if err := s.sessions.Save(ctx, nil, session); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.StoreSession(ctx, session); err != nil {
			l.Warn().Err(err).Msg("cache session")
		}
	}

	s.hydrateStore(ctx, patientID)
	s.contexts.For(userID).Set(patient, session)
	l = logging.With(logging.WithSessID(ctx, session.ID), s.log)
	l.Info().Str("document_id", documentID).Msg("context opened")
	return session, nil
}

// hydrateStore loads persisted history into the in-memory store the first
// time a patient's conversation is opened in this process.
func (s *sessionUC) hydrateStore(ctx context.Context, patientID string) {
	if s.history == nil || s.store.Len(patientID) > 0 {
		return
	}
	msgs, err := s.history.FindByPatient(ctx, nil, patientID, s.hydrate)
	if err != nil {
		logging.With(ctx, s.log).Warn().Err(err).Str("patient_id", patientID).Msg("hydrate history")
		return
	}
	for _, m := range msgs {
		s.store.Append(patientID, m)
	}
}

func (s *sessionUC) CloseContext(ctx context.Context, userID string) error {
	holder := s.contexts.For(userID)
	session := holder.Session()
	holder.Clear()
	if session == nil {
		return nil
	}
	if s.cache != nil {
		_ = s.cache.DeleteSession(ctx, session.ID)
	}
	return s.sessions.UpdateStatus(ctx, nil, session.ID, model.ChatSessionClosed)
}

func (s *sessionUC) Current(ctx context.Context, userID string) (chat.Snapshot, error) {
	snap := s.contexts.For(userID).Current()
	if snap.Session != nil {
		return snap, nil
	}

	// Recover an active context after a restart: the durable session is the
	// source of truth, the cache copy is preferred when fresh.
	sess, err := s.sessions.FindActiveByUser(ctx, nil, userID)
	if err != nil || sess == nil {
		return snap, nil
	}
	if s.cache != nil {
		if cached, err := s.cache.GetSession(ctx, sess.ID); err == nil && cached != nil {
			sess = cached
			_ = s.cache.ExtendSession(ctx, sess.ID)
		}
	}
	patient, err := s.patients.FindByID(ctx, nil, sess.PatientID)
	if err != nil {
		return snap, nil
	}
	s.hydrateStore(ctx, sess.PatientID)
	s.contexts.For(userID).Set(patient, sess)
	return chat.Snapshot{Patient: patient, Session: sess}, nil
}
