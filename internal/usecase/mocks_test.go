package usecase

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"meddoc-assistant/internal/domain"
	"meddoc-assistant/internal/domain/model"
	"meddoc-assistant/internal/domain/ports/adapter"
	"meddoc-assistant/internal/domain/ports/repository"
	"meddoc-assistant/internal/infra/worker"
)

// ---- Streaming fakes ----

// scriptedStreamer replays a fixed event sequence for every Ask call.
type scriptedStreamer struct {
	mu     sync.Mutex
	events []model.StreamEvent
	askErr error
	asks   int
	// delay before each event, for in-flight gating tests
	delay time.Duration
}

var _ adapter.AssistantStreamer = (*scriptedStreamer)(nil)

func (s *scriptedStreamer) Ask(ctx context.Context, session *model.ChatSession, question string) (<-chan model.StreamEvent, error) {
	s.mu.Lock()
	s.asks++
	events := make([]model.StreamEvent, len(s.events))
	copy(events, s.events)
	askErr := s.askErr
	delay := s.delay
	s.mu.Unlock()

	if askErr != nil {
		return nil, askErr
	}
	out := make(chan model.StreamEvent)
	go func() {
		defer close(out)
		for _, ev := range events {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *scriptedStreamer) CountTokens(ctx context.Context, text string) (int, error) {
	return len(text) / 4, nil
}

func (s *scriptedStreamer) Name() string { return "scripted" }

func (s *scriptedStreamer) askCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asks
}

// ---- Repository fakes ----

type memHistoryRepo struct {
	mu        sync.Mutex
	byPatient map[string][]model.ChatMessage
}

var _ repository.ChatHistoryRepository = (*memHistoryRepo)(nil)

func newMemHistoryRepo() *memHistoryRepo {
	return &memHistoryRepo{byPatient: map[string][]model.ChatMessage{}}
}

func (m *memHistoryRepo) SaveMessage(ctx context.Context, qx any, patientID string, msg *model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPatient[patientID] = append(m.byPatient[patientID], *msg)
	return nil
}

func (m *memHistoryRepo) FindByPatient(ctx context.Context, qx any, patientID string, limit int) ([]model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.byPatient[patientID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]model.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *memHistoryRepo) DeleteByPatient(ctx context.Context, qx any, patientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byPatient, patientID)
	return nil
}

func (m *memHistoryRepo) CleanupOldMessages(ctx context.Context, retentionDays int) (int64, error) {
	return 0, nil
}

func (m *memHistoryRepo) count(patientID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byPatient[patientID])
}

type memSessionRepo struct {
	mu       sync.Mutex
	byID     map[string]*model.ChatSession
	activeBy map[string]*model.ChatSession
}

var _ repository.ChatSessionRepository = (*memSessionRepo)(nil)

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{
		byID:     map[string]*model.ChatSession{},
		activeBy: map[string]*model.ChatSession{},
	}
}

func (m *memSessionRepo) Save(ctx context.Context, qx any, s *model.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.byID[s.ID] = &cp
	if s.Status == model.ChatSessionActive {
		m.activeBy[s.UserID] = &cp
	}
	return nil
}

func (m *memSessionRepo) FindByID(ctx context.Context, qx any, id string) (*model.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.byID[id]; s != nil {
		cp := *s
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memSessionRepo) FindActiveByUser(ctx context.Context, qx any, userID string) (*model.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.activeBy[userID]; s != nil {
		cp := *s
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memSessionRepo) UpdateStatus(ctx context.Context, qx any, id string, st model.ChatSessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.byID[id]
	if s == nil {
		return domain.ErrNotFound
	}
	s.Status = st
	if st != model.ChatSessionActive {
		delete(m.activeBy, s.UserID)
	}
	return nil
}

func (m *memSessionRepo) Delete(ctx context.Context, qx any, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.byID[id]; s != nil {
		delete(m.byID, id)
		delete(m.activeBy, s.UserID)
		return nil
	}
	return domain.ErrNotFound
}

type memPatientRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Patient
}

var _ repository.PatientRepository = (*memPatientRepo)(nil)

func newMemPatientRepo() *memPatientRepo {
	return &memPatientRepo{byID: map[string]*model.Patient{}}
}

func (m *memPatientRepo) Save(ctx context.Context, qx any, p *model.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *memPatientRepo) FindByID(ctx context.Context, qx any, id string) (*model.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.byID[id]; p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memPatientRepo) List(ctx context.Context, qx any) ([]*model.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Patient, 0, len(m.byID))
	for _, p := range m.byID {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

type memDocumentRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Document
}

var _ repository.DocumentRepository = (*memDocumentRepo)(nil)

func newMemDocumentRepo() *memDocumentRepo {
	return &memDocumentRepo{byID: map[string]*model.Document{}}
}

func (m *memDocumentRepo) Save(ctx context.Context, qx any, d *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.byID[d.ID] = &cp
	return nil
}

func (m *memDocumentRepo) FindByID(ctx context.Context, qx any, id string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.byID[id]; d != nil {
		cp := *d
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memDocumentRepo) FindByPatient(ctx context.Context, qx any, patientID string) ([]*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Document
	for _, d := range m.byID {
		if d.PatientID == patientID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memDocumentRepo) Delete(ctx context.Context, qx any, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memDocumentRepo) SetContentText(ctx context.Context, qx any, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.byID[id]
	if d == nil {
		return domain.ErrNotFound
	}
	d.ContentText = text
	d.IndexedAt = time.Now()
	return nil
}

func (m *memDocumentRepo) Search(ctx context.Context, qx any, q model.SearchQuery) ([]model.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SearchResult
	for _, d := range m.byID {
		if q.PatientID != "" && d.PatientID != q.PatientID {
			continue
		}
		cp := *d
		out = append(out, model.SearchResult{Document: &cp, Score: 0.5})
	}
	return out, nil
}

// ---- Misc fakes ----

type allowAllLimiter struct{ denied bool }

func (l *allowAllLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return !l.denied, nil
}

type memLocker struct {
	mu    sync.Mutex
	held  map[string]string
	fail  bool
	token int
}

func newMemLocker() *memLocker { return &memLocker{held: map[string]string{}} }

func (l *memLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return "", domain.ErrAlreadyExists
	}
	if _, ok := l.held[key]; ok {
		return "", domain.ErrAlreadyExists
	}
	l.token++
	tok := "tok-" + strconv.Itoa(l.token)
	l.held[key] = tok
	return tok, nil
}

func (l *memLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return errors.New("not lock owner")
	}
	delete(l.held, key)
	return nil
}

type memSessionCache struct {
	mu   sync.Mutex
	byID map[string]*model.ChatSession
}

func newMemSessionCache() *memSessionCache {
	return &memSessionCache{byID: map[string]*model.ChatSession{}}
}

func (c *memSessionCache) StoreSession(ctx context.Context, s *model.ChatSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *s
	c.byID[s.ID] = &cp
	return nil
}

func (c *memSessionCache) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.byID[id]; s != nil {
		cp := *s
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (c *memSessionCache) DeleteSession(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byID, id)
	return nil
}

func (c *memSessionCache) ExtendSession(ctx context.Context, id string) error { return nil }

// syncQueue runs submitted tasks inline so tests observe their effects
// immediately.
type syncQueue struct{}

func (syncQueue) Submit(task worker.Task) error {
	return task(context.Background())
}
