package chat

import (
	"sync"

	"meddoc-assistant/internal/domain/model"
)

type storeSub struct {
	id        int
	patientID string
	fn        func(model.ChatMessage)
}

// MessageStore is the ordered, append-only message log per patient. Messages
// are immutable once appended; a sequence is only ever emptied wholesale by
// Clear. Observers are notified synchronously in insertion order. The store
// is purely in-memory; durable history lives behind ChatHistoryRepository.
type MessageStore struct {
	mu        sync.Mutex
	byPatient map[string][]model.ChatMessage
	subs      []storeSub
	nextID    int
}

func NewMessageStore() *MessageStore {
	return &MessageStore{byPatient: make(map[string][]model.ChatMessage)}
}

// Append adds msg to the patient's sequence and notifies that patient's
// observers before returning.
func (s *MessageStore) Append(patientID string, msg model.ChatMessage) {
	s.mu.Lock()
	s.byPatient[patientID] = append(s.byPatient[patientID], msg)
	fns := make([]func(model.ChatMessage), 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.patientID == patientID {
			fns = append(fns, sub.fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

// Clear empties exactly one patient's sequence.
func (s *MessageStore) Clear(patientID string) {
	s.mu.Lock()
	delete(s.byPatient, patientID)
	s.mu.Unlock()
}

// MessagesFor returns a copy of the patient's current ordered sequence.
func (s *MessageStore) MessagesFor(patientID string) []model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.byPatient[patientID]
	out := make([]model.ChatMessage, len(seq))
	copy(out, seq)
	return out
}

// Len reports the patient's sequence length.
func (s *MessageStore) Len(patientID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byPatient[patientID])
}

// Subscribe replays the patient's existing messages to fn in order, then
// delivers every later append until the returned cancel func is called.
func (s *MessageStore) Subscribe(patientID string, fn func(model.ChatMessage)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, storeSub{id: id, patientID: patientID, fn: fn})
	replay := make([]model.ChatMessage, len(s.byPatient[patientID]))
	copy(replay, s.byPatient[patientID])
	s.mu.Unlock()

	for _, m := range replay {
		fn(m)
	}
	return func() {
		s.mu.Lock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}
}
