// Package chat holds the in-memory conversation state: the per-user session
// context and the per-patient message log. Both follow the same observer
// contract: synchronous notification on change, last-value replay for late
// subscribers.
package chat

import (
	"sync"

	"meddoc-assistant/internal/domain/model"
)

// Snapshot is the current (patient, session) pair. Either pointer may be nil
// when no context is established.
type Snapshot struct {
	Patient *model.Patient
	Session *model.ChatSession
}

// Context is the session context holder for one user. It is written only by
// the patient-selection flow and read by the chat orchestrator.
type Context struct {
	mu      sync.Mutex
	patient *model.Patient
	session *model.ChatSession

	subs   map[int]func(Snapshot)
	nextID int
}

func NewContext() *Context {
	return &Context{subs: make(map[int]func(Snapshot))}
}

// Set replaces the active patient/document context wholesale. Passing a nil
// session clears it (no session means sends are refused).
func (c *Context) Set(patient *model.Patient, session *model.ChatSession) {
	c.mu.Lock()
	c.patient = patient
	c.session = session
	snap := Snapshot{Patient: patient, Session: session}
	fns := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Clear drops both patient and session.
func (c *Context) Clear() { c.Set(nil, nil) }

// Current returns the latest snapshot.
func (c *Context) Current() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Patient: c.patient, Session: c.session}
}

// Session returns the active session, or nil when none is established.
func (c *Context) Session() *model.ChatSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Patient returns the active patient, or nil.
func (c *Context) Patient() *model.Patient {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.patient
}

// Subscribe registers fn and replays the current snapshot to it immediately.
// The returned func cancels the subscription.
func (c *Context) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	snap := Snapshot{Patient: c.patient, Session: c.session}
	c.mu.Unlock()

	fn(snap)
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Registry hands out one Context per user id.
type Registry struct {
	mu   sync.Mutex
	byID map[string]*Context
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Context)}
}

// For returns the user's context holder, creating it on first use.
func (r *Registry) For(userID string) *Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[userID]
	if !ok {
		c = NewContext()
		r.byID[userID] = c
	}
	return c
}
