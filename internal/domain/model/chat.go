package model

import (
	"time"
)

type ChatSessionStatus string

const (
	ChatSessionActive ChatSessionStatus = "active"
	ChatSessionClosed ChatSessionStatus = "closed"
)

// MaxQuestionChars is the maximum length of an outgoing question,
// measured after whitespace trimming.
const MaxQuestionChars = 2000

// ChatSession is the correlation triple forwarded to the answering backend
// unchanged, plus the patient binding and lifecycle bookkeeping. One session
// exists per active patient/document context and is replaced wholesale when
// the context changes.
type ChatSession struct {
	ID         string
	UserID     string
	DocumentID string
	PatientID  string
	Status     ChatSessionStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewChatSession(id, userID, documentID, patientID string) *ChatSession {
	return &ChatSession{
		ID:         id,
		UserID:     userID,
		DocumentID: documentID,
		PatientID:  patientID,
		Status:     ChatSessionActive,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

// Populated reports whether the session carries all three correlation fields
// required before any question may be sent.
func (s *ChatSession) Populated() bool {
	return s != nil && s.ID != "" && s.UserID != "" && s.DocumentID != ""
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatMessage is immutable once appended to a patient's sequence.
type ChatMessage struct {
	ID        string
	SessionID string
	Role      MessageRole
	Content   string
	Timestamp time.Time
}

// StreamEventType discriminates the streamed answer events.
type StreamEventType string

const (
	EventStart   StreamEventType = "start"
	EventContent StreamEventType = "content"
	EventEnd     StreamEventType = "end"
	EventError   StreamEventType = "error"
)

// StreamEvent is one element of the answer stream for a single question.
// Exactly one of the payload fields is meaningful depending on Type:
// InteractionID for start, Content for content, Err for error.
type StreamEvent struct {
	Type          StreamEventType
	InteractionID string
	Content       string
	Err           string
}
