package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrAlreadyExists    = errors.New("entity already exists")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNoActiveSession  = errors.New("no active chat session")
	ErrEmptyQuestion    = errors.New("question is empty")
	ErrQuestionTooLong  = errors.New("question exceeds length limit")
	ErrTurnInFlight     = errors.New("a chat turn is already in flight")
	ErrSessionClosed    = errors.New("chat session is closed")
	ErrRateLimited      = errors.New("too many requests")
	ErrUnsupportedMedia = errors.New("unsupported document format")
)
