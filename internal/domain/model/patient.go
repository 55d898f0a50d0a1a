package model

import "time"

// Patient is immutable reference data; it is selected by the surrounding
// application flow, never mutated by the chat core.
type Patient struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

func NewPatient(id, displayName string) *Patient {
	return &Patient{
		ID:          id,
		DisplayName: displayName,
		CreatedAt:   time.Now(),
	}
}
