package coffee

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// Session is one in-flight group order.
type Session struct {
	ID           uuid.UUID
	InitiatorID  uuid.UUID
	Participants []uuid.UUID
	CardSnapshot []uuid.UUID
	Group        *GroupState
	Status       SessionStatus
	SubmittedBy  *uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

func (s *Session) IsActive() bool {
	return s.Status == SessionActive
}

func (s *Session) HasParticipant(id uuid.UUID) bool {
	for _, p := range s.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// AddParticipant reports whether id was newly added.
func (s *Session) AddParticipant(id uuid.UUID) bool {
	if s.HasParticipant(id) {
		return false
	}
	s.Participants = append(s.Participants, id)
	return true
}

// RemoveParticipant reports whether id was present.
func (s *Session) RemoveParticipant(id uuid.UUID) bool {
	for i, p := range s.Participants {
		if p == id {
			s.Participants = append(s.Participants[:i], s.Participants[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Session) Clone() *Session {
	out := *s
	out.Participants = append([]uuid.UUID(nil), s.Participants...)
	out.CardSnapshot = append([]uuid.UUID(nil), s.CardSnapshot...)
	if s.Group != nil {
		out.Group = s.Group.Clone()
	}
	if s.SubmittedBy != nil {
		id := *s.SubmittedBy
		out.SubmittedBy = &id
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
