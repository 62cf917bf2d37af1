package models

// SessionState enumerates where an operator is within the marking or
// browsing flow.
type SessionState string

const (
	StateIdle            SessionState = "idle"
	StateChoosingSubject SessionState = "choosing_subject"
	StateMarking         SessionState = "marking"
	StateAwaitingReason  SessionState = "awaiting_reason"
	StateBrowsingJournal SessionState = "browsing_journal"
)

// PendingReasonTarget records which record a free-text reply applies to and
// which previously rendered view must be refreshed once it arrives.
type PendingReasonTarget struct {
	Student   string `json:"student"`
	Subject   string `json:"subject"`
	MessageID int64  `json:"message_id"`
}

// Session is the per-operator conversation state. PendingReason is set if
// and only if State is StateAwaitingReason.
type Session struct {
	State         SessionState         `json:"state"`
	Subject       string               `json:"subject,omitempty"`
	PendingReason *PendingReasonTarget `json:"pending_reason,omitempty"`
}

// NewSession returns a session at the initial state.
func NewSession() Session {
	return Session{State: StateIdle}
}

// Reset clears the session back to idle, dropping any pending target.
func (s *Session) Reset() {
	s.State = StateIdle
	s.Subject = ""
	s.PendingReason = nil
}

// Role classifies an operator for authorization purposes.
type Role string

const (
	RoleNone    Role = "none"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)
