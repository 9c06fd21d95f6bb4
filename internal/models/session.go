package models

import (
	"time"

	"github.com/lib/pq"
)

// SessionStatus enumerates the lifecycle of a scheduled lab session.
type SessionStatus string

const (
	SessionUpcoming  SessionStatus = "UPCOMING"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionCancelled SessionStatus = "CANCELLED"
)

// Valid reports whether the status is one of the known lifecycle values.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionUpcoming, SessionCompleted, SessionCancelled:
		return true
	}
	return false
}

// TimeSlot identifies when a session takes place. Two slots collide when they
// share the calendar day and the exact start time; duration is carried for
// display but does not widen the collision window.
type TimeSlot struct {
	Date            time.Time `db:"session_date" json:"date"`
	StartTime       string    `db:"start_time" json:"start_time"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
}

// DayKey returns the calendar-day component of the slot key.
func (t TimeSlot) DayKey() string {
	return t.Date.Format("2006-01-02")
}

// Key uniquely identifies the slot bucket used for conflict checks and locking.
func (t TimeSlot) Key() string {
	return t.DayKey() + "@" + t.StartTime
}

// SameSlot reports whether two slots occupy the same (date, start time) bucket.
func (t TimeSlot) SameSlot(other TimeSlot) bool {
	return t.DayKey() == other.DayKey() && t.StartTime == other.StartTime
}

// Equal additionally compares duration.
func (t TimeSlot) Equal(other TimeSlot) bool {
	return t.SameSlot(other) && t.DurationMinutes == other.DurationMinutes
}

// Session represents one scheduled practical at a lab location for a class and teacher.
type Session struct {
	ID           string         `db:"id" json:"id"`
	Title        string         `db:"title" json:"title"`
	Subject      string         `db:"subject" json:"subject"`
	Grade        string         `db:"grade" json:"grade"`
	ClassSection string         `db:"class_section" json:"class_section"`
	TimeSlot
	Location     string         `db:"location" json:"location"`
	TeacherID    string         `db:"teacher_id" json:"teacher_id"`
	MaxOccupancy int            `db:"max_occupancy" json:"max_occupancy"`
	Requirements string         `db:"requirements" json:"requirements"`
	Attachments  pq.StringArray `db:"attachments" json:"attachments"`
	Status       SessionStatus  `db:"status" json:"status"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// Active reports whether the session still occupies its slot.
func (s Session) Active() bool {
	return s.Status != SessionCancelled
}

// SessionFilter describes query params for listing sessions.
type SessionFilter struct {
	Date         *time.Time
	TeacherID    string
	Status       SessionStatus
	Location     string
	Grade        string
	ClassSection string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// ConflictDimension names the axis on which two sessions collide.
type ConflictDimension string

const (
	ConflictLocation ConflictDimension = "LOCATION"
	ConflictClass    ConflictDimension = "CLASS"
	ConflictTeacher  ConflictDimension = "TEACHER"
)

// SessionConflict describes an existing session that blocks a booking.
type SessionConflict struct {
	SessionID    string            `json:"session_id"`
	Title        string            `json:"title"`
	Date         string            `json:"date"`
	StartTime    string            `json:"start_time"`
	Location     string            `json:"location"`
	Grade        string            `json:"grade"`
	ClassSection string            `json:"class_section"`
	TeacherID    string            `json:"teacher_id"`
	Dimension    ConflictDimension `json:"dimension"`
}

// SessionConflictError is returned when a booking collides with an existing session.
type SessionConflictError struct {
	Dimension ConflictDimension `json:"dimension"`
	Message   string            `json:"message"`
	Conflict  SessionConflict   `json:"conflict"`
}

// Error implements the error interface for conflict errors.
func (e *SessionConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
