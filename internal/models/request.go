package models

import (
	"fmt"
	"time"
)

// RequestStatus captures workflow states for equipment requests.
type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestApproved  RequestStatus = "APPROVED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestPrepared  RequestStatus = "PREPARED"
	RequestCompleted RequestStatus = "COMPLETED"
)

// requestTransitions is the only place the request lifecycle is defined.
// A status never reverts and never skips ahead.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:  {RequestApproved, RequestRejected},
	RequestApproved: {RequestPrepared},
	RequestPrepared: {RequestCompleted},
}

// Valid reports whether the status is a known workflow state.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected, RequestPrepared, RequestCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are permitted.
func (s RequestStatus) Terminal() bool {
	return len(requestTransitions[s]) == 0
}

// CanTransitionTo reports whether target is directly reachable from s.
func (s RequestStatus) CanTransitionTo(target RequestStatus) bool {
	for _, next := range requestTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// TransitionError is returned when a status change violates the lifecycle graph.
type TransitionError struct {
	Current   RequestStatus `json:"current"`
	Attempted RequestStatus `json:"attempted"`
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("cannot transition request from %s to %s", e.Current, e.Attempted)
}

// EquipmentCategory classifies requested items.
type EquipmentCategory string

const (
	CategoryGlassware   EquipmentCategory = "GLASSWARE"
	CategoryInstruments EquipmentCategory = "INSTRUMENTS"
	CategoryChemicals   EquipmentCategory = "CHEMICALS"
	CategorySafety      EquipmentCategory = "SAFETY"
	CategoryOther       EquipmentCategory = "OTHER"
)

// Valid reports whether the category is enumerated.
func (c EquipmentCategory) Valid() bool {
	switch c {
	case CategoryGlassware, CategoryInstruments, CategoryChemicals, CategorySafety, CategoryOther:
		return true
	}
	return false
}

// EquipmentLine is one (item, quantity, category) entry within a request.
// Its identity is the ordinal within the owning request.
type EquipmentLine struct {
	RequestID string            `db:"request_id" json:"-"`
	Ordinal   int               `db:"ordinal" json:"ordinal"`
	ItemName  string            `db:"item_name" json:"item_name"`
	Quantity  int               `db:"quantity" json:"quantity"`
	Category  EquipmentCategory `db:"category" json:"category"`
}

// EquipmentRequest is a teacher's ask for equipment, routed to a lab assistant.
type EquipmentRequest struct {
	ID           string          `db:"id" json:"id"`
	TeacherID    string          `db:"teacher_id" json:"teacher_id"`
	AssistantID  string          `db:"assistant_id" json:"assistant_id"`
	Grade        string          `db:"grade" json:"grade"`
	ClassSection string          `db:"class_section" json:"class_section"`
	Subject      string          `db:"subject" json:"subject"`
	NeededDate   time.Time       `db:"needed_date" json:"needed_date"`
	NeededTime   string          `db:"needed_time" json:"needed_time"`
	Notes        string          `db:"notes" json:"notes"`
	Lines        []EquipmentLine `db:"-" json:"equipment_lines"`
	Status       RequestStatus   `db:"status" json:"status"`
	ResponseNote *string         `db:"response_note" json:"response_note,omitempty"`
	RespondedAt  *time.Time      `db:"responded_at" json:"responded_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// RequestFilter constrains listing queries.
type RequestFilter struct {
	TeacherID   string
	AssistantID string
	Status      []RequestStatus
	Limit       int
	Offset      int
}
