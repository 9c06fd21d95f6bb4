package models

// RequestStatusEvent is emitted exactly once per successful request transition.
// Delivery of the actual email/SMS is the dispatcher's concern.
type RequestStatusEvent struct {
	RequestID    string        `json:"request_id"`
	FromStatus   RequestStatus `json:"from_status"`
	ToStatus     RequestStatus `json:"to_status"`
	ResponseNote string        `json:"response_note,omitempty"`
	Recipient    string        `json:"recipient"`
}
