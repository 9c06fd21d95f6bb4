package dto

import "github.com/labworks/labsched-api/internal/models"

// EquipmentLineInput is one requested item within a create payload.
type EquipmentLineInput struct {
	ItemName string                   `json:"item_name" validate:"required"`
	Quantity int                      `json:"quantity" validate:"required,gt=0"`
	Category models.EquipmentCategory `json:"category" validate:"required"`
}

// CreateEquipmentRequest is the payload for opening a new equipment request.
type CreateEquipmentRequest struct {
	AssistantID  string               `json:"assistant_id" validate:"required"`
	Grade        string               `json:"grade" validate:"required"`
	ClassSection string               `json:"class_section" validate:"required"`
	Subject      string               `json:"subject" validate:"required"`
	NeededDate   string               `json:"needed_date" validate:"required"`
	NeededTime   string               `json:"needed_time" validate:"required"`
	Notes        string               `json:"notes"`
	Lines        []EquipmentLineInput `json:"equipment_lines"`
}

// TransitionRequest asks to advance a request to a target status.
type TransitionRequest struct {
	Status       models.RequestStatus `json:"status" validate:"required"`
	ResponseNote string               `json:"response_note"`
}

// RequestQuery narrows request listings.
type RequestQuery struct {
	Status []models.RequestStatus
	Limit  int
	Offset int
}
