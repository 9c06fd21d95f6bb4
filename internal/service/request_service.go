package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/labworks/labsched-api/internal/dto"
	"github.com/labworks/labsched-api/internal/models"
	"github.com/labworks/labsched-api/internal/repository"
	appErrors "github.com/labworks/labsched-api/pkg/errors"
)

type requestStore interface {
	Create(ctx context.Context, request *models.EquipmentRequest) error
	GetByID(ctx context.Context, id string) (*models.EquipmentRequest, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.EquipmentRequest, error)
	UpdateStatus(ctx context.Context, params repository.UpdateRequestStatusParams) error
}

type userDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type eventDispatcher interface {
	Dispatch(event models.RequestStatusEvent)
}

// RequestService orchestrates equipment request creation and lifecycle transitions.
type RequestService struct {
	repo      requestStore
	users     userDirectory
	notifier  eventDispatcher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewRequestService constructs the service.
func NewRequestService(repo requestStore, users userDirectory, notifier eventDispatcher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *RequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{
		repo:      repo,
		users:     users,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a new request in Pending state on behalf of the acting teacher.
func (s *RequestService) Create(ctx context.Context, req dto.CreateEquipmentRequest, actor *models.JWTClaims) (*models.EquipmentRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers may open equipment requests")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}

	if len(req.Lines) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one equipment line is required (field equipment_lines)")
	}
	lines := make([]models.EquipmentLine, 0, len(req.Lines))
	for i, line := range req.Lines {
		if strings.TrimSpace(line.ItemName) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("equipment line %d is missing an item name (field item_name)", i+1))
		}
		if line.Quantity <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("equipment line %d must have a positive quantity (field quantity)", i+1))
		}
		category := models.EquipmentCategory(strings.ToUpper(string(line.Category)))
		if !category.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("equipment line %d has an unknown category (field category)", i+1))
		}
		lines = append(lines, models.EquipmentLine{
			ItemName: strings.TrimSpace(line.ItemName),
			Quantity: line.Quantity,
			Category: category,
		})
	}

	neededDate, err := time.Parse("2006-01-02", req.NeededDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "needed_date must be formatted YYYY-MM-DD (field needed_date)")
	}
	today := s.now().Truncate(24 * time.Hour)
	if neededDate.Before(today) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "needed_date may not be in the past (field needed_date)")
	}
	if _, err := time.Parse("15:04", req.NeededTime); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "needed_time must be formatted HH:MM (field needed_time)")
	}

	assistant, err := s.users.FindByID(ctx, req.AssistantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "fulfilling lab assistant does not exist (field assistant_id)")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve lab assistant")
	}
	if assistant.Role != models.RoleLabAssistant {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignee is not a lab assistant (field assistant_id)")
	}

	request := &models.EquipmentRequest{
		TeacherID:    actor.UserID,
		AssistantID:  assistant.ID,
		Grade:        req.Grade,
		ClassSection: req.ClassSection,
		Subject:      req.Subject,
		NeededDate:   neededDate,
		NeededTime:   req.NeededTime,
		Notes:        req.Notes,
		Lines:        lines,
		Status:       models.RequestPending,
		CreatedAt:    s.now(),
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}
	return request, nil
}

// Get returns a request enforcing actor scope.
func (s *RequestService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.EquipmentRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleTeacher:
		if request.TeacherID != actor.UserID {
			return nil, appErrors.ErrForbidden
		}
	case models.RoleLabAssistant:
		if request.AssistantID != actor.UserID {
			return nil, appErrors.ErrForbidden
		}
	default:
		return nil, appErrors.ErrForbidden
	}
	return request, nil
}

// ListForActor returns the requests visible to the actor: teachers see what
// they authored, lab assistants what is assigned to them, admins everything.
func (s *RequestService) ListForActor(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]models.EquipmentRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.RequestFilter{
		Status: query.Status,
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	switch actor.Role {
	case models.RoleAdmin:
		// full visibility
	case models.RoleTeacher:
		filter.TeacherID = actor.UserID
	case models.RoleLabAssistant:
		filter.AssistantID = actor.UserID
	default:
		return nil, appErrors.ErrForbidden
	}
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, nil
}

// Transition advances a request along its lifecycle. Guards run in order:
// the request must exist, the actor must be its fulfilling lab assistant or
// an admin, and the target must be directly reachable from the current state.
// The persisted update is a compare-and-set; when a concurrent transition
// wins, the caller receives InvalidTransition with the fresh state.
func (s *RequestService) Transition(ctx context.Context, id string, target models.RequestStatus, responseNote string, actor *models.JWTClaims) (*models.EquipmentRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && !(actor.Role == models.RoleLabAssistant && request.AssistantID == actor.UserID) {
		s.metrics.RecordTransition(target, "forbidden")
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the fulfilling lab assistant or an admin may update this request")
	}
	if !target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown request status %q (field status)", target))
	}
	if !request.Status.CanTransitionTo(target) {
		return nil, s.invalidTransition(request.Status, target)
	}

	now := s.now()
	note := optionalString(responseNote)
	err = s.repo.UpdateStatus(ctx, repository.UpdateRequestStatusParams{
		ID:           request.ID,
		FromStatus:   request.Status,
		ToStatus:     target,
		ResponseNote: note,
		RespondedAt:  now,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost the compare-and-set race; report against the fresh state.
			fresh, loadErr := s.load(ctx, id)
			if loadErr != nil {
				return nil, loadErr
			}
			return nil, s.invalidTransition(fresh.Status, target)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request status")
	}

	from := request.Status
	request.Status = target
	request.ResponseNote = note
	request.RespondedAt = &now

	s.metrics.RecordTransition(target, "applied")
	s.emit(models.RequestStatusEvent{
		RequestID:    request.ID,
		FromStatus:   from,
		ToStatus:     target,
		ResponseNote: responseNote,
		Recipient:    request.TeacherID,
	})
	return request, nil
}

func (s *RequestService) emit(event models.RequestStatusEvent) {
	if s.notifier == nil {
		return
	}
	s.notifier.Dispatch(event)
}

func (s *RequestService) load(ctx context.Context, id string) (*models.EquipmentRequest, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}

func (s *RequestService) invalidTransition(current, attempted models.RequestStatus) error {
	s.metrics.RecordTransition(attempted, "invalid")
	domainErr := &models.TransitionError{Current: current, Attempted: attempted}
	return appErrors.Wrap(domainErr, appErrors.ErrInvalidTransition.Code, appErrors.ErrInvalidTransition.Status, domainErr.Error())
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
