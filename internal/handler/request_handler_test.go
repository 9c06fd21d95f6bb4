package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/labworks/labsched-api/internal/dto"
	"github.com/labworks/labsched-api/internal/models"
	"github.com/labworks/labsched-api/internal/repository"
	"github.com/labworks/labsched-api/internal/service"
	"github.com/labworks/labsched-api/pkg/response"
)

type requestRepoMock struct {
	requests map[string]*models.EquipmentRequest
}

func newRequestRepoMock() *requestRepoMock {
	return &requestRepoMock{requests: make(map[string]*models.EquipmentRequest)}
}

func (m *requestRepoMock) Create(ctx context.Context, request *models.EquipmentRequest) error {
	if request.ID == "" {
		request.ID = "req-1"
	}
	copy := *request
	m.requests[request.ID] = &copy
	return nil
}

func (m *requestRepoMock) GetByID(ctx context.Context, id string) (*models.EquipmentRequest, error) {
	if req, ok := m.requests[id]; ok {
		copy := *req
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *requestRepoMock) List(ctx context.Context, filter models.RequestFilter) ([]models.EquipmentRequest, error) {
	result := make([]models.EquipmentRequest, 0, len(m.requests))
	for _, req := range m.requests {
		result = append(result, *req)
	}
	return result, nil
}

func (m *requestRepoMock) UpdateStatus(ctx context.Context, params repository.UpdateRequestStatusParams) error {
	req, ok := m.requests[params.ID]
	if !ok || req.Status != params.FromStatus {
		return sql.ErrNoRows
	}
	req.Status = params.ToStatus
	req.ResponseNote = params.ResponseNote
	respondedAt := params.RespondedAt
	req.RespondedAt = &respondedAt
	return nil
}

type userDirectoryMock struct{}

func (userDirectoryMock) FindByID(ctx context.Context, id string) (*models.User, error) {
	if id == "assistant-1" {
		return &models.User{ID: "assistant-1", Role: models.RoleLabAssistant}, nil
	}
	return nil, sql.ErrNoRows
}

func newRequestHandlerForTest(repo *requestRepoMock) *RequestHandler {
	svc := service.NewRequestService(repo, userDirectoryMock{}, nil, nil, nil, nil)
	return NewRequestHandler(svc)
}

func TestRequestHandlerTransitionInvalid(t *testing.T) {
	repo := newRequestRepoMock()
	repo.requests["req-1"] = &models.EquipmentRequest{
		ID:          "req-1",
		TeacherID:   "teacher-1",
		AssistantID: "assistant-1",
		Status:      models.RequestApproved,
	}
	handler := newRequestHandlerForTest(repo)

	payload := dto.TransitionRequest{Status: models.RequestRejected}
	c, w := newSessionTestContext(t, http.MethodPatch, "/requests/req-1/status", payload, &models.JWTClaims{UserID: "assistant-1", Role: models.RoleLabAssistant})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Transition(c)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	require.Equal(t, "INVALID_TRANSITION", envelope.Error.Code)
}

func TestRequestHandlerTransitionApprove(t *testing.T) {
	repo := newRequestRepoMock()
	repo.requests["req-1"] = &models.EquipmentRequest{
		ID:          "req-1",
		TeacherID:   "teacher-1",
		AssistantID: "assistant-1",
		Status:      models.RequestPending,
	}
	handler := newRequestHandlerForTest(repo)

	payload := dto.TransitionRequest{Status: models.RequestApproved, ResponseNote: "ready friday"}
	c, w := newSessionTestContext(t, http.MethodPatch, "/requests/req-1/status", payload, &models.JWTClaims{UserID: "assistant-1", Role: models.RoleLabAssistant})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Transition(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.RequestApproved, repo.requests["req-1"].Status)
}

func TestRequestHandlerListRejectsUnknownStatus(t *testing.T) {
	handler := newRequestHandlerForTest(newRequestRepoMock())

	c, w := newSessionTestContext(t, http.MethodGet, "/requests?status=ARCHIVED", nil, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	handler.List(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestHandlerCreateForbiddenForAssistant(t *testing.T) {
	handler := newRequestHandlerForTest(newRequestRepoMock())

	payload := dto.CreateEquipmentRequest{
		AssistantID:  "assistant-1",
		Grade:        "11",
		ClassSection: "A",
		Subject:      "Chemistry",
		NeededDate:   "2099-01-10",
		NeededTime:   "10:30",
		Lines: []dto.EquipmentLineInput{
			{ItemName: "Beaker 250ml", Quantity: 12, Category: models.CategoryGlassware},
		},
	}
	c, w := newSessionTestContext(t, http.MethodPost, "/requests", payload, &models.JWTClaims{UserID: "assistant-1", Role: models.RoleLabAssistant})
	handler.Create(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}
