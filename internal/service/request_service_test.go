package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/labworks/labsched-api/internal/dto"
	"github.com/labworks/labsched-api/internal/models"
	"github.com/labworks/labsched-api/internal/repository"
	appErrors "github.com/labworks/labsched-api/pkg/errors"
)

type requestRepoStub struct {
	mu       sync.Mutex
	requests map[string]*models.EquipmentRequest
	filter   models.RequestFilter
}

func newRequestRepoStub() *requestRepoStub {
	return &requestRepoStub{requests: make(map[string]*models.EquipmentRequest)}
}

func (r *requestRepoStub) Create(ctx context.Context, request *models.EquipmentRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if request.ID == "" {
		request.ID = "req-1"
	}
	copy := *request
	r.requests[request.ID] = &copy
	return nil
}

func (r *requestRepoStub) GetByID(ctx context.Context, id string) (*models.EquipmentRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.requests[id]; ok {
		copy := *req
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *requestRepoStub) List(ctx context.Context, filter models.RequestFilter) ([]models.EquipmentRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filter = filter
	result := make([]models.EquipmentRequest, 0, len(r.requests))
	for _, req := range r.requests {
		result = append(result, *req)
	}
	return result, nil
}

func (r *requestRepoStub) UpdateStatus(ctx context.Context, params repository.UpdateRequestStatusParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[params.ID]
	if !ok || req.Status != params.FromStatus {
		return sql.ErrNoRows
	}
	req.Status = params.ToStatus
	req.ResponseNote = params.ResponseNote
	respondedAt := params.RespondedAt
	req.RespondedAt = &respondedAt
	return nil
}

type userDirectoryStub struct {
	users map[string]*models.User
}

func (u *userDirectoryStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := u.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

type dispatcherStub struct {
	mu     sync.Mutex
	events []models.RequestStatusEvent
}

func (d *dispatcherStub) Dispatch(event models.RequestStatusEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *dispatcherStub) Events() []models.RequestStatusEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.RequestStatusEvent(nil), d.events...)
}

func assistantDirectory() *userDirectoryStub {
	return &userDirectoryStub{users: map[string]*models.User{
		"assistant-1": {ID: "assistant-1", Role: models.RoleLabAssistant},
		"teacher-2":   {ID: "teacher-2", Role: models.RoleTeacher},
	}}
}

func assistantClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleLabAssistant}
}

func validRequestPayload() dto.CreateEquipmentRequest {
	return dto.CreateEquipmentRequest{
		AssistantID:  "assistant-1",
		Grade:        "11",
		ClassSection: "A",
		Subject:      "Chemistry",
		NeededDate:   "2025-09-15",
		NeededTime:   "10:30",
		Lines: []dto.EquipmentLineInput{
			{ItemName: "Beaker 250ml", Quantity: 12, Category: models.CategoryGlassware},
			{ItemName: "Hydrochloric acid", Quantity: 1, Category: models.CategoryChemicals},
		},
	}
}

func newRequestServiceForTest(repo *requestRepoStub, dispatcher *dispatcherStub) *RequestService {
	svc := NewRequestService(repo, assistantDirectory(), dispatcher, nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC) }
	return svc
}

func TestRequestServiceCreate(t *testing.T) {
	repo := newRequestRepoStub()
	svc := newRequestServiceForTest(repo, nil)

	request, err := svc.Create(context.Background(), validRequestPayload(), teacherClaims("teacher-1"))
	require.NoError(t, err)
	require.Equal(t, models.RequestPending, request.Status)
	require.Equal(t, "teacher-1", request.TeacherID)
	require.Equal(t, "assistant-1", request.AssistantID)
	require.Len(t, request.Lines, 2)
}

func TestRequestServiceCreateRequiresTeacher(t *testing.T) {
	repo := newRequestRepoStub()
	svc := newRequestServiceForTest(repo, nil)

	_, err := svc.Create(context.Background(), validRequestPayload(), assistantClaims("assistant-1"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceCreateRejectsEmptyLines(t *testing.T) {
	repo := newRequestRepoStub()
	svc := newRequestServiceForTest(repo, nil)

	payload := validRequestPayload()
	payload.Lines = nil
	_, err := svc.Create(context.Background(), payload, teacherClaims("teacher-1"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	require.Contains(t, appErr.Message, "equipment_lines")
}

func TestRequestServiceCreateRejectsBadLines(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(p *dto.CreateEquipmentRequest)
		field  string
	}{
		{"missing item name", func(p *dto.CreateEquipmentRequest) { p.Lines[0].ItemName = "  " }, "item_name"},
		{"zero quantity", func(p *dto.CreateEquipmentRequest) { p.Lines[1].Quantity = 0 }, "quantity"},
		{"unknown category", func(p *dto.CreateEquipmentRequest) { p.Lines[0].Category = "FURNITURE" }, "category"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newRequestRepoStub()
			svc := newRequestServiceForTest(repo, nil)

			payload := validRequestPayload()
			tc.mutate(&payload)
			_, err := svc.Create(context.Background(), payload, teacherClaims("teacher-1"))
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
			require.Contains(t, appErr.Message, tc.field)
		})
	}
}

func TestRequestServiceCreateRejectsPastDate(t *testing.T) {
	repo := newRequestRepoStub()
	svc := newRequestServiceForTest(repo, nil)

	payload := validRequestPayload()
	payload.NeededDate = "2025-08-31"
	_, err := svc.Create(context.Background(), payload, teacherClaims("teacher-1"))
	require.Error(t, err)
	require.Contains(t, appErrors.FromError(err).Message, "needed_date")
}

func TestRequestServiceCreateValidatesAssistant(t *testing.T) {
	repo := newRequestRepoStub()
	svc := newRequestServiceForTest(repo, nil)

	payload := validRequestPayload()
	payload.AssistantID = "missing"
	_, err := svc.Create(context.Background(), payload, teacherClaims("teacher-1"))
	require.Error(t, err)
	require.Contains(t, appErrors.FromError(err).Message, "assistant_id")

	payload.AssistantID = "teacher-2"
	_, err = svc.Create(context.Background(), payload, teacherClaims("teacher-1"))
	require.Error(t, err)
	require.Contains(t, appErrors.FromError(err).Message, "assistant_id")
}

func seedRequest(repo *requestRepoStub, status models.RequestStatus) *models.EquipmentRequest {
	request := &models.EquipmentRequest{
		ID:          "req-1",
		TeacherID:   "teacher-1",
		AssistantID: "assistant-1",
		Status:      status,
	}
	repo.requests[request.ID] = request
	return request
}

func TestRequestServiceTransitionApprove(t *testing.T) {
	repo := newRequestRepoStub()
	dispatcher := &dispatcherStub{}
	svc := newRequestServiceForTest(repo, dispatcher)
	seedRequest(repo, models.RequestPending)

	updated, err := svc.Transition(context.Background(), "req-1", models.RequestApproved, "ready friday", assistantClaims("assistant-1"))
	require.NoError(t, err)
	require.Equal(t, models.RequestApproved, updated.Status)
	require.NotNil(t, updated.ResponseNote)
	require.Equal(t, "ready friday", *updated.ResponseNote)
	require.NotNil(t, updated.RespondedAt)

	events := dispatcher.Events()
	require.Len(t, events, 1)
	require.Equal(t, "req-1", events[0].RequestID)
	require.Equal(t, models.RequestPending, events[0].FromStatus)
	require.Equal(t, models.RequestApproved, events[0].ToStatus)
	require.Equal(t, "teacher-1", events[0].Recipient)
}

func TestRequestServiceTransitionForbiddenActors(t *testing.T) {
	repo := newRequestRepoStub()
	dispatcher := &dispatcherStub{}
	svc := newRequestServiceForTest(repo, dispatcher)
	seedRequest(repo, models.RequestPending)

	// The authoring teacher cannot decide their own request.
	_, err := svc.Transition(context.Background(), "req-1", models.RequestApproved, "", teacherClaims("teacher-1"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// Neither can a lab assistant it is not assigned to.
	_, err = svc.Transition(context.Background(), "req-1", models.RequestApproved, "", assistantClaims("assistant-2"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.Empty(t, dispatcher.Events())
}

func TestRequestServiceTransitionInvalid(t *testing.T) {
	repo := newRequestRepoStub()
	dispatcher := &dispatcherStub{}
	svc := newRequestServiceForTest(repo, dispatcher)
	seedRequest(repo, models.RequestApproved)

	_, err := svc.Transition(context.Background(), "req-1", models.RequestRejected, "", assistantClaims("assistant-1"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)

	var transitionErr *models.TransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, models.RequestApproved, transitionErr.Current)
	require.Equal(t, models.RequestRejected, transitionErr.Attempted)
	require.Empty(t, dispatcher.Events())
}

func TestRequestServiceTransitionAdminAllowed(t *testing.T) {
	repo := newRequestRepoStub()
	dispatcher := &dispatcherStub{}
	svc := newRequestServiceForTest(repo, dispatcher)
	seedRequest(repo, models.RequestApproved)

	updated, err := svc.Transition(context.Background(), "req-1", models.RequestPrepared, "", adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.RequestPrepared, updated.Status)
	require.Nil(t, updated.ResponseNote)
}

func TestRequestServiceTransitionNotFound(t *testing.T) {
	repo := newRequestRepoStub()
	svc := newRequestServiceForTest(repo, nil)

	_, err := svc.Transition(context.Background(), "missing", models.RequestApproved, "", adminClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceTransitionConcurrentDecision(t *testing.T) {
	repo := newRequestRepoStub()
	dispatcher := &dispatcherStub{}
	svc := newRequestServiceForTest(repo, dispatcher)
	seedRequest(repo, models.RequestPending)

	var wg sync.WaitGroup
	results := make([]error, 2)
	targets := []models.RequestStatus{models.RequestApproved, models.RequestRejected}
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target models.RequestStatus) {
			defer wg.Done()
			_, results[i] = svc.Transition(context.Background(), "req-1", target, "", assistantClaims("assistant-1"))
		}(i, target)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	}
	require.Equal(t, 1, succeeded)
	require.Len(t, dispatcher.Events(), 1)
}

func TestRequestServiceListScopes(t *testing.T) {
	repo := newRequestRepoStub()
	svc := newRequestServiceForTest(repo, nil)
	seedRequest(repo, models.RequestPending)

	_, err := svc.ListForActor(context.Background(), dto.RequestQuery{}, teacherClaims("teacher-1"))
	require.NoError(t, err)
	require.Equal(t, "teacher-1", repo.filter.TeacherID)

	_, err = svc.ListForActor(context.Background(), dto.RequestQuery{}, assistantClaims("assistant-1"))
	require.NoError(t, err)
	require.Equal(t, "assistant-1", repo.filter.AssistantID)

	_, err = svc.ListForActor(context.Background(), dto.RequestQuery{}, adminClaims())
	require.NoError(t, err)
	require.Empty(t, repo.filter.TeacherID)
	require.Empty(t, repo.filter.AssistantID)
}

func TestRequestServiceGetScopes(t *testing.T) {
	repo := newRequestRepoStub()
	svc := newRequestServiceForTest(repo, nil)
	seedRequest(repo, models.RequestPending)

	_, err := svc.Get(context.Background(), "req-1", teacherClaims("teacher-1"))
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "req-1", teacherClaims("teacher-9"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Get(context.Background(), "req-1", assistantClaims("assistant-1"))
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "req-1", adminClaims())
	require.NoError(t, err)
}
