package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/labworks/labsched-api/internal/models"
	appErrors "github.com/labworks/labsched-api/pkg/errors"
)

type sessionRepository interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindActiveBySlot(ctx context.Context, date time.Time, startTime string) ([]models.Session, error)
	ListByDate(ctx context.Context, date time.Time) ([]models.Session, error)
	ListUpcomingByTeacher(ctx context.Context, teacherID string, limit int) ([]models.Session, error)
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error
	Delete(ctx context.Context, id string) error
}

// CreateSessionRequest describes payload for booking a session.
type CreateSessionRequest struct {
	Title           string   `json:"title" validate:"required"`
	Subject         string   `json:"subject" validate:"required"`
	Grade           string   `json:"grade" validate:"required"`
	ClassSection    string   `json:"class_section" validate:"required"`
	Date            string   `json:"date" validate:"required"`
	StartTime       string   `json:"start_time" validate:"required"`
	DurationMinutes int      `json:"duration_minutes" validate:"required,gt=0"`
	Location        string   `json:"location" validate:"required"`
	TeacherID       string   `json:"teacher_id" validate:"required"`
	MaxOccupancy    int      `json:"max_occupancy" validate:"required,gt=0"`
	Requirements    string   `json:"requirements"`
	Attachments     []string `json:"attachments"`
}

// UpdateSessionRequest rebooks an existing session.
type UpdateSessionRequest = CreateSessionRequest

// slotLocker serialises read-check-write sequences per (date, start time)
// bucket so two concurrent bookings cannot both pass a stale conflict check.
type slotLocker struct {
	mu    sync.Mutex
	slots map[string]*sync.Mutex
}

func newSlotLocker() *slotLocker {
	return &slotLocker{slots: make(map[string]*sync.Mutex)}
}

func (l *slotLocker) lock(key string) func() {
	l.mu.Lock()
	m, ok := l.slots[key]
	if !ok {
		m = &sync.Mutex{}
		l.slots[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// SessionService coordinates session booking, rebooking and calendar queries.
type SessionService struct {
	repo      sessionRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	locks     *slotLocker
}

// NewSessionService instantiates SessionService.
func NewSessionService(repo sessionRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		repo:      repo,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		locks:     newSlotLocker(),
	}
}

// List returns sessions with pagination metadata.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, *models.Pagination, error) {
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return sessions, pagination, nil
}

// Get loads one session.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// ListForDate returns the day calendar view, served from cache when possible.
func (s *SessionService) ListForDate(ctx context.Context, date time.Time) ([]models.Session, error) {
	key := dayCacheKey(date)
	var cached []models.Session
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	sessions, err := s.repo.ListByDate(ctx, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list day sessions")
	}
	s.cache.Set(ctx, key, sessions)
	return sessions, nil
}

// FlushDayViews drops every cached day view. Called at startup so entries
// written by an older build never serve a stale payload shape.
func (s *SessionService) FlushDayViews(ctx context.Context) {
	s.cache.InvalidatePattern(ctx, dayCachePattern)
}

// ListUpcomingForTeacher returns a teacher's next sessions ordered by (date, time).
func (s *SessionService) ListUpcomingForTeacher(ctx context.Context, teacherID string, limit int) ([]models.Session, error) {
	sessions, err := s.repo.ListUpcomingByTeacher(ctx, teacherID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list upcoming sessions")
	}
	return sessions, nil
}

// Create books a new session after conflict detection. The read-check-write
// sequence is serialised per slot bucket.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest, actor *models.JWTClaims) (*models.Session, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.CanSchedule() {
		return nil, appErrors.ErrForbidden
	}
	session, err := s.sessionFromRequest(req)
	if err != nil {
		return nil, err
	}
	// A teacher books on their own behalf only.
	if actor.Role == models.RoleTeacher && session.TeacherID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "teachers may only schedule their own sessions")
	}

	unlock := s.locks.lock(session.Key())
	defer unlock()

	if err := s.ensureNoConflict(ctx, *session, ""); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	s.cache.Invalidate(ctx, dayCacheKey(session.Date))
	return session, nil
}

// Update rebooks an existing session, checking conflicts against everything
// except its own prior booking.
func (s *SessionService) Update(ctx context.Context, id string, req UpdateSessionRequest, actor *models.JWTClaims) (*models.Session, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwnerOrAdmin(actor, existing.TeacherID); err != nil {
		return nil, err
	}

	updated, err := s.sessionFromRequest(req)
	if err != nil {
		return nil, err
	}
	updated.ID = existing.ID
	updated.Status = existing.Status
	updated.CreatedAt = existing.CreatedAt
	if actor.Role == models.RoleTeacher && updated.TeacherID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "teachers may not reassign a session to another teacher")
	}

	unlock := s.locks.lock(updated.Key())
	defer unlock()

	if err := s.ensureNoConflict(ctx, *updated, existing.ID); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}
	s.cache.Invalidate(ctx, dayCacheKey(existing.Date))
	if !updated.Date.Equal(existing.Date) {
		s.cache.Invalidate(ctx, dayCacheKey(updated.Date))
	}
	return updated, nil
}

// UpdateStatus flips the session lifecycle field. Any scheduling-capable role
// may do this. Moving away from UPCOMING is an ungated field update; moving
// back to UPCOMING re-occupies the slot, so it repeats conflict detection
// under the slot lock before committing.
func (s *SessionService) UpdateStatus(ctx context.Context, id string, status models.SessionStatus, actor *models.JWTClaims) (*models.Session, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.CanSchedule() {
		return nil, appErrors.ErrForbidden
	}
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown session status %q (field status)", status))
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if status == models.SessionUpcoming && existing.Status != models.SessionUpcoming {
		unlock := s.locks.lock(existing.Key())
		defer unlock()
		if err := s.ensureNoConflict(ctx, *existing, existing.ID); err != nil {
			return nil, err
		}
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session status")
	}
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, dayCacheKey(session.Date))
	return session, nil
}

// Delete removes a session. Attached equipment requests keep their own
// lifecycle; deletion is not blocked by them.
func (s *SessionService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := requireOwnerOrAdmin(actor, existing.TeacherID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	s.cache.Invalidate(ctx, dayCacheKey(existing.Date))
	return nil
}

func (s *SessionService) ensureNoConflict(ctx context.Context, candidate models.Session, ignoreID string) error {
	existing, err := s.repo.FindActiveBySlot(ctx, candidate.Date, candidate.StartTime)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check session conflicts")
	}
	conflict := DetectConflict(candidate, existing, ignoreID)
	if conflict == nil {
		return nil
	}
	s.metrics.RecordConflict(conflict.Dimension)
	domainErr := &models.SessionConflictError{
		Dimension: conflict.Dimension,
		Message:   conflictMessage(conflict.Dimension),
		Conflict:  *conflict,
	}
	return appErrors.Wrap(domainErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, fmt.Sprintf("session conflict: %s", domainErr.Message))
}

func (s *SessionService) sessionFromRequest(req CreateSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted YYYY-MM-DD (field date)")
	}
	if _, err := time.Parse("15:04", req.StartTime); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be formatted HH:MM (field start_time)")
	}
	return &models.Session{
		Title:        req.Title,
		Subject:      req.Subject,
		Grade:        req.Grade,
		ClassSection: req.ClassSection,
		TimeSlot: models.TimeSlot{
			Date:            date,
			StartTime:       req.StartTime,
			DurationMinutes: req.DurationMinutes,
		},
		Location:     req.Location,
		TeacherID:    req.TeacherID,
		MaxOccupancy: req.MaxOccupancy,
		Requirements: req.Requirements,
		Attachments:  pq.StringArray(req.Attachments),
		Status:       models.SessionUpcoming,
	}, nil
}

func requireOwnerOrAdmin(actor *models.JWTClaims, ownerID string) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if actor.UserID == ownerID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "only the owning teacher or an admin may modify this session")
}

func conflictMessage(dimension models.ConflictDimension) string {
	switch dimension {
	case models.ConflictLocation:
		return "lab location already booked for this slot"
	case models.ConflictClass:
		return "class already has a session in this slot"
	case models.ConflictTeacher:
		return "teacher already has a session in this slot"
	}
	return "slot already taken"
}

const dayCachePattern = "sessions:day:*"

func dayCacheKey(date time.Time) string {
	return "sessions:day:" + date.Format("2006-01-02")
}
