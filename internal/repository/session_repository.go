package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/labworks/labsched-api/internal/models"
)

const sessionColumns = "id, title, subject, grade, class_section, session_date, start_time, duration_minutes, location, teacher_id, max_occupancy, requirements, attachments, status, created_at, updated_at"

// SessionRepository provides persistence for scheduled lab sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// List returns sessions with optional filtering and pagination.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	base := "FROM lab_sessions WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Date != nil {
		conditions = append(conditions, fmt.Sprintf("session_date = $%d", len(args)+1))
		args = append(args, filter.Date.Format("2006-01-02"))
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Location != "" {
		conditions = append(conditions, fmt.Sprintf("location = $%d", len(args)+1))
		args = append(args, filter.Location)
	}
	if filter.Grade != "" {
		conditions = append(conditions, fmt.Sprintf("grade = $%d", len(args)+1))
		args = append(args, filter.Grade)
	}
	if filter.ClassSection != "" {
		conditions = append(conditions, fmt.Sprintf("class_section = $%d", len(args)+1))
		args = append(args, filter.ClassSection)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"session_date": true,
		"start_time":   true,
		"location":     true,
		"created_at":   true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "session_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s, start_time ASC LIMIT %d OFFSET %d", sessionColumns, base, sortBy, order, size, offset)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	return sessions, total, nil
}

// FindByID loads a session by id.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM lab_sessions WHERE id = $1", sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindActiveBySlot returns non-cancelled sessions occupying the exact (date, start time) bucket.
func (r *SessionRepository) FindActiveBySlot(ctx context.Context, date time.Time, startTime string) ([]models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM lab_sessions WHERE session_date = $1 AND start_time = $2 AND status <> $3", sessionColumns)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, date.Format("2006-01-02"), startTime, models.SessionCancelled); err != nil {
		return nil, fmt.Errorf("find sessions by slot: %w", err)
	}
	return sessions, nil
}

// ListByDate returns non-cancelled sessions for one calendar day ordered by start time.
func (r *SessionRepository) ListByDate(ctx context.Context, date time.Time) ([]models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM lab_sessions WHERE session_date = $1 AND status <> $2 ORDER BY start_time ASC", sessionColumns)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, date.Format("2006-01-02"), models.SessionCancelled); err != nil {
		return nil, fmt.Errorf("list sessions by date: %w", err)
	}
	return sessions, nil
}

// ListUpcomingByTeacher returns a teacher's upcoming sessions ordered by (date, time).
func (r *SessionRepository) ListUpcomingByTeacher(ctx context.Context, teacherID string, limit int) ([]models.Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := fmt.Sprintf("SELECT %s FROM lab_sessions WHERE teacher_id = $1 AND status = $2 ORDER BY session_date ASC, start_time ASC LIMIT %d", sessionColumns, limit)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, teacherID, models.SessionUpcoming); err != nil {
		return nil, fmt.Errorf("list upcoming sessions: %w", err)
	}
	return sessions, nil
}

// Create stores a new session record.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = models.SessionUpcoming
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	const query = `INSERT INTO lab_sessions (id, title, subject, grade, class_section, session_date, start_time, duration_minutes, location, teacher_id, max_occupancy, requirements, attachments, status, created_at, updated_at)
	VALUES (:id, :title, :subject, :grade, :class_section, :session_date, :start_time, :duration_minutes, :location, :teacher_id, :max_occupancy, :requirements, :attachments, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Update modifies a session record.
func (r *SessionRepository) Update(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lab_sessions SET title = :title, subject = :subject, grade = :grade, class_section = :class_section, session_date = :session_date, start_time = :start_time, duration_minutes = :duration_minutes, location = :location, teacher_id = :teacher_id, max_occupancy = :max_occupancy, requirements = :requirements, attachments = :attachments, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// UpdateStatus sets only the lifecycle status of a session.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error {
	result, err := r.db.ExecContext(ctx, `UPDATE lab_sessions SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check session status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a session by id.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM lab_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
