package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/labworks/labsched-api/internal/models"
)

const requestColumns = "id, teacher_id, assistant_id, grade, class_section, subject, needed_date, needed_time, notes, status, response_note, responded_at, created_at"

// RequestRepository persists equipment requests and their lines.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a request together with its equipment lines in one transaction.
func (r *RequestRepository) Create(ctx context.Context, request *models.EquipmentRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.RequestPending
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create request: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertRequest = `INSERT INTO equipment_requests (id, teacher_id, assistant_id, grade, class_section, subject, needed_date, needed_time, notes, status, response_note, responded_at, created_at)
	VALUES (:id, :teacher_id, :assistant_id, :grade, :class_section, :subject, :needed_date, :needed_time, :notes, :status, :response_note, :responded_at, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertRequest, request); err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	const insertLine = `INSERT INTO equipment_lines (request_id, ordinal, item_name, quantity, category)
	VALUES (:request_id, :ordinal, :item_name, :quantity, :category)`
	for i := range request.Lines {
		request.Lines[i].RequestID = request.ID
		request.Lines[i].Ordinal = i + 1
		if _, err = tx.NamedExecContext(ctx, insertLine, &request.Lines[i]); err != nil {
			return fmt.Errorf("create request line %d: %w", i+1, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create request: %w", err)
	}
	return nil
}

// GetByID fetches a request with its lines ordered by ordinal.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.EquipmentRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM equipment_requests WHERE id = $1", requestColumns)
	var request models.EquipmentRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}

	const lineQuery = `SELECT request_id, ordinal, item_name, quantity, category FROM equipment_lines WHERE request_id = $1 ORDER BY ordinal ASC`
	if err := r.db.SelectContext(ctx, &request.Lines, lineQuery, id); err != nil {
		return nil, fmt.Errorf("load request lines: %w", err)
	}
	return &request, nil
}

// List returns requests matching the filter (latest first) with lines attached.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.EquipmentRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString("SELECT " + requestColumns + " FROM equipment_requests")

	conditions := make([]string, 0, 3)
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)))
	}
	if filter.AssistantID != "" {
		args = append(args, filter.AssistantID)
		conditions = append(conditions, fmt.Sprintf("assistant_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.EquipmentRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	if err := r.attachLines(ctx, requests); err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *RequestRepository) attachLines(ctx context.Context, requests []models.EquipmentRequest) error {
	if len(requests) == 0 {
		return nil
	}
	ids := make([]string, len(requests))
	index := make(map[string]int, len(requests))
	for i, request := range requests {
		ids[i] = request.ID
		index[request.ID] = i
	}

	const query = `SELECT request_id, ordinal, item_name, quantity, category FROM equipment_lines WHERE request_id = ANY($1) ORDER BY request_id, ordinal ASC`
	var lines []models.EquipmentLine
	if err := r.db.SelectContext(ctx, &lines, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("load request lines: %w", err)
	}
	for _, line := range lines {
		if i, ok := index[line.RequestID]; ok {
			requests[i].Lines = append(requests[i].Lines, line)
		}
	}
	return nil
}

// UpdateRequestStatusParams groups the mutable columns of a status transition.
type UpdateRequestStatusParams struct {
	ID           string
	FromStatus   models.RequestStatus
	ToStatus     models.RequestStatus
	ResponseNote *string
	RespondedAt  time.Time
}

// UpdateStatus advances the request status with a compare-and-set on the
// current value. sql.ErrNoRows signals the stored status no longer matches
// FromStatus, i.e. a concurrent transition won.
func (r *RequestRepository) UpdateStatus(ctx context.Context, params UpdateRequestStatusParams) error {
	const query = `UPDATE equipment_requests SET status = :to_status, response_note = :response_note, responded_at = :responded_at WHERE id = :id AND status = :from_status`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":            params.ID,
		"from_status":   params.FromStatus,
		"to_status":     params.ToStatus,
		"response_note": params.ResponseNote,
		"responded_at":  params.RespondedAt,
	})
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check request status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
