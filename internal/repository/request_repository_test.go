package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/labworks/labsched-api/internal/models"
)

func newRequestRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func requestRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "teacher_id", "assistant_id", "grade", "class_section", "subject", "needed_date", "needed_time", "notes", "status", "response_note", "responded_at", "created_at"})
}

func lineRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"request_id", "ordinal", "item_name", "quantity", "category"})
}

func TestRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO equipment_requests")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO equipment_lines")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO equipment_lines")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	request := &models.EquipmentRequest{
		TeacherID:    "teacher-1",
		AssistantID:  "assistant-1",
		Grade:        "11",
		ClassSection: "A",
		Subject:      "Chemistry",
		NeededDate:   time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC),
		NeededTime:   "10:30",
		Lines: []models.EquipmentLine{
			{ItemName: "Beaker 250ml", Quantity: 12, Category: models.CategoryGlassware},
			{ItemName: "Burette", Quantity: 6, Category: models.CategoryInstruments},
		},
	}
	require.NoError(t, repo.Create(context.Background(), request))
	require.NotEmpty(t, request.ID)
	require.Equal(t, models.RequestPending, request.Status)
	require.Equal(t, 1, request.Lines[0].Ordinal)
	require.Equal(t, 2, request.Lines[1].Ordinal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, teacher_id, assistant_id")).
		WithArgs("req-1").
		WillReturnRows(requestRows().
			AddRow("req-1", "teacher-1", "assistant-1", "11", "A", "Chemistry", time.Now(), "10:30", "", "PENDING", nil, nil, time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("FROM equipment_lines WHERE request_id = $1")).
		WithArgs("req-1").
		WillReturnRows(lineRows().
			AddRow("req-1", 1, "Beaker 250ml", 12, "GLASSWARE").
			AddRow("req-1", 2, "Burette", 6, "INSTRUMENTS"))

	request, err := repo.GetByID(context.Background(), "req-1")
	require.NoError(t, err)
	require.Equal(t, models.RequestPending, request.Status)
	require.Len(t, request.Lines, 2)
	require.Equal(t, "Burette", request.Lines[1].ItemName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryUpdateStatusCompareAndSet(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE equipment_requests SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	params := UpdateRequestStatusParams{
		ID:          "req-1",
		FromStatus:  models.RequestPending,
		ToStatus:    models.RequestApproved,
		RespondedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.UpdateStatus(context.Background(), params))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryUpdateStatusLostRace(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE equipment_requests SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	params := UpdateRequestStatusParams{
		ID:          "req-1",
		FromStatus:  models.RequestPending,
		ToStatus:    models.RequestRejected,
		RespondedAt: time.Now().UTC(),
	}
	err := repo.UpdateStatus(context.Background(), params)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListByAssistant(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("assistant_id = $1 AND status IN ($2)")).
		WithArgs("assistant-1", string(models.RequestPending)).
		WillReturnRows(requestRows().
			AddRow("req-1", "teacher-1", "assistant-1", "11", "A", "Chemistry", time.Now(), "10:30", "", "PENDING", nil, nil, time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("FROM equipment_lines WHERE request_id = ANY($1)")).
		WillReturnRows(lineRows().
			AddRow("req-1", 1, "Beaker 250ml", 12, "GLASSWARE"))

	requests, err := repo.List(context.Background(), models.RequestFilter{
		AssistantID: "assistant-1",
		Status:      []models.RequestStatus{models.RequestPending},
	})
	require.NoError(t, err)
	require.Len(t, requests, 1)
	require.Len(t, requests[0].Lines, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
