package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/labworks/labsched-api/internal/models"
)

func slotSession(id, location, grade, section, teacherID string, start string) models.Session {
	return models.Session{
		ID:           id,
		Title:        "Practical " + id,
		Grade:        grade,
		ClassSection: section,
		TimeSlot: models.TimeSlot{
			Date:            time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC),
			StartTime:       start,
			DurationMinutes: 60,
		},
		Location:  location,
		TeacherID: teacherID,
		Status:    models.SessionUpcoming,
	}
}

func TestDetectConflictLocation(t *testing.T) {
	existing := []models.Session{slotSession("s1", "Lab A", "10", "A", "t1", "10:30")}
	candidate := slotSession("", "lab a", "11", "B", "t2", "10:30")

	conflict := DetectConflict(candidate, existing, "")
	require.NotNil(t, conflict)
	require.Equal(t, models.ConflictLocation, conflict.Dimension)
	require.Equal(t, "s1", conflict.SessionID)
}

func TestDetectConflictClass(t *testing.T) {
	existing := []models.Session{slotSession("s1", "Lab A", "10", "A", "t1", "10:30")}
	candidate := slotSession("", "Lab B", "10", "A", "t2", "10:30")

	conflict := DetectConflict(candidate, existing, "")
	require.NotNil(t, conflict)
	require.Equal(t, models.ConflictClass, conflict.Dimension)
}

func TestDetectConflictTeacher(t *testing.T) {
	existing := []models.Session{slotSession("s1", "Lab A", "10", "A", "t1", "10:30")}
	candidate := slotSession("", "Lab B", "11", "B", "t1", "10:30")

	conflict := DetectConflict(candidate, existing, "")
	require.NotNil(t, conflict)
	require.Equal(t, models.ConflictTeacher, conflict.Dimension)
}

func TestDetectConflictDifferentSlot(t *testing.T) {
	existing := []models.Session{slotSession("s1", "Lab A", "10", "A", "t1", "10:00")}
	candidate := slotSession("", "Lab A", "10", "A", "t1", "10:30")

	require.Nil(t, DetectConflict(candidate, existing, ""))
}

func TestDetectConflictIgnoresCancelled(t *testing.T) {
	cancelled := slotSession("s1", "Lab A", "10", "A", "t1", "10:30")
	cancelled.Status = models.SessionCancelled
	candidate := slotSession("", "Lab A", "10", "A", "t1", "10:30")

	require.Nil(t, DetectConflict(candidate, []models.Session{cancelled}, ""))
}

func TestDetectConflictExcludesOwnBooking(t *testing.T) {
	existing := []models.Session{slotSession("s1", "Lab A", "10", "A", "t1", "10:30")}
	candidate := slotSession("s1", "Lab A", "10", "A", "t1", "10:30")

	require.Nil(t, DetectConflict(candidate, existing, "s1"))
}

func TestDetectConflictDimensionPrecedence(t *testing.T) {
	// One existing session collides on all three axes; location wins.
	existing := []models.Session{slotSession("s1", "Lab A", "10", "A", "t1", "10:30")}
	candidate := slotSession("", "Lab A", "10", "A", "t1", "10:30")

	conflict := DetectConflict(candidate, existing, "")
	require.NotNil(t, conflict)
	require.Equal(t, models.ConflictLocation, conflict.Dimension)
}
