package service

import (
	"strings"

	"github.com/labworks/labsched-api/internal/models"
)

// DetectConflict decides whether the candidate session collides with any of
// the existing sessions. Sessions collide when they occupy the same exact
// (date, start time) bucket and share the lab location, the (grade, class
// section) pair, or the teacher. Cancelled sessions and the session named by
// excludeID (the candidate's own prior booking during an update) are ignored.
//
// The function is pure: it never touches storage and is rerun on every create
// and update. Slot identity is exact equality, not interval overlap; a
// 10:00 two-hour session and a 10:30 session land in different buckets.
func DetectConflict(candidate models.Session, existing []models.Session, excludeID string) *models.SessionConflict {
	for _, item := range existing {
		if item.ID == excludeID || !item.Active() {
			continue
		}
		if !item.TimeSlot.SameSlot(candidate.TimeSlot) {
			continue
		}
		if strings.EqualFold(item.Location, candidate.Location) {
			return conflictOn(item, models.ConflictLocation)
		}
		if item.Grade == candidate.Grade && item.ClassSection == candidate.ClassSection {
			return conflictOn(item, models.ConflictClass)
		}
		if item.TeacherID == candidate.TeacherID {
			return conflictOn(item, models.ConflictTeacher)
		}
	}
	return nil
}

func conflictOn(existing models.Session, dimension models.ConflictDimension) *models.SessionConflict {
	return &models.SessionConflict{
		SessionID:    existing.ID,
		Title:        existing.Title,
		Date:         existing.DayKey(),
		StartTime:    existing.StartTime,
		Location:     existing.Location,
		Grade:        existing.Grade,
		ClassSection: existing.ClassSection,
		TeacherID:    existing.TeacherID,
		Dimension:    dimension,
	}
}
