package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimeSlotSameSlot(t *testing.T) {
	day := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	a := TimeSlot{Date: day, StartTime: "10:30", DurationMinutes: 60}
	b := TimeSlot{Date: day, StartTime: "10:30", DurationMinutes: 90}
	c := TimeSlot{Date: day, StartTime: "11:00", DurationMinutes: 60}
	d := TimeSlot{Date: day.AddDate(0, 0, 1), StartTime: "10:30", DurationMinutes: 60}

	require.True(t, a.SameSlot(b))
	require.False(t, a.Equal(b))
	require.False(t, a.SameSlot(c))
	require.False(t, a.SameSlot(d))
	require.Equal(t, "2025-09-15@10:30", a.Key())
}

func TestSessionStatusValid(t *testing.T) {
	require.True(t, SessionUpcoming.Valid())
	require.True(t, SessionCompleted.Valid())
	require.True(t, SessionCancelled.Valid())
	require.False(t, SessionStatus("PAUSED").Valid())
}

func TestSessionActive(t *testing.T) {
	require.True(t, Session{Status: SessionUpcoming}.Active())
	require.True(t, Session{Status: SessionCompleted}.Active())
	require.False(t, Session{Status: SessionCancelled}.Active())
}
