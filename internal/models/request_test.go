package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestStatusTransitions(t *testing.T) {
	cases := []struct {
		from    RequestStatus
		to      RequestStatus
		allowed bool
	}{
		{RequestPending, RequestApproved, true},
		{RequestPending, RequestRejected, true},
		{RequestPending, RequestPrepared, false},
		{RequestPending, RequestCompleted, false},
		{RequestApproved, RequestPrepared, true},
		{RequestApproved, RequestRejected, false},
		{RequestApproved, RequestCompleted, false},
		{RequestApproved, RequestPending, false},
		{RequestPrepared, RequestCompleted, true},
		{RequestPrepared, RequestApproved, false},
		{RequestRejected, RequestApproved, false},
		{RequestRejected, RequestPending, false},
		{RequestCompleted, RequestPrepared, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestRequestStatusTerminal(t *testing.T) {
	require.True(t, RequestRejected.Terminal())
	require.True(t, RequestCompleted.Terminal())
	require.False(t, RequestPending.Terminal())
	require.False(t, RequestApproved.Terminal())
	require.False(t, RequestPrepared.Terminal())
}

func TestRequestStatusValid(t *testing.T) {
	for _, status := range []RequestStatus{RequestPending, RequestApproved, RequestRejected, RequestPrepared, RequestCompleted} {
		require.True(t, status.Valid())
	}
	require.False(t, RequestStatus("ARCHIVED").Valid())
	require.False(t, RequestStatus("").Valid())
}

func TestEquipmentCategoryValid(t *testing.T) {
	require.True(t, CategoryGlassware.Valid())
	require.True(t, CategoryChemicals.Valid())
	require.False(t, EquipmentCategory("FURNITURE").Valid())
}

func TestTransitionErrorMessage(t *testing.T) {
	err := &TransitionError{Current: RequestApproved, Attempted: RequestRejected}
	require.Contains(t, err.Error(), string(RequestApproved))
	require.Contains(t, err.Error(), string(RequestRejected))
}
