package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusRanksAreMonotonic(t *testing.T) {
	ordered := []ViolationStatus{
		StatusDetected,
		StatusNoticeEligible,
		StatusNoticeIssued,
		StatusEscalated,
		StatusTowEligible,
	}

	prev := -1
	for _, status := range ordered {
		rank, ok := status.Rank()
		require.True(t, ok, "status %s should be ranked", status)
		require.Greater(t, rank, prev)
		prev = rank
	}
}

func TestTerminalStatusesHaveNoRank(t *testing.T) {
	for _, status := range []ViolationStatus{StatusResolved, StatusDismissed} {
		_, ok := status.Rank()
		require.False(t, ok)
		require.True(t, status.Terminal())
	}
	require.False(t, StatusDetected.Terminal())
	require.False(t, StatusTowEligible.Terminal())
}

func TestEventTargetStatus(t *testing.T) {
	cases := []struct {
		event  ViolationEventType
		target ViolationStatus
		ok     bool
	}{
		{EventDetected, StatusDetected, true},
		{EventNoticeEligible, StatusNoticeEligible, true},
		{EventNoticeIssued, StatusNoticeIssued, true},
		{EventEscalated, StatusEscalated, true},
		{EventTowEligible, StatusTowEligible, true},
		{EventResolved, StatusResolved, true},
		{EventDismissed, StatusDismissed, true},
		{EventObservationAdded, "", false},
	}

	for _, tc := range cases {
		target, ok := tc.event.TargetStatus()
		require.Equal(t, tc.ok, ok, "event %s", tc.event)
		require.Equal(t, tc.target, target, "event %s", tc.event)
	}
}

func TestViolationOpen(t *testing.T) {
	v := Violation{Status: StatusNoticeIssued}
	require.True(t, v.Open())
	v.Status = StatusResolved
	require.False(t, v.Open())
}
