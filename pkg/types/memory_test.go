package types

import "testing"

func TestIsValidStatusTransition(t *testing.T) {
	cases := []struct {
		from, to MemoryStatus
		want     bool
	}{
		{StatusActive, StatusArchived, true},
		{StatusActive, StatusDeleted, true},
		{StatusArchived, StatusActive, true},
		{StatusArchived, StatusDeleted, true},
		{StatusDeleted, StatusActive, false},
		{StatusDeleted, StatusArchived, false},
		{StatusDeleted, StatusDeleted, false},
		{StatusActive, StatusActive, false},
		{StatusArchived, StatusArchived, false},
		{MemoryStatus("bogus"), StatusActive, false},
	}
	for _, tc := range cases {
		if got := IsValidStatusTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("IsValidStatusTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
