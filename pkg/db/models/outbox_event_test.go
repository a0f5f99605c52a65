package models

import "testing"

func TestOutboxEventFinalAttempt(t *testing.T) {
	cases := []struct {
		attempts, max int
		want          bool
	}{
		{0, 3, false},
		{1, 3, false},
		{2, 3, true},
		{0, 1, true},
		{5, 3, true},
	}
	for _, tc := range cases {
		e := OutboxEvent{AttemptCount: tc.attempts}
		if got := e.FinalAttempt(tc.max); got != tc.want {
			t.Fatalf("attempts=%d max=%d: got %v want %v", tc.attempts, tc.max, got, tc.want)
		}
	}
}
