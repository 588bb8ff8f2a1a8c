package usecase

import (
	"testing"
	"time"
)

func TestNextWatermark(t *testing.T) {
	t0 := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	at := func(min int) time.Time { return t0.Add(time.Duration(min) * time.Minute) }
	ok := func(min int) EmailOutcome { return EmailOutcome{ReceivedAt: at(min)} }
	bad := func(min int) EmailOutcome { return EmailOutcome{ReceivedAt: at(min), Failed: true} }

	tests := []struct {
		name     string
		current  time.Time
		outcomes []EmailOutcome
		want     time.Time
	}{
		{"no emails", at(0), nil, at(0)},
		{"all succeeded", at(0), []EmailOutcome{ok(1), ok(2), ok(3)}, at(3)},
		{"stops before first failure", at(0), []EmailOutcome{ok(1), ok(2), bad(3), ok(4)}, at(2)},
		{"first email failed", at(0), []EmailOutcome{bad(1), ok(2)}, at(0)},
		{"failure sharing a timestamp", at(0), []EmailOutcome{ok(1), ok(2), bad(2)}, at(1)},
		{"never moves backwards", at(10), []EmailOutcome{ok(5)}, at(10)},
		{"from zero", time.Time{}, []EmailOutcome{ok(1)}, at(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextWatermark(tt.current, tt.outcomes); !got.Equal(tt.want) {
				t.Errorf("NextWatermark = %v, want %v", got, tt.want)
			}
		})
	}
}
