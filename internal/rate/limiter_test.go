package rate_test

import (
	"mathrush-backend/internal/rate"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestLimiterAllow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		window      time.Duration
		limit       int
		submissions int
		expect      bool
		interval    time.Duration
		sleep       time.Duration
	}{
		{
			name:        "Within limit",
			window:      time.Minute,
			limit:       10,
			submissions: 10,
			expect:      true,
		},
		{
			name:        "At limit",
			window:      time.Minute,
			limit:       10,
			submissions: 11,
			expect:      false,
		},
		{
			name:        "Within limit after slide",
			window:      10 * time.Millisecond,
			interval:    time.Millisecond,
			limit:       10,
			submissions: 11,
			sleep:       time.Millisecond,
			expect:      true,
		},
		{
			name:        "At limit after slide",
			window:      10 * time.Millisecond,
			limit:       10,
			submissions: 11,
			sleep:       9 * time.Millisecond,
			expect:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clock := clock.NewMock()
			limiter := rate.NewLimiterWithClock(tt.window, tt.limit, clock)

			clock.Set(time.Now())

			for i := 1; i < tt.submissions; i++ {
				limiter.Allow()
				clock.Add(tt.interval)
			}

			clock.Add(tt.sleep)

			if got, want := limiter.Allow(), tt.expect; got != want {
				t.Fatalf("Invalid submission allow, got %v, want %v", got, want)
			}
		})
	}
}

func TestLimiterSlots(t *testing.T) {
	t.Parallel()

	clock := clock.NewMock()
	limiter := rate.NewLimiterWithClock(time.Minute, 5, clock)

	clock.Set(time.Now())

	for i := 0; i < 3; i++ {
		limiter.Allow()
	}

	if got, want := limiter.Slots(), 2; got != want {
		t.Fatalf("Invalid remaining slots, got %d, want %d", got, want)
	}

	clock.Add(2 * time.Minute)

	if got, want := limiter.Slots(), 5; got != want {
		t.Fatalf("Invalid remaining slots after slide, got %d, want %d", got, want)
	}
}
