package ratelimiter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func TestLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		delays   []time.Duration // virtual time advanced before each Allow() call
		want     []bool
	}{
		{
			name:     "first call always allowed",
			interval: 100 * time.Millisecond,
			delays:   []time.Duration{0},
			want:     []bool{true},
		},
		{
			name:     "second call immediately after is blocked",
			interval: 100 * time.Millisecond,
			delays:   []time.Duration{0, 0},
			want:     []bool{true, false},
		},
		{
			name:     "call after interval is allowed",
			interval: 50 * time.Millisecond,
			delays:   []time.Duration{0, 60 * time.Millisecond},
			want:     []bool{true, true},
		},
		{
			name:     "checkpoint cadence",
			interval: time.Second,
			delays:   []time.Duration{0, 400 * time.Millisecond, 400 * time.Millisecond, 400 * time.Millisecond},
			want:     []bool{true, false, false, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeNow{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
			limiter := NewWithClock(tt.interval, clock.now)

			for i, delay := range tt.delays {
				clock.advance(delay)

				allowed, waitTime := limiter.Allow()
				assert.Equal(t, tt.want[i], allowed, "call %d", i)
				if allowed {
					assert.Zero(t, waitTime, "call %d", i)
				} else {
					assert.Positive(t, waitTime, "call %d", i)
				}
			}
		})
	}
}

func TestLimiter_WaitTime(t *testing.T) {
	clock := &fakeNow{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewWithClock(100*time.Millisecond, clock.now)

	limiter.Allow()
	clock.advance(30 * time.Millisecond)

	allowed, wait := limiter.Allow()
	assert.False(t, allowed)
	assert.Equal(t, 70*time.Millisecond, wait)
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter := New(time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed, _ := limiter.Allow(); allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, allowedCount)
}
