package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter enforces per-client request rates and daily quotas using
// fixed minute, hour and day windows. A zero limit disables that check.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	requestsPerHour   int
	maxRequestsPerDay int
	maxDataPerDay     int64 // bytes

	clients map[string]*ClientUsage
	now     func() time.Time
}

// ClientUsage tracks usage for one client address.
type ClientUsage struct {
	MinuteStart time.Time
	Minute      int
	HourStart   time.Time
	Hour        int
	DayStart    time.Time
	Day         int
	DataToday   int64
	LastSeen    time.Time
}

// NewRateLimiter creates a new rate limiter with the given limits.
func NewRateLimiter(requestsPerMinute, requestsPerHour, maxRequestsPerDay int, maxDataPerDay int64) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		maxRequestsPerDay: maxRequestsPerDay,
		maxDataPerDay:     maxDataPerDay,
		clients:           make(map[string]*ClientUsage),
		now:               time.Now,
	}
}

// Allow records a request of dataSize bytes from client, or returns a
// *RateLimitError or *QuotaExceededError without recording it.
func (rl *RateLimiter) Allow(client string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u, ok := rl.clients[client]
	if !ok {
		u = &ClientUsage{MinuteStart: now, HourStart: now, DayStart: startOfDay(now)}
		rl.clients[client] = u
	}
	rollWindows(u, now)

	if rl.requestsPerMinute > 0 && u.Minute >= rl.requestsPerMinute {
		return &RateLimitError{Type: "minute", Limit: rl.requestsPerMinute, RetryAfter: u.MinuteStart.Add(time.Minute).Sub(now)}
	}
	if rl.requestsPerHour > 0 && u.Hour >= rl.requestsPerHour {
		return &RateLimitError{Type: "hour", Limit: rl.requestsPerHour, RetryAfter: u.HourStart.Add(time.Hour).Sub(now)}
	}

	resets := u.DayStart.AddDate(0, 0, 1)
	if rl.maxRequestsPerDay > 0 && u.Day >= rl.maxRequestsPerDay {
		return &QuotaExceededError{Type: "requests", Limit: int64(rl.maxRequestsPerDay), Used: int64(u.Day), Resets: resets}
	}
	if rl.maxDataPerDay > 0 && u.DataToday+dataSize > rl.maxDataPerDay {
		return &QuotaExceededError{Type: "data", Limit: rl.maxDataPerDay, Used: u.DataToday, Resets: resets}
	}

	u.Minute++
	u.Hour++
	u.Day++
	u.DataToday += dataSize
	u.LastSeen = now
	return nil
}

func rollWindows(u *ClientUsage, now time.Time) {
	if now.Sub(u.MinuteStart) >= time.Minute {
		u.MinuteStart, u.Minute = now, 0
	}
	if now.Sub(u.HourStart) >= time.Hour {
		u.HourStart, u.Hour = now, 0
	}
	if day := startOfDay(now); day.After(u.DayStart) {
		u.DayStart, u.Day, u.DataToday = day, 0, 0
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Usage returns a copy of the usage recorded for client.
func (rl *RateLimiter) Usage(client string) ClientUsage {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if u, ok := rl.clients[client]; ok {
		return *u
	}
	return ClientUsage{}
}

// Prune forgets clients not seen for longer than idle.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	removed := 0
	for id, u := range rl.clients {
		if now.Sub(u.LastSeen) > idle {
			delete(rl.clients, id)
			removed++
		}
	}
	return removed
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter.Round(time.Second))
}

// QuotaExceededError represents a daily quota violation.
type QuotaExceededError struct {
	Type   string // "requests" or "data"
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
