package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mobilia/backoffice/internal/platform/httpx"
)

// actorRateLimiter allows at most limit requests per actor in each fixed window.
type actorRateLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]rateWindow
}

type rateWindow struct {
	count int
	reset time.Time
}

func newActorRateLimiter(limit int, window time.Duration, clock func() time.Time) *actorRateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &actorRateLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]rateWindow),
	}
}

// allow records one request for actor. When the actor is over its limit it returns false with the time
// until the window resets.
func (l *actorRateLimiter) allow(actor string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.windows[actor]
	if !ok || !now.Before(current.reset) {
		l.windows[actor] = rateWindow{count: 1, reset: now.Add(l.window)}
		l.pruneLocked(now)
		return true, 0
	}
	if current.count >= l.limit {
		return false, current.reset.Sub(now)
	}
	current.count++
	l.windows[actor] = current
	return true, 0
}

func (l *actorRateLimiter) pruneLocked(now time.Time) {
	for actor, w := range l.windows {
		if !now.Before(w.reset) {
			delete(l.windows, actor)
		}
	}
}

// middleware must run after authentication so that the limit applies per staff member.
func (l *actorRateLimiter) middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retry := l.allow(actorID(r.Context()))
		if !ok {
			seconds := int(retry.Round(time.Second) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many uploads, retry later", http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}
