// internal/app/system/ratelimit/ratelimit.go
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// Limiter counts events per key in fixed windows. It is safe for concurrent
// use. Close stops the background sweep.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int
	duration time.Duration
	now      func() time.Time

	stop chan struct{}
	once sync.Once
}

type window struct {
	count     int
	expiresAt time.Time
}

// New creates a limiter allowing limit events per key per duration.
func New(limit int, duration time.Duration) *Limiter {
	l := &Limiter{
		windows:  make(map[string]*window),
		limit:    limit,
		duration: duration,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go l.sweep(duration * 2)
	return l
}

// Allow records one event for key and reports whether it is within the limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.expiresAt) {
		l.windows[key] = &window{count: 1, expiresAt: now.Add(l.duration)}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// Remaining returns how many events key may still record in its window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || l.now().After(w.expiresAt) {
		return l.limit
	}
	return max(l.limit-w.count, 0)
}

// Reset forgets key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Close stops the sweep goroutine. It is safe to call more than once.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := l.now()
			for key, w := range l.windows {
				if now.After(w.expiresAt) {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// SignInLimiter throttles sign-in attempts per client IP and per email, so
// neither a single client nor a distributed guess at one account can try
// passwords freely.
type SignInLimiter struct {
	byIP    *Limiter
	byEmail *Limiter
}

// Config sets the sign-in windows. Zero values take the defaults:
// 10 attempts per IP per minute, 5 per email per 5 minutes.
type Config struct {
	IPLimit     int
	IPWindow    time.Duration
	EmailLimit  int
	EmailWindow time.Duration
}

func NewSignInLimiter(cfg Config) *SignInLimiter {
	if cfg.IPLimit <= 0 {
		cfg.IPLimit = 10
	}
	if cfg.IPWindow <= 0 {
		cfg.IPWindow = time.Minute
	}
	if cfg.EmailLimit <= 0 {
		cfg.EmailLimit = 5
	}
	if cfg.EmailWindow <= 0 {
		cfg.EmailWindow = 5 * time.Minute
	}
	return &SignInLimiter{
		byIP:    New(cfg.IPLimit, cfg.IPWindow),
		byEmail: New(cfg.EmailLimit, cfg.EmailWindow),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Allow records an attempt from ip for email. The returned message is meant
// for the caller when the attempt is refused.
func (s *SignInLimiter) Allow(ip, email string) (bool, string) {
	if !s.byIP.Allow(ip) {
		return false, "too many sign-in attempts; wait a minute before trying again"
	}
	if k := emailKey(email); k != "" && !s.byEmail.Allow(k) {
		return false, "too many sign-in attempts for this account; wait a few minutes"
	}
	return true, ""
}

// Succeeded clears the per-email window after a successful sign-in.
func (s *SignInLimiter) Succeeded(email string) {
	if k := emailKey(email); k != "" {
		s.byEmail.Reset(k)
	}
}

func (s *SignInLimiter) Close() {
	s.byIP.Close()
	s.byEmail.Close()
}
