package middlewares

import (
	"sync"
	"time"

	"matrix/helpers"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemberLimiter keeps one token bucket per member. Buckets idle long enough
// to have refilled are dropped, so a returning member starts from the same
// full bucket it would have had.
type MemberLimiter struct {
	mu        sync.Mutex
	limiters  map[uint]*limiterEntry
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewMemberLimiter(perMinute, burst int) *MemberLimiter {
	limit := rate.Limit(float64(perMinute) / 60)
	refill := time.Duration(float64(burst) / float64(limit) * float64(time.Second))
	return &MemberLimiter{
		limiters: make(map[uint]*limiterEntry),
		limit:    limit,
		burst:    burst,
		idle:     refill + time.Minute,
		now:      time.Now,
	}
}

// Allow takes a token from memberID's bucket.
func (l *MemberLimiter) Allow(memberID uint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweepLocked(now)
	}

	e, ok := l.limiters[memberID]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[memberID] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Sweep drops buckets idle longer than the refill window and returns how many
// remain.
func (l *MemberLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(l.now())
	return len(l.limiters)
}

func (l *MemberLimiter) sweepLocked(now time.Time) {
	for id, e := range l.limiters {
		if now.Sub(e.lastSeen) >= l.idle {
			delete(l.limiters, id)
		}
	}
	l.lastSweep = now
}

// Handler limits requests per authenticated member. It must run after
// MemberAuth.
func (l *MemberLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		member := MemberFrom(c)
		if member == nil {
			return c.Next()
		}
		if !l.Allow(member.ID) {
			return helpers.JSONErrorStatus(c, fiber.StatusTooManyRequests, "TOO_MANY_REQUESTS", "")
		}
		return c.Next()
	}
}

// WithdrawThrottle limits withdrawal requests per member.
func WithdrawThrottle(perMinute, burst int) fiber.Handler {
	return NewMemberLimiter(perMinute, burst).Handler()
}
