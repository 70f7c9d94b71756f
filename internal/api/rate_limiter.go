package api

import (
	"sync"
	"sync/atomic"
	"time"

	"lumina_studio_go_backend/internal/auth"
	apperrors "lumina_studio_go_backend/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per user for the AI endpoints.
type RateLimiter struct {
	limiters map[uuid.UUID]*userLimiter
	mu       sync.RWMutex

	limit     rate.Limit
	burstSize int
	now       func() time.Time
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters:  make(map[uuid.UUID]*userLimiter),
		limit:     rate.Limit(rps),
		burstSize: burst,
		now:       time.Now,
	}
}

func (rl *RateLimiter) getLimiter(userID uuid.UUID) *userLimiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[userID]
	rl.mu.RUnlock()
	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, exists := rl.limiters[userID]; exists {
		return limiter
	}
	limiter = &userLimiter{limiter: rate.NewLimiter(rl.limit, rl.burstSize)}
	rl.limiters[userID] = limiter
	return limiter
}

func (rl *RateLimiter) Allow(userID uuid.UUID) bool {
	now := rl.now()
	l := rl.getLimiter(userID)
	l.lastSeen.Store(now.UnixNano())
	return l.limiter.AllowN(now, 1)
}

// Prune drops buckets not used for idle. A dropped bucket comes back full.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	cutoff := rl.now().Add(-idle).UnixNano()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for id, l := range rl.limiters {
		if l.lastSeen.Load() < cutoff {
			delete(rl.limiters, id)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) Size() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

// RateLimitMiddleware must run after auth.AuthMiddleware.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil {
			c.Next()
			return
		}
		user, ok := auth.UserFromContext(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}
		if !rl.Allow(user.ID) {
			apperrors.HandleError(c, apperrors.New429Error())
			return
		}
		c.Next()
	}
}
