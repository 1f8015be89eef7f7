package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// sweep idle limiters once the map grows past this
const throttleSweepSize = 4096

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserThrottle allows one request per interval per authenticated user
type UserThrottle struct {
	interval time.Duration
	logger   logrus.FieldLogger

	mu       sync.Mutex
	limiters map[uint64]*userLimiter
	now      func() time.Time
}

// NewUserThrottle creates a throttle. A zero interval disables it.
func NewUserThrottle(interval time.Duration, logger logrus.FieldLogger) *UserThrottle {
	return &UserThrottle{
		interval: interval,
		logger:   logger,
		limiters: make(map[uint64]*userLimiter),
		now:      time.Now,
	}
}

// Allow consumes the user's token if one is available
func (t *UserThrottle) Allow(userID uint64) bool {
	if t.interval <= 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if len(t.limiters) >= throttleSweepSize {
		for id, l := range t.limiters {
			if now.Sub(l.lastSeen) > t.interval {
				delete(t.limiters, id)
			}
		}
	}

	l, ok := t.limiters[userID]
	if !ok {
		l = &userLimiter{limiter: rate.NewLimiter(rate.Every(t.interval), 1)}
		t.limiters[userID] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}

// Limit must run after RequireAuth
func (t *UserThrottle) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			c.Next()
			return
		}
		if !t.Allow(identity.UserID) {
			t.logger.WithFields(logrus.Fields{
				"user_id": identity.UserID,
				"path":    c.Request.URL.Path,
			}).Warn("⏳ Request throttled")

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "Too many requests",
				"message": "Please wait " + t.interval.String() + " between withdrawal requests",
				"code":    "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
