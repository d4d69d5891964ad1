package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// SubmissionLimiter hands out one token bucket per user so a single
// client cannot monopolize the comparator.
type SubmissionLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func NewSubmissionLimiter(perMinute, burst int) *SubmissionLimiter {
	return &SubmissionLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}
}

func (s *SubmissionLimiter) limiterFor(userID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[userID]
	if !ok {
		l = rate.NewLimiter(s.rate, s.burst)
		s.limiters[userID] = l
	}
	return l
}

// Middleware rejects over-quota submissions with 429. It must run
// behind JWTMiddleware so user_id is present.
func (s *SubmissionLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID != "" && !s.limiterFor(userID).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many submissions, slow down"})
			return
		}
		c.Next()
	}
}
