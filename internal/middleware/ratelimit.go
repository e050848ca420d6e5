package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/lbot-tgbot-go/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// MaxMessageBytes is the largest message text the bot will route
const MaxMessageBytes = 4096

// RateLimiter interface for rate limiting
type RateLimiter interface {
	Allow(userID string) bool
	Reset(userID string)
	Stop()
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserRateLimiter implements per-user rate limiting
type UserRateLimiter struct {
	enabled         bool
	limiters        map[string]*userLimiter
	mu              sync.Mutex
	rpm             int
	burst           int
	logger          *logrus.Logger
	cleanupInterval time.Duration
	idleTimeout     time.Duration
	now             func() time.Time
	done            chan struct{}
	stopOnce        sync.Once
}

// NewRateLimiter creates a new rate limiter. Stop must be called to end the
// cleanup goroutine.
func NewRateLimiter(cfg *config.RateLimitConfig, logger *logrus.Logger) *UserRateLimiter {
	if !cfg.Enabled {
		return &UserRateLimiter{enabled: false}
	}

	rl := &UserRateLimiter{
		enabled:         true,
		limiters:        make(map[string]*userLimiter),
		rpm:             cfg.RequestsPerMinute,
		burst:           cfg.Burst,
		logger:          logger,
		cleanupInterval: 10 * time.Minute,
		idleTimeout:     time.Hour,
		now:             time.Now,
		done:            make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Allow checks if a user is allowed to make a request
func (r *UserRateLimiter) Allow(userID string) bool {
	if !r.enabled {
		return true
	}

	allowed := r.getLimiter(userID).Allow()
	if !allowed {
		r.logger.WithFields(logrus.Fields{
			"user_id": userID,
		}).Warn("Rate limit exceeded")
	}

	return allowed
}

// Reset resets the rate limiter for a user
func (r *UserRateLimiter) Reset(userID string) {
	if !r.enabled {
		return
	}

	r.mu.Lock()
	delete(r.limiters, userID)
	r.mu.Unlock()
}

// Stop ends the cleanup goroutine
func (r *UserRateLimiter) Stop() {
	if !r.enabled {
		return
	}
	r.stopOnce.Do(func() { close(r.done) })
}

// getLimiter gets or creates a rate limiter for a user
func (r *UserRateLimiter) getLimiter(userID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	ul, exists := r.limiters[userID]
	if !exists {
		// Rate per second = RPM / 60
		rps := float64(r.rpm) / 60.0
		ul = &userLimiter{limiter: rate.NewLimiter(rate.Limit(rps), r.burst)}
		r.limiters[userID] = ul
	}
	ul.lastSeen = r.now()

	return ul.limiter
}

// cleanup removes limiters of users idle for longer than idleTimeout
func (r *UserRateLimiter) cleanup() {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.prune()
		}
	}
}

func (r *UserRateLimiter) prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idleTimeout)
	removed := 0
	for id, ul := range r.limiters {
		if ul.lastSeen.Before(cutoff) {
			delete(r.limiters, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.WithField("removed", removed).Debug("Pruned idle rate limiters")
	}
	return removed
}

// SecurityMiddleware provides security checks
type SecurityMiddleware struct {
	logger *logrus.Logger
}

// NewSecurityMiddleware creates security middleware
func NewSecurityMiddleware(logger *logrus.Logger) *SecurityMiddleware {
	return &SecurityMiddleware{
		logger: logger,
	}
}

// ValidateInput performs input validation
func (s *SecurityMiddleware) ValidateInput(text string) error {
	if len(text) > MaxMessageBytes {
		return fmt.Errorf("message too long: %d bytes", len(text))
	}

	return nil
}
