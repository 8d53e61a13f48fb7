package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/vhvplatform/go-esign-delivery-service/internal/domain"
	"github.com/vhvplatform/go-esign-delivery-service/internal/metrics"
	"golang.org/x/time/rate"
)

// TenantRateLimiter manages outbound send limiters per tenant
type TenantRateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// NewTenantRateLimiter creates a new tenant rate limiter. A non-positive rps
// disables limiting.
func NewTenantRateLimiter(rps float64, burst int) *TenantRateLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &TenantRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     limit,
		burst:    burst,
	}
}

// GetLimiter returns the rate limiter for a specific tenant
func (rl *TenantRateLimiter) GetLimiter(tenantID string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[tenantID]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		// Double-check after acquiring write lock
		limiter, exists = rl.limiters[tenantID]
		if !exists {
			limiter = rate.NewLimiter(rl.rate, rl.burst)
			rl.limiters[tenantID] = limiter
		}
		rl.mu.Unlock()
	}

	return limiter
}

// Wait blocks until the tenant may send another message on channel
func (rl *TenantRateLimiter) Wait(ctx context.Context, tenantID string, channel domain.Channel) error {
	if rl == nil {
		return nil
	}
	start := time.Now()
	err := rl.GetLimiter(tenantID).Wait(ctx)
	metrics.RateLimitWait.WithLabelValues(string(channel)).Observe(time.Since(start).Seconds())
	return err
}
