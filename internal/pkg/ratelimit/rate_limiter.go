// internal/pkg/ratelimit/rate_limiter.go
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// CheckLoginAttempt checks if a login redirect may be issued for this address
func (r *RateLimiter) CheckLoginAttempt(ctx context.Context, ip string) (bool, int64, error) {
	key := fmt.Sprintf("ratelimit:login:%s", ip)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment login attempt: %w", err)
	}

	// Set expiration on first attempt
	if count == 1 {
		r.client.Expire(ctx, key, 15*time.Minute)
	}

	maxAttempts := int64(10)
	remaining := maxAttempts - count
	if remaining < 0 {
		remaining = 0
	}

	// Allow up to 10 login redirects per 15 minutes
	return count <= maxAttempts, remaining, nil
}

// ResetLoginAttempts resets the login attempt counter
func (r *RateLimiter) ResetLoginAttempts(ctx context.Context, ip string) error {
	key := fmt.Sprintf("ratelimit:login:%s", ip)
	return r.client.Del(ctx, key).Err()
}

// CheckRefreshAttempt checks the refresh-grant rate limit. A tighter window
// than login: a client stuck in a refresh loop burns through this quickly
// instead of hammering the provider.
func (r *RateLimiter) CheckRefreshAttempt(ctx context.Context, ip string) (bool, error) {
	key := fmt.Sprintf("ratelimit:refresh:%s", ip)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment refresh attempt: %w", err)
	}

	// Set expiration on first attempt
	if count == 1 {
		r.client.Expire(ctx, key, 1*time.Minute)
	}

	// Allow up to 30 refreshes per minute per address
	return count <= 30, nil
}
