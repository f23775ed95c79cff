// Package ratelimit implements Redis-backed fixed-window request limits per
// client IP, cooldowns per email address and a cap on wrong OTP submissions
// per account.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultIPLimit       = 10
	defaultIPWindow      = 15 * time.Minute
	defaultEmailCooldown = 2 * time.Minute
	defaultOTPAttempts   = 5
	defaultOTPWindow     = 10 * time.Minute
)

// Limits configures a Limiter. Zero values fall back to defaults.
type Limits struct {
	// IPLimit is the number of requests allowed per IP and purpose in IPWindow
	IPLimit  int
	IPWindow time.Duration
	// EmailCooldown is the minimum gap between emails sent to one address
	EmailCooldown time.Duration
	// OTPMaxAttempts is the number of wrong codes accepted for one account
	// before verification is refused until a new code is issued
	OTPMaxAttempts int
	// OTPAttemptWindow should match the code lifetime
	OTPAttemptWindow time.Duration
}

// Limiter tracks request counts in Redis
type Limiter struct {
	client redis.UniversalClient
	limits Limits
}

func NewLimiter(client redis.UniversalClient, limits Limits) *Limiter {
	if limits.IPLimit <= 0 {
		limits.IPLimit = defaultIPLimit
	}
	if limits.IPWindow <= 0 {
		limits.IPWindow = defaultIPWindow
	}
	if limits.EmailCooldown <= 0 {
		limits.EmailCooldown = defaultEmailCooldown
	}
	if limits.OTPMaxAttempts <= 0 {
		limits.OTPMaxAttempts = defaultOTPAttempts
	}
	if limits.OTPAttemptWindow <= 0 {
		limits.OTPAttemptWindow = defaultOTPWindow
	}
	return &Limiter{client: client, limits: limits}
}

func ipKey(purpose, ip string) string {
	return fmt.Sprintf("ratelimit:ip:%s:%s", purpose, ip)
}

func emailCooldownKey(email string) string {
	return fmt.Sprintf("ratelimit:email:%s", normalizeEmail(email))
}

func otpAttemptsKey(email string) string {
	return fmt.Sprintf("ratelimit:otp:%s", normalizeEmail(email))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CheckIPRateLimitWithPurpose reports whether ip has used up its requests for purpose
func (l *Limiter) CheckIPRateLimitWithPurpose(ctx context.Context, ip, purpose string) (bool, error) {
	count, err := l.client.Get(ctx, ipKey(purpose, ip)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read rate limit: %w", err)
	}
	return count >= l.limits.IPLimit, nil
}

// RecordIPRequestWithPurpose counts one request. The window starts on the first request.
func (l *Limiter) RecordIPRequestWithPurpose(ctx context.Context, ip, purpose string) error {
	key := ipKey(purpose, ip)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.limits.IPWindow).Err(); err != nil {
			return fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}
	return nil
}

// CheckEmailCooldown reports whether email was sent a message too recently
func (l *Limiter) CheckEmailCooldown(ctx context.Context, email string) (bool, error) {
	n, err := l.client.Exists(ctx, emailCooldownKey(email)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check email cooldown: %w", err)
	}
	return n > 0, nil
}

// SetEmailCooldown starts the cooldown for email
func (l *Limiter) SetEmailCooldown(ctx context.Context, email string) error {
	if err := l.client.Set(ctx, emailCooldownKey(email), "1", l.limits.EmailCooldown).Err(); err != nil {
		return fmt.Errorf("failed to set email cooldown: %w", err)
	}
	return nil
}

// OTPAttemptsExhausted reports whether the account behind email has used up
// its wrong guesses for the current code
func (l *Limiter) OTPAttemptsExhausted(ctx context.Context, email string) (bool, error) {
	count, err := l.client.Get(ctx, otpAttemptsKey(email)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read otp attempts: %w", err)
	}
	return count >= l.limits.OTPMaxAttempts, nil
}

// RecordOTPFailure counts one wrong code. The counter lives for one code lifetime.
func (l *Limiter) RecordOTPFailure(ctx context.Context, email string) error {
	key := otpAttemptsKey(email)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to record otp failure: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.limits.OTPAttemptWindow).Err(); err != nil {
			return fmt.Errorf("failed to set otp attempt window: %w", err)
		}
	}
	return nil
}

// ResetOTPAttempts clears the counter, called when a new code is issued or
// a code is accepted
func (l *Limiter) ResetOTPAttempts(ctx context.Context, email string) error {
	if err := l.client.Del(ctx, otpAttemptsKey(email)).Err(); err != nil {
		return fmt.Errorf("failed to reset otp attempts: %w", err)
	}
	return nil
}
