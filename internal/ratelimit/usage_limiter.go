package ratelimit

import (
	"context"
)

const (
	usageIngestRate  = 20.0
	usageIngestBurst = 40
)

// UsageLimiter throttles telemetry ingest per account. Without redis it is
// disabled and every request passes.
type UsageLimiter struct {
	bucket *TokenBucket
}

func NewUsageLimiter(bucket *TokenBucket) *UsageLimiter {
	return &UsageLimiter{bucket: bucket}
}

func (l *UsageLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *UsageLimiter) AllowAccount(ctx context.Context, accountID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, "ratelimit:usage:"+accountID, usageIngestRate, usageIngestBurst)
}
