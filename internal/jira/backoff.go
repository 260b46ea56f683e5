package jira

import (
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/danielolaszy/tether/pkg/models"
)

// backoffPolicy computes retry delays. Every retry path in the client goes
// through this one policy so behavior is uniform across failure kinds.
type backoffPolicy struct {
	base       time.Duration
	max        time.Duration
	maxRetries int
}

// delay returns base * 2^attempt plus random jitter, capped at max.
func (p backoffPolicy) delay(attempt int) time.Duration {
	d := p.base << uint(attempt)
	if d > p.max || d <= 0 {
		return p.max
	}
	jitter := time.Duration(rand.Int63n(int64(p.base) + 1))
	if d+jitter > p.max {
		return p.max
	}
	return d + jitter
}

// rateLimitDelay returns the remote-suggested wait, defaulting to twice
// the base delay when the response carried no Retry-After.
func (p backoffPolicy) rateLimitDelay(info *models.RateLimitInfo) time.Duration {
	if info != nil && info.RetryAfter > 0 {
		return info.RetryAfter
	}
	return p.base * 2
}

// parseRateLimit builds rate-limit info from a 429 response's headers. The
// result lives only until the retry decision is made.
func parseRateLimit(h http.Header) *models.RateLimitInfo {
	info := &models.RateLimitInfo{Remaining: -1}

	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			info.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.Remaining = n
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			info.ResetAt = time.Unix(epoch, 0)
		} else if at, err := time.Parse(time.RFC3339, v); err == nil {
			info.ResetAt = at
		}
	}

	return info
}
