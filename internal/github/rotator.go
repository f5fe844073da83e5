package github

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Rotator holds the pool of API tokens for one worker instance and hands
// out the active one. Quota is per-credential, so no cross-instance
// coordination exists; the only state is the pointer into the pool.
type Rotator struct {
	mu     sync.Mutex
	tokens []string
	index  int
	margin time.Duration
	logger *zap.Logger
}

// NewRotator builds a Rotator over the given token pool. The margin is
// added on top of quota reset instants when waiting.
func NewRotator(tokens []string, margin time.Duration, logger *zap.Logger) (*Rotator, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("at least one github token is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rotator{tokens: tokens, margin: margin, logger: logger}, nil
}

// Current returns the active token.
func (r *Rotator) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens[r.index]
}

// Rotate advances to the next token circularly and returns the new
// 1-based position for logging.
func (r *Rotator) Rotate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index = (r.index + 1) % len(r.tokens)
	r.logger.Info("rotated github token",
		zap.Int("token", r.index+1),
		zap.Int("of", len(r.tokens)))
	return r.index + 1
}

// Size returns the number of tokens in the pool.
func (r *Rotator) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

// WaitForQuota blocks until resetAt plus the safety margin elapses, or
// the context is cancelled. A zero or past resetAt returns immediately.
func (r *Rotator) WaitForQuota(ctx context.Context, resetAt time.Time) error {
	delay := time.Until(resetAt.Add(r.margin))
	if delay <= 0 {
		return nil
	}
	r.logger.Warn("waiting for quota window to reset", zap.Duration("delay", delay))
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
