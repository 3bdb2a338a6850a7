package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryingKV retries slot writes with doubling backoff so a backend blip
// does not drop a mutation. Reads and Close pass through.
type RetryingKV struct {
	KV
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

func NewRetryingKV(kv KV, attempts int, delay time.Duration, logger *slog.Logger) *RetryingKV {
	if attempts <= 0 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingKV{KV: kv, attempts: attempts, delay: delay, logger: logger}
}

func (k *RetryingKV) Set(ctx context.Context, key, value string) error {
	return setWithRetry(ctx, k.KV, key, value, k.attempts, k.delay, k.logger)
}

// SlotWriter is the write half of KV.
type SlotWriter interface {
	Set(ctx context.Context, key, value string) error
}

// setWithRetry writes a slot, doubling delay after each failure.
func setWithRetry(ctx context.Context, w SlotWriter, key, value string, attempts int, delay time.Duration, logger *slog.Logger) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = w.Set(ctx, key, value); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		logger.Warn("slot write failed, retrying", "key", key, "attempt", i+1, "backoff", delay, "error", err)
		if !sleepCtx(ctx, delay) {
			return errors.Join(err, ctx.Err())
		}
		delay *= 2
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
