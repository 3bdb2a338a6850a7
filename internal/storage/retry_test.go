package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

// flakyWriter fails the first fail calls to Set.
type flakyWriter struct {
	fail  int
	calls int
}

func (f *flakyWriter) Set(ctx context.Context, key, value string) error {
	f.calls++
	if f.calls <= f.fail {
		return errors.New("set fail")
	}
	return nil
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSetWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &flakyWriter{fail: 2}
	start := time.Now()
	if err := setWithRetry(context.Background(), f, "accessiride-reports", "[]", 3, 10*time.Millisecond, discardLogger()); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", f.calls)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("expected doubling backoff between attempts")
	}
}

func TestSetWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &flakyWriter{fail: 5}
	if err := setWithRetry(context.Background(), f, "k", "v", 3, 5*time.Millisecond, discardLogger()); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.calls)
	}
}

func TestSetWithRetry_StopsOnCancel(t *testing.T) {
	f := &flakyWriter{fail: 5}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := setWithRetry(ctx, f, "k", "v", 3, time.Second, discardLogger())
	if !errors.Is(err, context.Canceled) || f.calls != 1 {
		t.Fatalf("expected cancellation after one call, got %v (%d calls)", err, f.calls)
	}
}

// flakyKV fails the first fail writes, then stores.
type flakyKV struct {
	*MemoryKV
	fail int
}

func (f *flakyKV) Set(ctx context.Context, key, value string) error {
	if f.fail > 0 {
		f.fail--
		return errors.New("connection reset")
	}
	return f.MemoryKV.Set(ctx, key, value)
}

func TestRetryingKVKeepsStoreWrites(t *testing.T) {
	mem := NewMemoryKV()
	kv := NewRetryingKV(&flakyKV{MemoryKV: mem, fail: 2}, 3, time.Millisecond, discardLogger())
	s := Open(context.Background(), kv, Options{Logger: discardLogger()})
	s.AddTrip(context.Background(), "Work", "Home", "CMU")

	reopened := Open(context.Background(), mem, Options{Logger: discardLogger()})
	if trips := reopened.Trips(); len(trips) != 1 || trips[0].Name != "Work" {
		t.Fatalf("trip lost across a transient write failure: %+v", trips)
	}
}
