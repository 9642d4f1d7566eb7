package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowExhaustsBucket(t *testing.T) {
	tb := NewTokenBucket(3, 1)
	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if tb.Allow() {
		t.Fatal("empty bucket should refuse")
	}
}

func TestWaitCancelled(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	if !tb.Allow() {
		t.Fatal("first request should be allowed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tb.Wait(ctx); err == nil {
		t.Fatal("expected context error from Wait on empty bucket")
	}
}

func TestWaitSucceedsWhenTokensRemain(t *testing.T) {
	tb := NewTokenBucket(2, 1)
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
