package infra

import (
	"testing"
	"time"
)

func TestCircuitBreaker_ClosedAllows(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 2, 50*time.Millisecond)

	if !cb.Allow() {
		t.Error("closed breaker should allow calls")
	}
	if cb.State() != BreakerClosed {
		t.Errorf("state = %s, want CLOSED", cb.State())
	}
}

func TestCircuitBreaker_OpensAtLimit(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 2, 50*time.Millisecond)

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != BreakerClosed {
		t.Fatal("breaker opened before the failure limit")
	}

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("state = %s after 3 failures, want OPEN", cb.State())
	}
	if cb.Allow() {
		t.Error("open breaker should reject calls")
	}
}

func TestCircuitBreaker_RecoveryCycle(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, 2, 30*time.Millisecond)

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatal("expected OPEN")
	}

	time.Sleep(40 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("breaker should half-open after the open duration")
	}
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("state = %s, want HALF_OPEN", cb.State())
	}

	cb.RecordSuccess()
	if cb.State() != BreakerHalfOpen {
		t.Error("one probe success should not close the breaker")
	}
	cb.RecordSuccess()
	if cb.State() != BreakerClosed {
		t.Errorf("state = %s after probe successes, want CLOSED", cb.State())
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, 1, 20*time.Millisecond)

	cb.RecordFailure()
	cb.RecordFailure()
	time.Sleep(30 * time.Millisecond)
	cb.Allow() // transitions to half-open

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Errorf("state = %s after failed probe, want OPEN", cb.State())
	}
}
