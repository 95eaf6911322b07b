package infra

import (
	"errors"
	"testing"
	"time"

	"github.com/erdoganonur/bist-trading-platform-sub007/internal/domain"
)

func testPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    1 * time.Second,
		MaxElapsed:  10 * time.Second,
	}
}

func transientErr() error {
	return &domain.TransientError{Op: "place", Err: errors.New("timeout")}
}

func TestDecide_RetriesTransient(t *testing.T) {
	p := testPolicy()

	d := p.Decide(1, 0, transientErr())
	if !d.Retry {
		t.Fatal("attempt 1 with transient error should retry")
	}
	if d.Delay < 100*time.Millisecond || d.Delay > 150*time.Millisecond {
		t.Errorf("attempt 1 delay = %v, want [100ms, 150ms]", d.Delay)
	}

	d = p.Decide(2, 0, transientErr())
	if !d.Retry {
		t.Fatal("attempt 2 should retry")
	}
	if d.Delay < 200*time.Millisecond || d.Delay > 300*time.Millisecond {
		t.Errorf("attempt 2 delay = %v, want [200ms, 300ms]", d.Delay)
	}
}

func TestDecide_MaxAttempts(t *testing.T) {
	p := testPolicy()
	if d := p.Decide(3, 0, transientErr()); d.Retry {
		t.Error("attempt at MaxAttempts must give up")
	}
	if d := p.Decide(7, 0, transientErr()); d.Retry {
		t.Error("attempt beyond MaxAttempts must give up")
	}
}

func TestDecide_MaxElapsed(t *testing.T) {
	p := testPolicy()
	if d := p.Decide(1, 11*time.Second, transientErr()); d.Retry {
		t.Error("elapsed beyond MaxElapsed must give up")
	}
}

func TestDecide_NeverRetriesNonTransient(t *testing.T) {
	p := testPolicy()

	cases := []error{
		nil,
		&domain.ValidationError{Message: "bad"},
		&domain.RejectionError{Reason: "insufficient balance"},
		&domain.AuthError{Reason: "bad credentials", Fatal: true},
		errors.New("unclassified"),
	}
	for _, err := range cases {
		if d := p.Decide(1, 0, err); d.Retry {
			t.Errorf("Decide(%v) retried, want give up", err)
		}
	}
}

func TestDecide_SessionInvalidIsRetryable(t *testing.T) {
	p := testPolicy()
	if d := p.Decide(1, 0, domain.ErrSessionInvalid); !d.Retry {
		t.Error("session-invalid should be retried with a fresh session")
	}
}

func TestBackoff_Capped(t *testing.T) {
	p := testPolicy()
	for attempt := 1; attempt < 50; attempt++ {
		if got := p.backoff(attempt); got > p.MaxDelay {
			t.Fatalf("backoff(%d) = %v exceeds cap %v", attempt, got, p.MaxDelay)
		}
	}
}
