package flowengine

import (
	"testing"
	"time"
)

func TestDeadlineGuardNotExpiredBeforeTimeout(t *testing.T) {
	g := newDeadlineGuard(1, false)
	if g.expired() {
		t.Error("expected guard not to be expired immediately")
	}
	if err := g.checkDeadline("step-a"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestDeadlineGuardExpiresAfterTimeout(t *testing.T) {
	g := newDeadlineGuard(0.01, false)
	time.Sleep(20 * time.Millisecond)

	if !g.expired() {
		t.Error("expected guard to be expired")
	}
	err := g.checkDeadline("step-a")
	if err == nil {
		t.Fatal("expected a TimeoutError")
	}
	te, ok := err.(*TimeoutError)
	if !ok {
		t.Fatalf("expected *TimeoutError, got %T", err)
	}
	if te.Step != "step-a" {
		t.Errorf("expected step 'step-a', got %q", te.Step)
	}
}

func TestDeadlineGuardInvocationOverrun(t *testing.T) {
	g := newDeadlineGuard(10, true)
	g.beginInvocation()
	time.Sleep(5 * time.Millisecond)

	if g.invocationOverrun() < 5*time.Millisecond {
		t.Error("expected invocation overrun to reflect elapsed time since last check")
	}
}
