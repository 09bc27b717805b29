package flowengine

import (
	"testing"
	"time"
)

type recordingHooks struct {
	starts    []string
	completes []string
	errors    []string
	skips     []string
}

func (h *recordingHooks) OnNodeStart(flowID, nodeID string) { h.starts = append(h.starts, nodeID) }
func (h *recordingHooks) OnNodeComplete(flowID, nodeID string, d time.Duration) {
	h.completes = append(h.completes, nodeID)
}
func (h *recordingHooks) OnNodeError(flowID, nodeID string, err error) {
	h.errors = append(h.errors, nodeID)
}
func (h *recordingHooks) OnNodeSkipped(flowID, nodeID, reason string) {
	h.skips = append(h.skips, nodeID)
}

type panickingHook struct{}

func (panickingHook) OnNodeStart(flowID, nodeID string) { panic("boom") }

func TestHookRegistryFansOutToInstalledHooks(t *testing.T) {
	rec := &recordingHooks{}
	r := newHookRegistry(nil, rec)

	r.notifyNodeStart("flow-1", "a")
	r.notifyNodeComplete("flow-1", "a", time.Millisecond)
	r.notifyNodeError("flow-1", "b", errTest{})
	r.notifyNodeSkipped("flow-1", "c", "condition_false")

	if len(rec.starts) != 1 || rec.starts[0] != "a" {
		t.Errorf("expected one start for 'a', got %+v", rec.starts)
	}
	if len(rec.completes) != 1 || rec.completes[0] != "a" {
		t.Errorf("expected one complete for 'a', got %+v", rec.completes)
	}
	if len(rec.errors) != 1 || rec.errors[0] != "b" {
		t.Errorf("expected one error for 'b', got %+v", rec.errors)
	}
	if len(rec.skips) != 1 || rec.skips[0] != "c" {
		t.Errorf("expected one skip for 'c', got %+v", rec.skips)
	}
}

// A panicking hook must never alter execution outcome — the registry
// isolates every dispatch (SPEC_FULL.md §8, invariant 9).
func TestHookRegistryIsolatesPanickingHook(t *testing.T) {
	rec := &recordingHooks{}
	r := newHookRegistry(nil, panickingHook{}, rec)

	r.notifyNodeStart("flow-1", "a")

	if len(rec.starts) != 1 {
		t.Errorf("expected the well-behaved hook to still run, got %+v", rec.starts)
	}
}

func TestHookRegistryIgnoresHooksThatDontImplementTheEvent(t *testing.T) {
	r := newHookRegistry(nil, struct{}{})
	// None of these should panic even though struct{}{} implements no
	// hook interface at all.
	r.notifyNodeStart("flow-1", "a")
	r.notifyIterationStart("flow-1", 0)
	r.notifyMaxIterations("flow-1", 10, 10, "a")
}
