package flowengine

import "testing"

func TestContextGetMissingPathReturnsFalse(t *testing.T) {
	ctx := NewContext(nil)
	ctx.Set("user", map[string]any{"profile": map[string]any{"age": 30}})

	if v, ok := ctx.Get("user.profile.age"); !ok || v != 30 {
		t.Errorf("expected 30, got %v, %v", v, ok)
	}
	if _, ok := ctx.Get("user.profile.missing"); ok {
		t.Error("expected missing segment to return false")
	}
	if _, ok := ctx.Get("user.missing.deeper"); ok {
		t.Error("expected missing intermediate segment to return false, not panic")
	}
}

func TestContextGetIndexesSlices(t *testing.T) {
	ctx := NewContext(nil)
	ctx.Set("items", []any{"a", "b", "c"})

	if v, ok := ctx.Get("items.1"); !ok || v != "b" {
		t.Errorf("expected items.1 = b, got %v, %v", v, ok)
	}
	if _, ok := ctx.Get("items.10"); ok {
		t.Error("expected out-of-range index to return false")
	}
}

func TestContextActivePortLifecycle(t *testing.T) {
	ctx := NewContext(nil)
	if ctx.ActivePort() != "" {
		t.Error("expected no active port initially")
	}
	ctx.SetOutputPort("pass")
	if ctx.ActivePort() != "pass" {
		t.Errorf("expected active port 'pass', got %q", ctx.ActivePort())
	}
	ctx.clearActivePort()
	if ctx.ActivePort() != "" {
		t.Error("expected active port cleared")
	}
}

func TestContextSuspend(t *testing.T) {
	ctx := NewContext(nil)
	ctx.Suspend("b", "awaiting approval")

	if !ctx.Metadata.Suspended {
		t.Error("expected Suspended to be true")
	}
	if ctx.Metadata.SuspendedAtNode != "b" {
		t.Errorf("expected suspended_at_node 'b', got %q", ctx.Metadata.SuspendedAtNode)
	}
	if ctx.Metadata.SuspensionReason != "awaiting approval" {
		t.Errorf("unexpected suspension reason: %q", ctx.Metadata.SuspensionReason)
	}
}

func TestContextCopyIsIndependent(t *testing.T) {
	ctx := NewContext(nil)
	ctx.Set("nested", map[string]any{"count": 1})

	copy := ctx.Copy()
	nested := copy.Data["nested"].(map[string]any)
	nested["count"] = 2

	original := ctx.Data["nested"].(map[string]any)
	if original["count"] != 1 {
		t.Errorf("expected original count to stay 1, got %v", original["count"])
	}
}

func TestContextRoundTripSerialization(t *testing.T) {
	ctx := NewContext(map[string]any{"initial": true})
	ctx.Set("a", 1.0)
	ctx.Set("b", "hello")
	ctx.Metadata.RecordTiming(0, "step-a", ctx.Metadata.StartedAt, 0)
	ctx.Metadata.AddSkipped("step-b")
	ctx.Metadata.AddError("step-c", &ComponentError{Component: "step-c", Err: errTest{}})

	serialized := ctx.ToSerialization()
	restored := FromSerialization(serialized)

	if restored.Data["a"] != 1.0 || restored.Data["b"] != "hello" {
		t.Errorf("data did not round-trip: %+v", restored.Data)
	}
	if restored.Input.(map[string]any)["initial"] != true {
		t.Errorf("input did not round-trip: %+v", restored.Input)
	}
	if restored.Metadata.FlowID != ctx.Metadata.FlowID {
		t.Error("flow id did not round-trip")
	}
	if len(restored.Metadata.StepTimings) != 1 {
		t.Errorf("expected 1 step timing, got %d", len(restored.Metadata.StepTimings))
	}
	if len(restored.Metadata.SkippedComponents) != 1 {
		t.Errorf("expected 1 skipped component, got %d", len(restored.Metadata.SkippedComponents))
	}
	if len(restored.Metadata.Errors) != 1 {
		t.Errorf("expected 1 error, got %d", len(restored.Metadata.Errors))
	}
}

type errTest struct{}

func (errTest) Error() string { return "boom" }
