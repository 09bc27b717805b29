package flowengine

import "testing"

type fakeComponent struct {
	BaseComponent
	processFn func(ctx *Context) error
}

func newFakeComponent(name string, processFn func(ctx *Context) error) *fakeComponent {
	c := &fakeComponent{processFn: processFn}
	c.BaseComponent = NewBaseComponent(name)
	return c
}

func (c *fakeComponent) Process(ctx *Context) error {
	if c.processFn != nil {
		return c.processFn(ctx)
	}
	return nil
}

func TestBaseComponentLifecycleOrder(t *testing.T) {
	c := newFakeComponent("test", nil)

	if c.HealthCheck() {
		t.Error("expected HealthCheck false before Init")
	}
	if err := c.Init(map[string]any{"key": "value"}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !c.HealthCheck() {
		t.Error("expected HealthCheck true after Init")
	}
	if c.Config()["key"] != "value" {
		t.Errorf("expected config to round-trip, got %+v", c.Config())
	}

	ctx := NewContext(nil)
	if err := c.Setup(ctx); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := c.Process(ctx); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if err := c.Teardown(ctx); err != nil {
		t.Fatalf("Teardown failed: %v", err)
	}
}

func TestBaseComponentValidateConfigDefaultsToNoIssues(t *testing.T) {
	c := newFakeComponent("test", nil)
	if issues := c.ValidateConfig(); issues != nil {
		t.Errorf("expected nil issues, got %v", issues)
	}
}

func TestBaseComponentInitNilConfigDoesNotPanic(t *testing.T) {
	c := newFakeComponent("test", nil)
	if err := c.Init(nil); err != nil {
		t.Fatalf("Init(nil) failed: %v", err)
	}
	if c.Config() == nil {
		t.Error("expected Config() to return an empty map, not nil")
	}
}

func TestBaseComponentInstancesAreIndependent(t *testing.T) {
	a := newFakeComponent("a", nil)
	b := newFakeComponent("b", nil)

	a.Init(map[string]any{"x": 1})
	if b.HealthCheck() {
		t.Error("expected b to be unaffected by a's Init")
	}
}
