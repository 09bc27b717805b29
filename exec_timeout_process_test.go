package flowengine

import "testing"

// processScripted is a Component whose Setup/Process/Teardown are all
// individually observable, used to verify which process actually runs
// each lifecycle stage under hard_process mode.
type processScripted struct {
	BaseComponent
	setupFn    func(ctx *Context) error
	processFn  func(ctx *Context) error
	teardownFn func(ctx *Context) error
}

func newProcessScripted(name string) *processScripted {
	c := &processScripted{}
	c.BaseComponent = NewBaseComponent(name)
	c.isInitialized = true
	return c
}

func (c *processScripted) Setup(ctx *Context) error {
	if c.setupFn != nil {
		return c.setupFn(ctx)
	}
	return nil
}

func (c *processScripted) Process(ctx *Context) error {
	if c.processFn != nil {
		return c.processFn(ctx)
	}
	return nil
}

func (c *processScripted) Teardown(ctx *Context) error {
	if c.teardownFn != nil {
		return c.teardownFn(ctx)
	}
	return nil
}

func newTestRunner(processCmd []string, timeoutSeconds float64) *flowRunner {
	return &flowRunner{
		components: map[string]Component{},
		guard:      newDeadlineGuard(timeoutSeconds, false),
		hooks:      newHookRegistry(nil),
		settings:   FlowSettings{TimeoutMode: "hard_process"},
		cond:       newConditionEvaluator(),
		flowName:   "worker-test",
		processCmd: processCmd,
	}
}

func TestInvokeHardProcessFallsBackToCooperativeWithNoWorkerConfigured(t *testing.T) {
	ranProcess := false
	comp := newProcessScripted("a")
	comp.processFn = func(ctx *Context) error { ranProcess = true; return nil }

	r := newTestRunner(nil, 5)
	outcome := invokeComponent(NewContext(nil), comp, 0, "a", r)

	if outcome.err != nil {
		t.Fatalf("unexpected error: %v", outcome.err)
	}
	if !ranProcess {
		t.Error("expected Process to run cooperatively when no worker command is configured")
	}
}

// TestInvokeHardProcessRunsSetupAndTeardownOnMasterInstance drives a
// disposable "sh" worker that echoes a canned JSON response, and checks
// that Setup/Teardown ran on the master's own live component instance
// rather than inside the worker.
func TestInvokeHardProcessRunsSetupAndTeardownOnMasterInstance(t *testing.T) {
	setupRan, teardownRan := false, false
	comp := newProcessScripted("worker-comp")
	comp.setupFn = func(ctx *Context) error { setupRan = true; return nil }
	comp.teardownFn = func(ctx *Context) error { teardownRan = true; return nil }

	echo := `cat >/dev/null; printf '{"data":{"processed":true},"active_port":"done"}'`
	r := newTestRunner([]string{"sh", "-c", echo}, 5)

	ctx := NewContext(nil)
	outcome := invokeHardProcess(ctx, comp, 0, "worker-comp", r)

	if outcome.err != nil {
		t.Fatalf("unexpected error: %v", outcome.err)
	}
	if !setupRan {
		t.Error("expected Setup to run on the master's live instance")
	}
	if !teardownRan {
		t.Error("expected Teardown to run on the master's live instance")
	}
	if ctx.Data["processed"] != true {
		t.Error("expected the worker response to merge back into the live context")
	}
	if ctx.ActivePort() != "done" {
		t.Errorf("expected active port 'done', got %q", ctx.ActivePort())
	}
}

// TestInvokeHardProcessRunsTeardownOnMasterInstanceAfterTimeout kills a
// worker that never responds in time and checks that the master's live
// instance is still torn down.
func TestInvokeHardProcessRunsTeardownOnMasterInstanceAfterTimeout(t *testing.T) {
	teardownRan := false
	comp := newProcessScripted("slow-worker")
	comp.teardownFn = func(ctx *Context) error { teardownRan = true; return nil }

	r := newTestRunner([]string{"sh", "-c", "cat >/dev/null; sleep 5"}, 0.05)

	ctx := NewContext(nil)
	outcome := invokeHardProcess(ctx, comp, 0, "slow-worker", r)

	if outcome.err == nil {
		t.Fatal("expected a timeout error")
	}
	if _, ok := outcome.err.(*TimeoutError); !ok {
		t.Fatalf("expected *TimeoutError, got %T (%v)", outcome.err, outcome.err)
	}
	if !teardownRan {
		t.Error("expected Teardown to run on the master's live instance even after a worker timeout")
	}
}
