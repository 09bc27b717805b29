package flowengine

import (
	"log/slog"
	"time"
)

// invocationOutcome reports what happened when a single component's
// lifecycle ran: an error, if any, and whether the component called
// ctx.Suspend during Process.
type invocationOutcome struct {
	err       error
	suspended bool
}

// flowRunner bundles everything an executor needs to invoke a single
// step or node, so runSequential/runConditional/runGraph and the
// timeout-mode-specific invokers all share one parameter instead of a
// growing positional list.
type flowRunner struct {
	components map[string]Component
	guard      *deadlineGuard
	hooks      *hookRegistry
	settings   FlowSettings
	cond       *conditionEvaluator
	logger     *slog.Logger

	// flowName and processCmd back the hard_process timeout mode: the
	// argv of a worker invocation of this same binary, and the flow name
	// the worker looks its own configuration up by (SPEC_FULL.md §5).
	flowName   string
	processCmd []string
}

// invokeComponent runs the setup/process/teardown lifecycle for one
// step or node, selecting the enforcement strategy named by
// settings.timeout_mode (SPEC_FULL.md §5). A component or configuration
// that cannot support the requested mode falls back to the cooperative
// path rather than failing the flow outright.
func invokeComponent(ctx *Context, comp Component, stepIndex int, nodeID string, r *flowRunner) invocationOutcome {
	switch r.settings.TimeoutMode {
	case "hard_async":
		if ac, ok := comp.(AsyncComponent); ok && ac.SupportsAsync() {
			return invokeHardAsync(ctx, ac, stepIndex, nodeID, r)
		}
	case "hard_process":
		if len(r.processCmd) > 0 {
			return invokeHardProcess(ctx, comp, stepIndex, nodeID, r)
		}
	}
	return invokeCooperative(ctx, comp, stepIndex, nodeID, r)
}

// invokeCooperative is the default timeout mode: the component runs
// synchronously in the executor's own goroutine and is trusted to call
// ctx.CheckDeadline periodically (SPEC_FULL.md §4.3 invariant, §8
// invariant 2). Teardown always runs once Setup has, regardless of what
// Process did.
func invokeCooperative(ctx *Context, comp Component, stepIndex int, nodeID string, r *flowRunner) invocationOutcome {
	flowID := ctx.Metadata.FlowID
	r.hooks.notifyNodeStart(flowID, nodeID)

	if err := r.guard.checkDeadline(nodeID); err != nil {
		r.hooks.notifyNodeError(flowID, nodeID, err)
		return invocationOutcome{err: err}
	}

	if err := comp.Setup(ctx); err != nil {
		wrapped := &ComponentError{Component: nodeID, Err: err}
		r.hooks.notifyNodeError(flowID, nodeID, wrapped)
		return invocationOutcome{err: wrapped}
	}

	r.guard.beginInvocation()
	ctx.checkDeadlineFn = func() error { return r.guard.checkDeadline(nodeID) }
	started := time.Now()
	processErr := comp.Process(ctx)
	duration := time.Since(started)
	ctx.checkDeadlineFn = nil

	return finishInvocation(ctx, comp, stepIndex, nodeID, r, started, duration, processErr, r.settings.RequireDeadlineCheck)
}

// finishInvocation runs the tail shared by every timeout mode's success
// path: the strict-mode deadline-check audit, Teardown, timing, and hook
// fan-out. checkStrict is false for modes that enforce the deadline
// externally (hard_async, hard_process), where a component's own
// CheckDeadline calls are meaningless.
func finishInvocation(
	ctx *Context,
	comp Component,
	stepIndex int,
	nodeID string,
	r *flowRunner,
	started time.Time,
	duration time.Duration,
	processErr error,
	checkStrict bool,
) invocationOutcome {
	flowID := ctx.Metadata.FlowID

	var deadlineErr error
	if checkStrict {
		if overrun := r.guard.invocationOverrun(); overrun > deadlineCheckWarningThreshold {
			deadlineErr = &DeadlineCheckError{
				Component: nodeID,
				Observed:  overrun.Seconds(),
				Threshold: deadlineCheckWarningThreshold.Seconds(),
			}
		}
	}

	teardownErr := comp.Teardown(ctx)
	ctx.Metadata.RecordTiming(stepIndex, nodeID, started, duration)
	suspended := ctx.Metadata.Suspended

	switch {
	case processErr != nil:
		wrapped := &ComponentError{Component: nodeID, Err: processErr}
		r.hooks.notifyNodeError(flowID, nodeID, wrapped)
		return invocationOutcome{err: wrapped, suspended: suspended}
	case deadlineErr != nil:
		r.hooks.notifyNodeError(flowID, nodeID, deadlineErr)
		return invocationOutcome{err: deadlineErr, suspended: suspended}
	case teardownErr != nil:
		wrapped := &ComponentError{Component: nodeID, Err: teardownErr}
		r.hooks.notifyNodeError(flowID, nodeID, wrapped)
		return invocationOutcome{err: wrapped, suspended: suspended}
	}

	r.hooks.notifyNodeComplete(flowID, nodeID, duration)
	return invocationOutcome{suspended: suspended}
}

// resolveComponent looks a step/node's declared component name up in
// the engine's instance registry.
func resolveComponent(components map[string]Component, name string) (Component, error) {
	comp, ok := components[name]
	if !ok {
		return nil, &ConfigurationError{Message: "unknown component referenced by flow", Issues: []string{name}}
	}
	return comp, nil
}

// effectiveOnError applies the "fail" fallback for an empty per-step
// on_error value (defensive: LoadFlowConfig already fills this in).
func effectiveOnError(v string) string {
	if v == "" {
		return "fail"
	}
	return v
}
