package flowengine

import (
	gocontext "context"
	"time"
)

// invokeHardAsync enforces the flow deadline with a timer instead of
// trusting the component to call CheckDeadline: Process runs on its own
// goroutine against a private snapshot of the context, and the executor
// races that goroutine against the remaining deadline (SPEC_FULL.md §5,
// "hard_async" mode).
//
// A worker that finishes before the deadline has its Data merged back
// into the live context. A worker that is still running when the timer
// fires is abandoned — its private snapshot is discarded rather than
// merged, per the resolved open question in SPEC_FULL.md §9 — but
// Teardown still runs against the live context, honoring the
// always-teardown invariant of the component contract.
func invokeHardAsync(ctx *Context, comp AsyncComponent, stepIndex int, nodeID string, r *flowRunner) invocationOutcome {
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
	private := ctx.Copy()

	started := time.Now()
	workerCtx, cancel := gocontext.WithCancel(gocontext.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- comp.ProcessAsync(workerCtx, private)
	}()

	remaining := time.Until(r.guard.deadline)
	if remaining < 0 {
		remaining = 0
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case processErr := <-done:
		duration := time.Since(started)
		mergeAsyncResult(ctx, private)
		return finishInvocation(ctx, comp, stepIndex, nodeID, r, started, duration, processErr, false)

	case <-timer.C:
		timeoutErr := &TimeoutError{Elapsed: r.guard.overrunSeconds(), Step: nodeID}
		duration := time.Since(started)
		teardownErr := comp.Teardown(ctx)
		ctx.Metadata.RecordTiming(stepIndex, nodeID, started, duration)
		suspended := ctx.Metadata.Suspended

		if teardownErr != nil && r.logger != nil {
			r.logger.Warn("teardown failed after hard_async timeout", "component", nodeID, "error", teardownErr)
		}
		r.hooks.notifyNodeError(flowID, nodeID, timeoutErr)
		return invocationOutcome{err: timeoutErr, suspended: suspended}
	}
}

// mergeAsyncResult copies a successful hard_async worker's Data and
// active port back into the live context. Metadata is shared by
// reference already (see Context.Copy), so a component that suspends or
// records nothing extra needs no further reconciliation here.
func mergeAsyncResult(live, worker *Context) {
	for k, v := range worker.Data {
		live.Data[k] = v
	}
	live.activePort = worker.activePort
}
