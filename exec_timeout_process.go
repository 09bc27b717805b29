package flowengine

import (
	"bytes"
	gocontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// processWorkerRequest is the JSON envelope written to a hard_process
// worker's stdin: enough for the worker to rebuild the same component
// and hand it a copy of the live context's data (SPEC_FULL.md §5,
// "hard_process" mode).
type processWorkerRequest struct {
	ComponentName string         `json:"component_name"`
	Data          map[string]any `json:"data"`
	Input         any            `json:"input"`
}

// processWorkerResponse is the JSON envelope a worker writes to stdout
// after running the component's full Setup/Process/Teardown lifecycle
// in its own process.
type processWorkerResponse struct {
	Data             map[string]any `json:"data"`
	ActivePort       string         `json:"active_port"`
	Suspended        bool           `json:"suspended"`
	SuspendedAtNode  string         `json:"suspended_at_node,omitempty"`
	SuspensionReason string         `json:"suspension_reason,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// invokeHardProcess runs only a component's Process step inside a
// forked worker process; Setup and Teardown always run against the
// engine's own live component instance in this process, matching every
// other timeout mode (SPEC_FULL.md §5: "teardown runs in the master in
// all three cases"). r.processCmd names the worker binary (typically
// this same binary re-invoked in worker mode, see cmd/flowengine);
// r.flowName tells the worker which flow configuration to reload so it
// can rebuild its own copy of the named component to run Process
// against — that copy is entirely disposable and never touched by the
// master beyond the JSON envelope it returns.
func invokeHardProcess(ctx *Context, comp Component, stepIndex int, nodeID string, r *flowRunner) invocationOutcome {
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
	started := time.Now()

	remaining := time.Until(r.guard.deadline)
	if remaining < 0 {
		remaining = 0
	}
	procCtx, cancel := gocontext.WithTimeout(gocontext.Background(), remaining)
	defer cancel()

	req := processWorkerRequest{ComponentName: comp.Name(), Data: deepCopyMap(ctx.Data), Input: ctx.Input}
	payload, err := json.Marshal(req)
	if err != nil {
		return finishInvocation(ctx, comp, stepIndex, nodeID, r, started, time.Since(started),
			fmt.Errorf("encode worker request: %w", err), false)
	}

	cmd := exec.CommandContext(procCtx, r.processCmd[0], r.processCmd[1:]...)
	cmd.Env = append(os.Environ(), "FLOWENGINE_WORKER=1", "FLOWENGINE_WORKER_FLOW="+r.flowName)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	duration := time.Since(started)

	// Teardown always runs against the live master instance from this
	// point on, regardless of how the worker fared — a killed or
	// misbehaving worker process must never leave the master's own
	// component instance stuck mid-lifecycle.
	if procCtx.Err() == gocontext.DeadlineExceeded {
		timeoutErr := &TimeoutError{Elapsed: r.guard.overrunSeconds(), Step: nodeID}
		teardownErr := comp.Teardown(ctx)
		ctx.Metadata.RecordTiming(stepIndex, nodeID, started, duration)
		suspended := ctx.Metadata.Suspended
		if teardownErr != nil && r.logger != nil {
			r.logger.Warn("teardown failed after hard_process timeout", "component", nodeID, "error", teardownErr)
		}
		r.hooks.notifyNodeError(flowID, nodeID, timeoutErr)
		return invocationOutcome{err: timeoutErr, suspended: suspended}
	}
	if runErr != nil {
		return finishInvocation(ctx, comp, stepIndex, nodeID, r, started, duration,
			fmt.Errorf("worker process: %w (stderr: %s)", runErr, stderr.String()), false)
	}

	var resp processWorkerResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return finishInvocation(ctx, comp, stepIndex, nodeID, r, started, duration,
			fmt.Errorf("decode worker response: %w", err), false)
	}

	for k, v := range resp.Data {
		ctx.Data[k] = v
	}
	ctx.activePort = resp.ActivePort
	if resp.Suspended {
		ctx.Metadata.Suspended = true
		ctx.Metadata.SuspendedAtNode = resp.SuspendedAtNode
		ctx.Metadata.SuspensionReason = resp.SuspensionReason
	}

	var processErr error
	if resp.Error != "" {
		processErr = errors.New(resp.Error)
	}
	return finishInvocation(ctx, comp, stepIndex, nodeID, r, started, duration, processErr, false)
}
