package flowengine

import (
	"log/slog"
	"time"
)

// Hook events an engine fans out during execution. Each is its own
// small interface — a hook implements only the events it cares about,
// following the same optional-capability pattern the reference
// container uses for Initializer/Shutdowner. An installed hook that
// implements none of these is legal and simply never called.
type (
	NodeStartHook interface {
		OnNodeStart(flowID, nodeID string)
	}
	NodeCompleteHook interface {
		OnNodeComplete(flowID, nodeID string, duration time.Duration)
	}
	NodeErrorHook interface {
		OnNodeError(flowID, nodeID string, err error)
	}
	NodeSkippedHook interface {
		OnNodeSkipped(flowID, nodeID, reason string)
	}
	FlowSuspendedHook interface {
		OnFlowSuspended(flowID, nodeID, reason string)
	}
	IterationStartHook interface {
		OnIterationStart(flowID string, iteration int)
	}
	IterationCompleteHook interface {
		OnIterationComplete(flowID string, iteration int)
	}
	MaxIterationsHook interface {
		OnMaxIterations(flowID string, maxIterations, actual int, cycleEntryNode string)
	}
)

// hookRegistry fans events out to installed hooks. Every dispatch is
// wrapped so a panicking or misbehaving hook can never alter the set of
// steps that ran or their outcomes (SPEC_FULL.md §8, invariant 9).
type hookRegistry struct {
	hooks  []any
	logger *slog.Logger
}

func newHookRegistry(logger *slog.Logger, hooks ...any) *hookRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &hookRegistry{hooks: hooks, logger: logger}
}

func (r *hookRegistry) isolate(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("hook panicked, ignoring", "hook", name, "panic", rec)
		}
	}()
	fn()
}

func (r *hookRegistry) notifyNodeStart(flowID, nodeID string) {
	for _, h := range r.hooks {
		if hook, ok := h.(NodeStartHook); ok {
			r.isolate("on_node_start", func() { hook.OnNodeStart(flowID, nodeID) })
		}
	}
}

func (r *hookRegistry) notifyNodeComplete(flowID, nodeID string, d time.Duration) {
	for _, h := range r.hooks {
		if hook, ok := h.(NodeCompleteHook); ok {
			r.isolate("on_node_complete", func() { hook.OnNodeComplete(flowID, nodeID, d) })
		}
	}
}

func (r *hookRegistry) notifyNodeError(flowID, nodeID string, err error) {
	for _, h := range r.hooks {
		if hook, ok := h.(NodeErrorHook); ok {
			r.isolate("on_node_error", func() { hook.OnNodeError(flowID, nodeID, err) })
		}
	}
}

func (r *hookRegistry) notifyNodeSkipped(flowID, nodeID, reason string) {
	for _, h := range r.hooks {
		if hook, ok := h.(NodeSkippedHook); ok {
			r.isolate("on_node_skipped", func() { hook.OnNodeSkipped(flowID, nodeID, reason) })
		}
	}
}

func (r *hookRegistry) notifyFlowSuspended(flowID, nodeID, reason string) {
	for _, h := range r.hooks {
		if hook, ok := h.(FlowSuspendedHook); ok {
			r.isolate("on_flow_suspended", func() { hook.OnFlowSuspended(flowID, nodeID, reason) })
		}
	}
}

func (r *hookRegistry) notifyIterationStart(flowID string, iteration int) {
	for _, h := range r.hooks {
		if hook, ok := h.(IterationStartHook); ok {
			r.isolate("on_iteration_start", func() { hook.OnIterationStart(flowID, iteration) })
		}
	}
}

func (r *hookRegistry) notifyIterationComplete(flowID string, iteration int) {
	for _, h := range r.hooks {
		if hook, ok := h.(IterationCompleteHook); ok {
			r.isolate("on_iteration_complete", func() { hook.OnIterationComplete(flowID, iteration) })
		}
	}
}

func (r *hookRegistry) notifyMaxIterations(flowID string, max, actual int, cycleEntryNode string) {
	for _, h := range r.hooks {
		if hook, ok := h.(MaxIterationsHook); ok {
			r.isolate("on_max_iterations", func() { hook.OnMaxIterations(flowID, max, actual, cycleEntryNode) })
		}
	}
}
