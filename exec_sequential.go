package flowengine

// runSequential implements the Sequential Executor (SPEC_FULL.md §4.3):
// every step runs in declared order, gated individually by its own
// condition. A component error's fate depends on fail_fast and the
// step's own on_error, per §7's propagation policy.
func runSequential(ctx *Context, steps []StepConfig, r *flowRunner) error {
	for i, step := range steps {
		if err := r.guard.checkDeadline(step.Component); err != nil {
			return err
		}

		matched, condErr := r.cond.evaluate(step.Condition, ctx)
		if condErr != nil {
			ce := condErr.(*ConditionEvalError)
			ctx.Metadata.AddConditionError(step.Component, ce.Expression, ce.Reason)
			switch r.settings.OnConditionError {
			case "fail":
				return condErr
			case "warn":
				if r.logger != nil {
					r.logger.Warn("condition evaluation failed", "component", step.Component, "error", condErr)
				}
				fallthrough
			default: // skip, warn
				ctx.Metadata.AddSkipped(step.Component)
				r.hooks.notifyNodeSkipped(ctx.Metadata.FlowID, step.Component, "condition_error")
				continue
			}
		}
		if !matched {
			ctx.Metadata.AddSkipped(step.Component)
			r.hooks.notifyNodeSkipped(ctx.Metadata.FlowID, step.Component, "condition_false")
			continue
		}

		comp, err := resolveComponent(r.components, step.Component)
		if err != nil {
			return err
		}

		outcome := invokeComponent(ctx, comp, i, step.Component, r)
		if outcome.suspended {
			return nil
		}
		if outcome.err == nil {
			continue
		}

		// Timeout and DeadlineCheck are always fatal regardless of
		// fail_fast or the step's on_error (SPEC_FULL.md §7).
		switch outcome.err.(type) {
		case *TimeoutError, *DeadlineCheckError:
			return outcome.err
		}

		ctx.Metadata.AddError(step.Component, outcome.err)
		if r.settings.FailFast {
			return outcome.err
		}

		switch effectiveOnError(step.OnError) {
		case "fail":
			return outcome.err
		case "skip":
			ctx.Metadata.AddSkipped(step.Component)
			r.hooks.notifyNodeSkipped(ctx.Metadata.FlowID, step.Component, "on_error_skip")
		case "continue":
			// Already recorded as run (RecordTiming happened inside
			// invokeComponent) with the error appended; proceed as-is.
		}
	}
	return nil
}
