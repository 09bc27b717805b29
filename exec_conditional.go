package flowengine

// runConditional implements the Conditional (First-Match) Executor
// (SPEC_FULL.md §4.4): the first step whose condition evaluates true
// runs; a step with no condition is the unconditional default case.
// Every other step, including ones never reached because an earlier
// one already matched, is recorded as skipped.
func runConditional(ctx *Context, steps []StepConfig, r *flowRunner) error {
	matchedIndex := -1

	for i, step := range steps {
		if err := r.guard.checkDeadline(step.Component); err != nil {
			return err
		}

		if step.Condition == "" {
			matchedIndex = i
			break
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
			}
			// skip and warn both fall through: a failing condition
			// never causes the default case to fire early, it is just
			// treated as false for this step.
			continue
		}
		if matched {
			matchedIndex = i
			break
		}
	}

	for i, step := range steps {
		if i != matchedIndex {
			ctx.Metadata.AddSkipped(step.Component)
			r.hooks.notifyNodeSkipped(ctx.Metadata.FlowID, step.Component, "not_first_match")
		}
	}

	if matchedIndex == -1 {
		return nil
	}

	step := steps[matchedIndex]
	comp, err := resolveComponent(r.components, step.Component)
	if err != nil {
		return err
	}

	outcome := invokeComponent(ctx, comp, matchedIndex, step.Component, r)
	if outcome.suspended || outcome.err == nil {
		return nil
	}

	switch outcome.err.(type) {
	case *TimeoutError, *DeadlineCheckError:
		return outcome.err
	}

	ctx.Metadata.AddError(step.Component, outcome.err)
	if r.settings.FailFast {
		return outcome.err
	}
	if effectiveOnError(step.OnError) == "fail" {
		return outcome.err
	}
	return nil
}
