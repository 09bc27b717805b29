package flowengine

import "github.com/sflowg/flowengine/eval"

// conditionEvaluator wraps eval.Evaluator, translating its errors into
// the package's own ConditionEvalError so callers only ever see the
// flowengine error taxonomy.
type conditionEvaluator struct {
	inner *eval.Evaluator
}

func newConditionEvaluator() *conditionEvaluator {
	return &conditionEvaluator{inner: eval.New()}
}

// evaluate runs a step's condition string against a Context, returning
// true when the step should run. An empty expression always runs.
func (c *conditionEvaluator) evaluate(expression string, ctx *Context) (bool, error) {
	if expression == "" {
		return true, nil
	}
	ok, err := c.inner.Eval(expression, ctx.ToSerialization())
	if err != nil {
		return false, &ConditionEvalError{Expression: expression, Reason: err.Error()}
	}
	return ok, nil
}
