package flowengine

import "testing"

func TestConditionEvaluatorEmptyExpressionAlwaysRuns(t *testing.T) {
	c := newConditionEvaluator()
	ok, err := c.evaluate("", NewContext(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected an empty condition to evaluate true")
	}
}

func TestConditionEvaluatorTranslatesEvalErrors(t *testing.T) {
	c := newConditionEvaluator()
	_, err := c.evaluate("context.x()", NewContext(nil))
	if err == nil {
		t.Fatal("expected an error for a rejected call form")
	}
	if _, ok := err.(*ConditionEvalError); !ok {
		t.Fatalf("expected *ConditionEvalError, got %T", err)
	}
}

func TestConditionEvaluatorReadsContextData(t *testing.T) {
	c := newConditionEvaluator()
	ctx := NewContext(nil)
	ctx.Set("flag", true)

	ok, err := c.evaluate("context.data.flag == true", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected condition referencing context data to evaluate true")
	}
}
