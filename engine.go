package flowengine

import (
	gocontext "context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// resumeDataKey is the well-known Context.Data key a resumed
// execution's resume payload is attached under (SPEC_FULL.md §4.6).
const resumeDataKey = "resume_data"

// Engine is the Flow Engine dispatcher (SPEC_FULL.md §4.6): it owns a
// validated configuration, a component instance registry, a checkpoint
// store, and the installed hooks, and selects the correct executor by
// configuration type.
type Engine struct {
	config      *FlowConfig
	components  map[string]Component
	checkpoints CheckpointStore
	hookList    []any
	logger      *slog.Logger
	cond        *conditionEvaluator

	tracer        trace.Tracer
	stepsExecuted metric.Int64Counter
	stepDuration  metric.Float64Histogram
	iterations    metric.Int64Counter

	// processCommand is the argv of a worker invocation of this same
	// binary, used by the hard_process timeout mode (SPEC_FULL.md §5). A
	// nil value means hard_process falls back to the cooperative path.
	processCommand []string
}

// EngineOption configures optional Engine collaborators.
type EngineOption func(*Engine)

// WithCheckpointStore overrides the default in-memory CheckpointStore.
func WithCheckpointStore(store CheckpointStore) EngineOption {
	return func(e *Engine) { e.checkpoints = store }
}

// WithLogger overrides the engine's structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithHooks installs one or more observer hooks.
func WithHooks(hooks ...any) EngineOption {
	return func(e *Engine) { e.hookList = append(e.hookList, hooks...) }
}

// WithTracer attaches an OpenTelemetry tracer; Execute/Resume then
// produce one span per call. No per-node or per-step child spans are
// created.
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = tracer }
}

// WithMeter attaches an OpenTelemetry meter and instantiates the three
// instruments the dispatcher records to: flowengine.steps.executed,
// flowengine.step.duration, flowengine.iterations.
func WithMeter(meter metric.Meter) EngineOption {
	return func(e *Engine) {
		if meter == nil {
			return
		}
		e.stepsExecuted, _ = meter.Int64Counter("flowengine.steps.executed")
		e.stepDuration, _ = meter.Float64Histogram("flowengine.step.duration")
		e.iterations, _ = meter.Int64Counter("flowengine.iterations")
	}
}

// WithProcessCommand configures the worker argv the hard_process timeout
// mode re-invokes for each node/step it runs. The reference entrypoint
// (cmd/flowengine) passes its own executable path here and answers
// worker invocations by way of the FLOWENGINE_WORKER environment
// variable.
func WithProcessCommand(argv []string) EngineOption {
	return func(e *Engine) { e.processCommand = argv }
}

// NewEngine constructs an Engine from a validated configuration and a
// component instance registry keyed by the names the configuration
// references. Construction fails with a *ConfigurationError if the
// configuration is structurally invalid.
func NewEngine(cfg *FlowConfig, components map[string]Component, opts ...EngineOption) (*Engine, error) {
	if issues := ValidateFlowConfig(cfg); len(issues) > 0 {
		return nil, &ConfigurationError{Message: "invalid flow configuration", Issues: issues}
	}
	e := &Engine{
		config:      cfg,
		components:  components,
		checkpoints: NewInMemoryCheckpointStore(),
		logger:      slog.Default(),
		cond:        newConditionEvaluator(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) registry() *hookRegistry {
	return newHookRegistry(e.logger, e.hookList...)
}

// Execute runs the configured flow to completion, suspension, or a
// fatal error. A nil initial context starts from an empty one.
func (e *Engine) Execute(ctx gocontext.Context, initial *Context) (*Context, error) {
	fctx := initial
	if fctx == nil {
		fctx = NewContext(nil)
	}

	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "flowengine.execute",
			trace.WithAttributes(attribute.String("flowengine.flow_id", fctx.Metadata.FlowID)))
		defer span.End()
	}

	settings := e.config.Flow.Settings
	guard := newDeadlineGuard(settings.TimeoutSeconds, settings.RequireDeadlineCheck)
	registry := e.registry()

	err := e.dispatch(fctx, settings, guard, registry)
	return e.finalize(ctx, fctx, err, registry)
}

// Resume loads a checkpoint, restores its context, attaches resumeData
// under the "resume_data" key, and re-invokes the appropriate
// executor. The executor starts again from the flow's first step or
// root node: completed_nodes is not consulted, so steps and nodes that
// ran before the suspension run again, as does the node that suspended
// the flow.
func (e *Engine) Resume(ctx gocontext.Context, checkpointID string, resumeData any) (*Context, error) {
	snapshot, err := e.checkpoints.Load(checkpointID)
	if err != nil {
		return nil, err
	}

	fctx := FromSerialization(snapshot.SerializedContext)
	fctx.Metadata.Suspended = false
	fctx.Metadata.SuspendedAtNode = ""
	fctx.Metadata.SuspensionReason = ""
	fctx.Metadata.CheckpointID = ""
	if resumeData != nil {
		fctx.Data[resumeDataKey] = resumeData
	}

	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "flowengine.resume",
			trace.WithAttributes(
				attribute.String("flowengine.flow_id", fctx.Metadata.FlowID),
				attribute.String("flowengine.checkpoint_id", checkpointID),
			))
		defer span.End()
	}

	settings := e.config.Flow.Settings
	guard := newDeadlineGuard(settings.TimeoutSeconds, settings.RequireDeadlineCheck)
	registry := e.registry()

	execErr := e.dispatch(fctx, settings, guard, registry)
	result, err := e.finalize(ctx, fctx, execErr, registry)
	if err == nil {
		_ = e.checkpoints.Delete(checkpointID)
	}
	return result, err
}

func (e *Engine) dispatch(fctx *Context, settings FlowSettings, guard *deadlineGuard, registry *hookRegistry) error {
	r := &flowRunner{
		components: e.components,
		guard:      guard,
		hooks:      registry,
		settings:   settings,
		cond:       e.cond,
		logger:     e.logger,
		flowName:   e.config.Name,
		processCmd: e.processCommand,
	}

	switch e.config.Flow.Type {
	case "sequential":
		return runSequential(fctx, e.config.Flow.Steps, r)
	case "conditional":
		return runConditional(fctx, e.config.Flow.Steps, r)
	case "graph":
		return runGraph(fctx, e.config.Flow.Nodes, e.config.Flow.Edges, r)
	default:
		return &ConfigurationError{Message: "unknown flow type", Issues: []string{e.config.Flow.Type}}
	}
}

func (e *Engine) finalize(ctx gocontext.Context, fctx *Context, execErr error, registry *hookRegistry) (*Context, error) {
	fctx.Metadata.Complete()

	if e.stepsExecuted != nil {
		e.stepsExecuted.Add(ctx, int64(len(fctx.Metadata.StepTimings)))
	}
	if e.stepDuration != nil {
		for _, t := range fctx.Metadata.StepTimings {
			e.stepDuration.Record(ctx, t.Duration.Seconds())
		}
	}
	if e.iterations != nil && fctx.Metadata.IterationCount > 0 {
		e.iterations.Add(ctx, int64(fctx.Metadata.IterationCount))
	}

	if fctx.Metadata.Suspended {
		checkpointID, err := e.saveCheckpoint(fctx)
		if err != nil {
			return fctx, err
		}
		fctx.Metadata.CheckpointID = checkpointID
		registry.notifyFlowSuspended(fctx.Metadata.FlowID, fctx.Metadata.SuspendedAtNode, fctx.Metadata.SuspensionReason)
		return fctx, nil
	}

	if execErr != nil {
		e.logger.Warn("flow execution failed", "flow_id", fctx.Metadata.FlowID, "error", execErr)
	}
	return fctx, execErr
}

func (e *Engine) saveCheckpoint(fctx *Context) (string, error) {
	snapshot := &Checkpoint{
		ConfigurationReference: e.config.Name,
		SerializedContext:      fctx.ToSerialization(),
	}
	id, err := e.checkpoints.Save(snapshot)
	if err != nil {
		return "", fmt.Errorf("save checkpoint: %w", err)
	}
	return id, nil
}

// Validate runs the same structural checks LoadFlowConfig applies,
// exposed as its own dispatcher operation (SPEC_FULL.md §4.6/§6).
func (e *Engine) Validate() []string {
	return ValidateFlowConfig(e.config)
}

// DryRun walks the same control-flow logic Execute does, evaluating
// conditions but never invoking a component lifecycle method, and
// returns the ordered list of component names that would run. Graph
// flows return the full set of referenced component names instead of
// an ordered list, since a cyclic graph has no single topological
// ordering (SPEC_FULL.md §4.6/§6).
func (e *Engine) DryRun(initial *Context) ([]string, error) {
	fctx := initial
	if fctx == nil {
		fctx = NewContext(nil)
	}

	onConditionError := e.config.Flow.Settings.OnConditionError

	switch e.config.Flow.Type {
	case "sequential":
		var names []string
		for _, step := range e.config.Flow.Steps {
			matched, err := e.cond.evaluate(step.Condition, fctx)
			if err != nil {
				if onConditionError == "fail" {
					return names, err
				}
				if onConditionError == "warn" {
					e.logger.Warn("condition evaluation failed", "component", step.Component, "error", err)
				}
				continue
			}
			if matched {
				names = append(names, step.Component)
			}
		}
		return names, nil
	case "conditional":
		for _, step := range e.config.Flow.Steps {
			if step.Condition == "" {
				return []string{step.Component}, nil
			}
			matched, err := e.cond.evaluate(step.Condition, fctx)
			if err != nil {
				if onConditionError == "fail" {
					return nil, err
				}
				if onConditionError == "warn" {
					e.logger.Warn("condition evaluation failed", "component", step.Component, "error", err)
				}
				continue
			}
			if matched {
				return []string{step.Component}, nil
			}
		}
		return nil, nil
	case "graph":
		seen := map[string]bool{}
		var names []string
		for _, n := range e.config.Flow.Nodes {
			if !seen[n.Component] {
				seen[n.Component] = true
				names = append(names, n.Component)
			}
		}
		return names, nil
	default:
		return nil, &ConfigurationError{Message: "unknown flow type", Issues: []string{e.config.Flow.Type}}
	}
}
