package flowengine

import gocontext "context"

// Component is the abstract capability every flow step wraps, per
// SPEC_FULL.md §4.7. Implementations are created once, Init'd once,
// then reused across every step/node that references them; Setup and
// Teardown bracket each individual invocation.
type Component interface {
	// Name identifies the component within a flow configuration.
	Name() string

	// Init runs once, before the component's first use, with the
	// component-specific configuration map from the flow config.
	Init(config map[string]any) error

	// Setup runs before every Process call for this component.
	Setup(ctx *Context) error

	// Process is the synchronous unit of work. It may call
	// ctx.CheckDeadline, ctx.SetOutputPort, and ctx.Suspend.
	Process(ctx *Context) error

	// Teardown always runs after Setup, regardless of whether Process
	// succeeded, returned an error, or was abandoned by a timeout.
	Teardown(ctx *Context) error

	// ValidateConfig returns human-readable issues with the component's
	// current configuration, or an empty slice when configuration is
	// valid.
	ValidateConfig() []string

	// HealthCheck reports whether the component is ready to run.
	HealthCheck() bool
}

// AsyncComponent is implemented by components that support the
// cooperative-async execution path. The engine calls ProcessAsync
// instead of Process when both the component declares SupportsAsync
// and the active executor is running in an async-capable timeout mode.
type AsyncComponent interface {
	Component
	SupportsAsync() bool
	ProcessAsync(ctx gocontext.Context, fctx *Context) error
}

// BaseComponent provides the default lifecycle implementations most
// components inherit: Setup and Teardown are no-ops, ValidateConfig
// reports no issues, HealthCheck reflects whether Init has run. Embed
// it and override only what your component needs, mirroring the
// reference implementation's BaseComponent.
type BaseComponent struct {
	name          string
	config        map[string]any
	isInitialized bool
}

// NewBaseComponent constructs a BaseComponent with the given name.
func NewBaseComponent(name string) BaseComponent {
	return BaseComponent{name: name, config: map[string]any{}}
}

func (b *BaseComponent) Name() string { return b.name }

func (b *BaseComponent) Init(config map[string]any) error {
	if config == nil {
		config = map[string]any{}
	}
	b.config = config
	b.isInitialized = true
	return nil
}

func (b *BaseComponent) Config() map[string]any { return b.config }

func (b *BaseComponent) Setup(ctx *Context) error { return nil }

func (b *BaseComponent) Teardown(ctx *Context) error { return nil }

func (b *BaseComponent) ValidateConfig() []string { return nil }

func (b *BaseComponent) HealthCheck() bool { return b.isInitialized }
