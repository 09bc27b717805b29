// Package plugin is the surface third-party component authors build
// against. It re-exports the core's Component contract, Context, and
// hook interfaces under names that make sense to someone writing a
// standalone component package rather than reading the engine's own
// source — the same aliasing pattern the reference runtime module used
// to separate its plugin-facing API from its internal implementation.
//
// A minimal component looks like:
//
//	type Greeter struct {
//		plugin.BaseComponent
//	}
//
//	func New() *Greeter {
//		g := &Greeter{}
//		g.BaseComponent = plugin.NewBaseComponent("greeter")
//		return g
//	}
//
//	func (g *Greeter) Process(ctx *plugin.Context) error {
//		name, _ := ctx.Get("name")
//		ctx.Set("greeting", fmt.Sprintf("hello, %v", name))
//		return nil
//	}
//
// Registering it with an Engine is a matter of building the component
// instance map NewEngine expects:
//
//	components := map[string]flowengine.Component{
//		"greeter": greeter.New(),
//	}
//	engine, err := flowengine.NewEngine(cfg, components)
package plugin

import "github.com/sflowg/flowengine"

type (
	// Context is the execution-scoped record a component's Process
	// method reads and writes.
	Context = flowengine.Context

	// Component is the lifecycle contract every plugin implements.
	Component = flowengine.Component

	// AsyncComponent is implemented by components that support the
	// cooperative-async execution path (hard_async timeout mode).
	AsyncComponent = flowengine.AsyncComponent

	// BaseComponent provides no-op Setup/Teardown, an empty
	// ValidateConfig, and a HealthCheck reflecting whether Init ran.
	// Embed it in a plugin struct and override only what's needed.
	BaseComponent = flowengine.BaseComponent

	// NodeStartHook, NodeCompleteHook, NodeErrorHook, and
	// NodeSkippedHook are the per-node observer interfaces a hook
	// implements a subset of.
	NodeStartHook    = flowengine.NodeStartHook
	NodeCompleteHook = flowengine.NodeCompleteHook
	NodeErrorHook    = flowengine.NodeErrorHook
	NodeSkippedHook  = flowengine.NodeSkippedHook

	// FlowSuspendedHook observes suspension events.
	FlowSuspendedHook = flowengine.FlowSuspendedHook
)

// NewBaseComponent constructs a BaseComponent with the given name, the
// value every plugin's constructor should embed before returning.
func NewBaseComponent(name string) BaseComponent {
	return flowengine.NewBaseComponent(name)
}

// NewContext builds an execution-scoped Context from an initial input
// value, the same constructor the engine uses to seed Execute.
func NewContext(input any) *Context {
	return flowengine.NewContext(input)
}

// DecodeComponentConfig decodes a component's raw configuration map
// into a typed struct T, the same defaults-then-decode-then-validate
// pipeline the core exposes to its own reference components.
func DecodeComponentConfig[T any](raw map[string]any) (T, error) {
	return flowengine.DecodeComponentConfig[T](raw)
}
