// Command flowengine is the reference HTTP entrypoint (SPEC_FULL.md
// §6): it loads every *.yaml flow definition from a directory, builds
// an Engine per flow, and exposes execute/resume over Gin. This binary
// is packaging, not core.
//
// The same binary doubles as the hard_process timeout mode's worker: if
// FLOWENGINE_WORKER=1 is set, it reads a single component invocation
// request from stdin instead of starting the server (SPEC_FULL.md §5).
package main

import (
	gocontext "context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/sflowg/flowengine"
	httpcomponent "github.com/sflowg/flowengine/components/http"
	"github.com/sflowg/flowengine/observability"
)

func main() {
	if os.Getenv("FLOWENGINE_WORKER") == "1" {
		if err := runWorker(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	ctx := gocontext.Background()
	telemetry, err := observability.Setup(ctx, observability.Config{
		Endpoint:    os.Getenv("FLOWENGINE_OTEL_ENDPOINT"),
		ServiceName: "flowengine",
		Insecure:    os.Getenv("FLOWENGINE_OTEL_INSECURE") == "1",
	})
	if err != nil {
		log.Fatalf("setting up telemetry: %v", err)
	}
	defer telemetry.Shutdown(ctx)
	slog.SetDefault(telemetry.Logger)

	flowsDir := os.Getenv("FLOWENGINE_FLOWS_DIR")
	if flowsDir == "" {
		flowsDir = "flows"
	}

	engines, err := loadEngines(flowsDir, telemetry)
	if err != nil {
		log.Fatalf("loading flows from %s: %v", flowsDir, err)
	}

	g := gin.Default()
	for name, engine := range engines {
		registerFlow(g, name, engine)
	}

	if err := g.Run(":8080"); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func loadEngines(dir string, telemetry *observability.Telemetry) (map[string]*flowengine.Engine, error) {
	self, err := os.Executable()
	if err != nil {
		self = os.Args[0]
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	engines := map[string]*flowengine.Engine{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}

		cfg, err := flowengine.LoadFlowConfig(data)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", entry.Name(), err)
		}

		components, err := buildComponents(cfg)
		if err != nil {
			return nil, fmt.Errorf("build components for %s: %w", cfg.Name, err)
		}

		engine, err := flowengine.NewEngine(cfg, components,
			flowengine.WithLogger(telemetry.Logger),
			flowengine.WithProcessCommand([]string{self}),
			flowengine.WithTracer(telemetry.Tracer),
			flowengine.WithMeter(telemetry.Meter),
		)
		if err != nil {
			return nil, fmt.Errorf("construct engine for %s: %w", cfg.Name, err)
		}
		engines[cfg.Name] = engine
	}
	return engines, nil
}

// buildComponents instantiates each declared component by its Type
// string. The reference build only registers the HTTP component;
// wiring a new component type here is the extension point for a
// deployment shipping its own plugin package.
func buildComponents(cfg *flowengine.FlowConfig) (map[string]flowengine.Component, error) {
	components := map[string]flowengine.Component{}
	for _, c := range cfg.Components {
		comp, err := buildComponent(c)
		if err != nil {
			return nil, err
		}
		if err := comp.Init(c.Config); err != nil {
			return nil, fmt.Errorf("init component %q: %w", c.Name, err)
		}
		components[c.Name] = comp
	}
	return components, nil
}

func buildComponent(c flowengine.ComponentConfig) (flowengine.Component, error) {
	switch c.Type {
	case "http":
		return httpcomponent.New(c.Name), nil
	default:
		return nil, fmt.Errorf("unknown component type %q for component %q", c.Type, c.Name)
	}
}

func registerFlow(g *gin.Engine, name string, engine *flowengine.Engine) {
	fmt.Printf("registering flow %q at /flows/%s\n", name, name)

	g.POST(fmt.Sprintf("/flows/%s/execute", name), func(c *gin.Context) {
		var input map[string]any
		_ = c.ShouldBindJSON(&input)

		fctx := flowengine.NewContext(input)
		result, err := engine.Execute(c.Request.Context(), fctx)
		respond(c, result, err)
	})

	g.POST(fmt.Sprintf("/flows/%s/resume/:checkpoint_id", name), func(c *gin.Context) {
		checkpointID := c.Param("checkpoint_id")
		var resumeData any
		_ = c.ShouldBindJSON(&resumeData)

		result, err := engine.Resume(c.Request.Context(), checkpointID, resumeData)
		respond(c, result, err)
	})
}

func respond(c *gin.Context, result *flowengine.Context, err error) {
	if err != nil {
		slog.Error("flow execution failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result.ToSerialization())
}

// workerRequest/workerResponse mirror flowengine's processWorkerRequest/
// processWorkerResponse envelope; the core package keeps those
// unexported so this binary defines its own copies of the wire shape.
type workerRequest struct {
	ComponentName string         `json:"component_name"`
	Data          map[string]any `json:"data"`
	Input         any            `json:"input"`
}

type workerResponse struct {
	Data             map[string]any `json:"data"`
	ActivePort       string         `json:"active_port"`
	Suspended        bool           `json:"suspended"`
	SuspendedAtNode  string         `json:"suspended_at_node,omitempty"`
	SuspensionReason string         `json:"suspension_reason,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// runWorker services one hard_process invocation. It rebuilds the named
// component from the same flow configuration the parent used and runs
// Setup/Process/Teardown against a disposable instance of its own —
// this instance exists only to give Process something initialized to
// run against inside this process; it is never the component instance
// the engine tracks. The parent runs Setup on its own live instance
// before starting this worker and Teardown after the worker exits
// (exec_timeout_process.go's invokeHardProcess) — that is the
// lifecycle bracket that counts for the flow's own bookkeeping.
func runWorker() error {
	flowName := os.Getenv("FLOWENGINE_WORKER_FLOW")
	flowsDir := os.Getenv("FLOWENGINE_FLOWS_DIR")
	if flowsDir == "" {
		flowsDir = "flows"
	}

	var req workerRequest
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		return fmt.Errorf("decode worker request: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(flowsDir, flowName+".yaml"))
	if err != nil {
		return fmt.Errorf("read flow %q: %w", flowName, err)
	}
	cfg, err := flowengine.LoadFlowConfig(data)
	if err != nil {
		return fmt.Errorf("load flow %q: %w", flowName, err)
	}

	var target *flowengine.ComponentConfig
	for i := range cfg.Components {
		if cfg.Components[i].Name == req.ComponentName {
			target = &cfg.Components[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("component %q not found in flow %q", req.ComponentName, flowName)
	}

	comp, err := buildComponent(*target)
	if err != nil {
		return err
	}
	if err := comp.Init(target.Config); err != nil {
		return fmt.Errorf("init component %q: %w", target.Name, err)
	}

	fctx := flowengine.NewContext(req.Input)
	if req.Data != nil {
		fctx.Data = req.Data
	}

	resp := workerResponse{}
	if err := comp.Setup(fctx); err != nil {
		resp.Error = err.Error()
	} else {
		processErr := comp.Process(fctx)
		if teardownErr := comp.Teardown(fctx); teardownErr != nil && processErr == nil {
			processErr = teardownErr
		}
		if processErr != nil {
			resp.Error = processErr.Error()
		}
	}

	resp.Data = fctx.Data
	resp.ActivePort = fctx.ActivePort()
	resp.Suspended = fctx.Metadata.Suspended
	resp.SuspendedAtNode = fctx.Metadata.SuspendedAtNode
	resp.SuspensionReason = fctx.Metadata.SuspensionReason

	return json.NewEncoder(os.Stdout).Encode(resp)
}
