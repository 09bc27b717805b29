package flowengine

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// ComponentConfig names one component instance and its own
// configuration payload, per SPEC_FULL.md §3.
type ComponentConfig struct {
	Name   string         `yaml:"name" validate:"required"`
	Type   string         `yaml:"type" validate:"required"`
	Config map[string]any `yaml:"config"`
}

// FlowSettings are the execution knobs SPEC_FULL.md §3/§5/§7 name.
type FlowSettings struct {
	FailFast             bool    `yaml:"fail_fast" default:"true"`
	TimeoutSeconds       float64 `yaml:"timeout_seconds" default:"300" validate:"gt=0"`
	TimeoutMode          string  `yaml:"timeout_mode" default:"cooperative" validate:"oneof=cooperative hard_async hard_process"`
	RequireDeadlineCheck bool    `yaml:"require_deadline_check" default:"false"`
	OnConditionError     string  `yaml:"on_condition_error" validate:"oneof=fail skip warn"`
	MaxIterations        int     `yaml:"max_iterations" default:"10" validate:"gte=1,lte=1000"`
	OnMaxIterations      string  `yaml:"on_max_iterations" default:"fail" validate:"oneof=fail exit warn"`
}

// StepConfig is one entry of a sequential or conditional flow's step
// list.
type StepConfig struct {
	Component   string `yaml:"component" validate:"required"`
	Description string `yaml:"description"`
	Condition   string `yaml:"condition"`
	OnError     string `yaml:"on_error" default:"fail" validate:"oneof=fail skip continue"`
}

// GraphNodeConfig is one node of a graph flow.
type GraphNodeConfig struct {
	ID          string `yaml:"id" validate:"required"`
	Component   string `yaml:"component" validate:"required"`
	Description string `yaml:"description"`
	OnError     string `yaml:"on_error" default:"fail" validate:"oneof=fail skip continue"`
	MaxVisits   *int   `yaml:"max_visits"`
}

// GraphEdgeConfig is one edge of a graph flow.
type GraphEdgeConfig struct {
	Source string `yaml:"source" validate:"required"`
	Target string `yaml:"target" validate:"required"`
	Port   string `yaml:"port"`
}

// FlowDefinition is the control-flow shape: a type tag plus either
// Steps (sequential/conditional) or Nodes+Edges (graph).
type FlowDefinition struct {
	Type     string            `yaml:"type" default:"sequential" validate:"oneof=sequential conditional graph"`
	Settings FlowSettings      `yaml:"settings"`
	Steps    []StepConfig      `yaml:"steps"`
	Nodes    []GraphNodeConfig `yaml:"nodes"`
	Edges    []GraphEdgeConfig `yaml:"edges"`
}

// FlowConfig is the root, fully parsed and validated configuration
// object the core consumes (SPEC_FULL.md §6, "Configuration surface").
// Parsing YAML into this shape is an ambient concern outside the hard
// core; LoadFlowConfig is the reference adapter.
type FlowConfig struct {
	Name        string            `yaml:"name" validate:"required"`
	Version     string            `yaml:"version" default:"1.0"`
	Description string            `yaml:"description"`
	Components  []ComponentConfig `yaml:"components" validate:"required,min=1,dive"`
	Flow        FlowDefinition    `yaml:"flow"`
}

var configValidator = newConfigValidator()

// newConfigValidator registers the one custom validator a component's
// config struct needs beyond the built-in tags: "dsn", checked against
// components/postgres's connection_string field. It accepts either a
// URL-form DSN (postgres://...) or a traditional user@host/db one.
func newConfigValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("dsn", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if strings.Contains(s, "://") {
			_, err := url.Parse(s)
			return err == nil
		}
		return strings.Contains(s, "@") && strings.Contains(s, "/")
	})
	return v
}

// LoadFlowConfig parses YAML bytes into a FlowConfig, applies defaults
// with creasty/defaults, and validates both field-level constraints
// (go-playground/validator) and the cross-field structural rules
// SPEC_FULL.md §3 requires (unique names/ids, edge endpoints resolve,
// steps/nodes reference declared components).
func LoadFlowConfig(data []byte) (*FlowConfig, error) {
	var cfg FlowConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigurationError{Message: "invalid YAML", Issues: []string{err.Error()}}
	}
	// on_condition_error's default depends on the flow type (SPEC_FULL.md
	// §4.4): "skip" for conditional flows, "fail" everywhere else. This
	// has to run before defaults.Set, whose struct tags can only express
	// one static default per field.
	if cfg.Flow.Settings.OnConditionError == "" {
		if cfg.Flow.Type == "conditional" {
			cfg.Flow.Settings.OnConditionError = "skip"
		} else {
			cfg.Flow.Settings.OnConditionError = "fail"
		}
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, &ConfigurationError{Message: "failed to apply defaults", Issues: []string{err.Error()}}
	}
	if issues := ValidateFlowConfig(&cfg); len(issues) > 0 {
		return nil, &ConfigurationError{Message: "invalid flow configuration", Issues: issues}
	}
	return &cfg, nil
}

// ValidateFlowConfig runs both struct-tag validation and structural
// cross-field checks, returning every issue found (never just the
// first) so a caller can surface them all at once — this backs the
// dispatcher's Validate() operation (SPEC_FULL.md §6).
func ValidateFlowConfig(cfg *FlowConfig) []string {
	var issues []string

	if err := configValidator.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				issues = append(issues, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			issues = append(issues, err.Error())
		}
	}

	componentNames := make(map[string]bool, len(cfg.Components))
	for _, c := range cfg.Components {
		if componentNames[c.Name] {
			issues = append(issues, fmt.Sprintf("duplicate component name: %s", c.Name))
		}
		componentNames[c.Name] = true
	}

	switch cfg.Flow.Type {
	case "sequential", "conditional":
		if len(cfg.Flow.Steps) == 0 {
			issues = append(issues, "sequential/conditional flows require at least one step")
		}
		for i, s := range cfg.Flow.Steps {
			if !componentNames[s.Component] {
				issues = append(issues, fmt.Sprintf("step[%d] references undefined component: %s", i, s.Component))
			}
		}
	case "graph":
		if len(cfg.Flow.Nodes) == 0 {
			issues = append(issues, "graph flows require at least one node")
		}
		nodeIDs := make(map[string]bool, len(cfg.Flow.Nodes))
		for _, n := range cfg.Flow.Nodes {
			if nodeIDs[n.ID] {
				issues = append(issues, fmt.Sprintf("duplicate node id: %s", n.ID))
			}
			nodeIDs[n.ID] = true
			if !componentNames[n.Component] {
				issues = append(issues, fmt.Sprintf("node %q references undefined component: %s", n.ID, n.Component))
			}
		}
		for _, e := range cfg.Flow.Edges {
			if !nodeIDs[e.Source] {
				issues = append(issues, fmt.Sprintf("edge source %q not found in nodes", e.Source))
			}
			if !nodeIDs[e.Target] {
				issues = append(issues, fmt.Sprintf("edge target %q not found in nodes", e.Target))
			}
		}
	}

	return issues
}

// DecodeComponentConfig decodes a component's raw configuration map
// into a typed struct T, applying defaults and validation in the same
// order the reference implementation's InitializeConfig pipeline does:
// defaults first, then structural decode, then validation.
func DecodeComponentConfig[T any](raw map[string]any) (T, error) {
	var out T
	if err := defaults.Set(&out); err != nil {
		return out, fmt.Errorf("apply defaults: %w", err)
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		TagName:          "yaml",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return out, fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return out, fmt.Errorf("decode config: %w", err)
	}
	if err := ValidateConfigStruct(out); err != nil {
		return out, fmt.Errorf("validate config: %w", err)
	}
	return out, nil
}

// ValidateConfigStruct runs the same field-tag validation
// DecodeComponentConfig applies against an already-built config value,
// for collaborators (like components/postgres.Open) that construct
// their config directly rather than through a raw map.
func ValidateConfigStruct(v any) error {
	return configValidator.Struct(v)
}
