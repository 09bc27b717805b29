package flowengine

import (
	"time"

	"github.com/google/uuid"
)

// StepTiming records one step/node invocation: its step index, the
// component that ran, when it started, how long it took, and a
// monotonically increasing execution-order counter. The two differ
// whenever steps are skipped or a conditional flow matches a later
// step, and in graph flows whenever nodes run out of declaration order.
type StepTiming struct {
	StepIndex        int
	Component        string
	StartedAt        time.Time
	Duration         time.Duration
	ExecutionOrder   int
}

// ErrorRecord is one entry in Metadata.Errors.
type ErrorRecord struct {
	Component string
	Message   string
	ErrorType string
	Timestamp time.Time
}

// ConditionErrorRecord is one entry in Metadata.ConditionErrors.
type ConditionErrorRecord struct {
	Component string
	Condition string
	Message   string
}

// Metadata is the per-execution telemetry record described in
// SPEC_FULL.md §3. It is created alongside a Context and finalized
// (CompletedAt set) each time the dispatcher returns from Execute or
// Resume, including on suspension, so a resumed execution sets it again.
type Metadata struct {
	FlowID      string
	StartedAt   time.Time
	CompletedAt *time.Time

	StepTimings      []StepTiming
	SkippedComponents []string
	Errors           []ErrorRecord
	ConditionErrors  []ConditionErrorRecord

	// CompletedNodes is the source of truth for terminal/non-cyclic
	// nodes; cycle participants live in NodeVisitCounts instead (see
	// SPEC_FULL.md §9, "Cycles and iteration bookkeeping").
	CompletedNodes  map[string]bool
	NodeVisitCounts map[string]int
	IterationCount  int
	MaxIterationsReached bool

	Suspended        bool
	SuspendedAtNode  string
	SuspensionReason string
	CheckpointID     string

	nextExecutionOrder int
}

// NewMetadata creates a fresh Metadata with a new flow id and StartedAt
// set to now.
func NewMetadata() *Metadata {
	return &Metadata{
		FlowID:          uuid.NewString(),
		StartedAt:       time.Now().UTC(),
		CompletedNodes:  make(map[string]bool),
		NodeVisitCounts: make(map[string]int),
	}
}

// RecordTiming appends a StepTiming entry and returns it, stamping the
// entry with the next execution-order counter value.
func (m *Metadata) RecordTiming(stepIndex int, component string, startedAt time.Time, duration time.Duration) StepTiming {
	t := StepTiming{
		StepIndex:      stepIndex,
		Component:      component,
		StartedAt:      startedAt,
		Duration:       duration,
		ExecutionOrder: m.nextExecutionOrder,
	}
	m.nextExecutionOrder++
	m.StepTimings = append(m.StepTimings, t)
	return t
}

// AddError appends an error record, deriving ErrorType from err's
// concrete type name via a type switch on the taxonomy in errors.go
// (falling back to "error" for anything else).
func (m *Metadata) AddError(component string, err error) {
	m.Errors = append(m.Errors, ErrorRecord{
		Component: component,
		Message:   err.Error(),
		ErrorType: errorTypeName(err),
		Timestamp: time.Now().UTC(),
	})
}

// AddConditionError appends a condition-evaluation error record.
func (m *Metadata) AddConditionError(component, condition, message string) {
	m.ConditionErrors = append(m.ConditionErrors, ConditionErrorRecord{
		Component: component,
		Condition: condition,
		Message:   message,
	})
}

// AddSkipped appends a component name to SkippedComponents.
func (m *Metadata) AddSkipped(component string) {
	m.SkippedComponents = append(m.SkippedComponents, component)
}

// HasErrors reports whether any error has been recorded.
func (m *Metadata) HasErrors() bool { return len(m.Errors) > 0 }

// TotalDuration returns the elapsed time between StartedAt and
// CompletedAt, or -1 if the execution has not finished.
func (m *Metadata) TotalDuration() time.Duration {
	if m.CompletedAt == nil {
		return -1
	}
	return m.CompletedAt.Sub(m.StartedAt)
}

// Complete stamps CompletedAt with now, finalizing the record.
func (m *Metadata) Complete() {
	now := time.Now().UTC()
	m.CompletedAt = &now
}

func errorTypeName(err error) string {
	switch err.(type) {
	case *ComponentError:
		return "ComponentError"
	case *TimeoutError:
		return "Timeout"
	case *DeadlineCheckError:
		return "DeadlineCheck"
	case *ConditionEvalError:
		return "ConditionEval"
	case *MaxIterationsError:
		return "MaxIterations"
	case *ConfigurationError:
		return "Configuration"
	case *CheckpointNotFoundError:
		return "CheckpointNotFound"
	default:
		return "error"
	}
}

// ToMap renders Metadata as the JSON-ready structure used by
// Context.ToSerialization, with all timestamps as RFC3339 strings.
func (m *Metadata) ToMap() map[string]any {
	timings := make([]any, len(m.StepTimings))
	for i, t := range m.StepTimings {
		timings[i] = map[string]any{
			"step_index":      float64(t.StepIndex),
			"component":       t.Component,
			"started_at":      t.StartedAt.Format(time.RFC3339Nano),
			"duration_seconds": t.Duration.Seconds(),
			"execution_order": float64(t.ExecutionOrder),
		}
	}
	errs := make([]any, len(m.Errors))
	for i, e := range m.Errors {
		errs[i] = map[string]any{
			"component":  e.Component,
			"message":    e.Message,
			"error_type": e.ErrorType,
			"timestamp":  e.Timestamp.Format(time.RFC3339Nano),
		}
	}
	condErrs := make([]any, len(m.ConditionErrors))
	for i, e := range m.ConditionErrors {
		condErrs[i] = map[string]any{
			"component": e.Component,
			"condition": e.Condition,
			"message":   e.Message,
		}
	}
	completedNodes := make([]any, 0, len(m.CompletedNodes))
	for id := range m.CompletedNodes {
		completedNodes = append(completedNodes, id)
	}
	visitCounts := make(map[string]any, len(m.NodeVisitCounts))
	for id, n := range m.NodeVisitCounts {
		visitCounts[id] = float64(n)
	}
	skipped := make([]any, len(m.SkippedComponents))
	for i, s := range m.SkippedComponents {
		skipped[i] = s
	}

	out := map[string]any{
		"flow_id":               m.FlowID,
		"started_at":            m.StartedAt.Format(time.RFC3339Nano),
		"step_timings":          timings,
		"skipped_components":    skipped,
		"errors":                errs,
		"condition_errors":      condErrs,
		"completed_nodes":       completedNodes,
		"node_visit_counts":     visitCounts,
		"iteration_count":       float64(m.IterationCount),
		"max_iterations_reached": m.MaxIterationsReached,
		"suspended":             m.Suspended,
		"suspended_at_node":     m.SuspendedAtNode,
		"suspension_reason":     m.SuspensionReason,
		"checkpoint_id":         m.CheckpointID,
	}
	if m.CompletedAt != nil {
		out["completed_at"] = m.CompletedAt.Format(time.RFC3339Nano)
	} else {
		out["completed_at"] = nil
	}
	return out
}

// MetadataFromMap is the inverse of ToMap, used when restoring a
// checkpoint or exercising the round-trip invariant.
func MetadataFromMap(m map[string]any) *Metadata {
	meta := &Metadata{
		CompletedNodes:  make(map[string]bool),
		NodeVisitCounts: make(map[string]int),
	}
	if v, ok := m["flow_id"].(string); ok {
		meta.FlowID = v
	}
	if v, ok := m["started_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			meta.StartedAt = t
		}
	}
	if v, ok := m["completed_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			meta.CompletedAt = &t
		}
	}
	if list, ok := m["step_timings"].([]any); ok {
		for _, raw := range list {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			t := StepTiming{}
			if v, ok := entry["step_index"].(float64); ok {
				t.StepIndex = int(v)
			}
			if v, ok := entry["component"].(string); ok {
				t.Component = v
			}
			if v, ok := entry["started_at"].(string); ok {
				if parsed, err := time.Parse(time.RFC3339Nano, v); err == nil {
					t.StartedAt = parsed
				}
			}
			if v, ok := entry["duration_seconds"].(float64); ok {
				t.Duration = time.Duration(v * float64(time.Second))
			}
			if v, ok := entry["execution_order"].(float64); ok {
				t.ExecutionOrder = int(v)
				if t.ExecutionOrder >= meta.nextExecutionOrder {
					meta.nextExecutionOrder = t.ExecutionOrder + 1
				}
			}
			meta.StepTimings = append(meta.StepTimings, t)
		}
	}
	if list, ok := m["skipped_components"].([]any); ok {
		for _, v := range list {
			if s, ok := v.(string); ok {
				meta.SkippedComponents = append(meta.SkippedComponents, s)
			}
		}
	}
	if list, ok := m["errors"].([]any); ok {
		for _, raw := range list {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			e := ErrorRecord{}
			e.Component, _ = entry["component"].(string)
			e.Message, _ = entry["message"].(string)
			e.ErrorType, _ = entry["error_type"].(string)
			if v, ok := entry["timestamp"].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
					e.Timestamp = t
				}
			}
			meta.Errors = append(meta.Errors, e)
		}
	}
	if list, ok := m["condition_errors"].([]any); ok {
		for _, raw := range list {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			e := ConditionErrorRecord{}
			e.Component, _ = entry["component"].(string)
			e.Condition, _ = entry["condition"].(string)
			e.Message, _ = entry["message"].(string)
			meta.ConditionErrors = append(meta.ConditionErrors, e)
		}
	}
	if list, ok := m["completed_nodes"].([]any); ok {
		for _, v := range list {
			if s, ok := v.(string); ok {
				meta.CompletedNodes[s] = true
			}
		}
	}
	if counts, ok := m["node_visit_counts"].(map[string]any); ok {
		for id, v := range counts {
			if n, ok := v.(float64); ok {
				meta.NodeVisitCounts[id] = int(n)
			}
		}
	}
	if v, ok := m["iteration_count"].(float64); ok {
		meta.IterationCount = int(v)
	}
	meta.MaxIterationsReached, _ = m["max_iterations_reached"].(bool)
	meta.Suspended, _ = m["suspended"].(bool)
	meta.SuspendedAtNode, _ = m["suspended_at_node"].(string)
	meta.SuspensionReason, _ = m["suspension_reason"].(string)
	meta.CheckpointID, _ = m["checkpoint_id"].(string)
	return meta
}
