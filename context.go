package flowengine

import (
	"strconv"
	"strings"
)

// Context is the mutable, execution-scoped record threaded through a
// single flow run. It carries the key/value data bag components read
// and write, the immutable initial input, the execution's Metadata, and
// the transient active output port used by the graph executor.
//
// Values stored in Data are restricted to the JSON primitive lattice:
// nil, bool, float64/int, string, []any, and map[string]any. Dotted-path
// reads never fail on a missing segment — they resolve to (nil, false)
// instead, matching the "never raise on missing field" guarantee the
// safe evaluator depends on.
type Context struct {
	Data     map[string]any
	Input    any
	Metadata *Metadata

	// activePort is transient per-node state: the graph executor clears
	// it before invoking a node and reads it only while firing that
	// node's outgoing edges. It is never part of the serialized form.
	activePort string

	// checkDeadlineFn is installed by the executor for the duration of
	// a single component invocation so Process can call CheckDeadline.
	checkDeadlineFn func() error
}

// CheckDeadline lets a component cooperatively test the flow's deadline
// mid-Process, per the Component Contract (SPEC_FULL.md §4.7). Outside
// of an executor-managed invocation it is a no-op.
func (c *Context) CheckDeadline() error {
	if c.checkDeadlineFn == nil {
		return nil
	}
	return c.checkDeadlineFn()
}

// NewContext creates an empty execution context with fresh metadata.
func NewContext(input any) *Context {
	return &Context{
		Data:     make(map[string]any),
		Input:    input,
		Metadata: NewMetadata(),
	}
}

// Get resolves a dotted path against Data. A missing segment at any
// point in the path yields (nil, false) rather than a panic or error.
func (c *Context) Get(path string) (any, bool) {
	return lookupPath(c.Data, path)
}

// Set stores a value at the top-level key. Nested writes are the
// caller's responsibility (components write whole sub-maps, not
// dotted paths, matching the reference implementation's set() contract).
func (c *Context) Set(key string, value any) {
	c.Data[key] = value
}

// Has reports whether a dotted path resolves to a present value.
func (c *Context) Has(path string) bool {
	_, ok := lookupPath(c.Data, path)
	return ok
}

// Delete removes a top-level key.
func (c *Context) Delete(key string) {
	delete(c.Data, key)
}

// ActivePort returns the port set by the most recently executed node's
// Process call, if any.
func (c *Context) ActivePort() string { return c.activePort }

// SetOutputPort is the helper components call from Process to select
// which outgoing graph edges fire for the current node.
func (c *Context) SetOutputPort(port string) { c.activePort = port }

// clearActivePort resets the transient port before a node executes.
// Only the executors call this, at the start of each node boundary.
func (c *Context) clearActivePort() { c.activePort = "" }

// Suspend marks the execution as suspended at nodeID with the given
// human-readable reason. Components call this from Process; the
// executor observes Metadata.Suspended after Process returns and
// converts it into a checkpoint once teardown completes.
func (c *Context) Suspend(nodeID, reason string) {
	c.Metadata.Suspended = true
	c.Metadata.SuspendedAtNode = nodeID
	c.Metadata.SuspensionReason = reason
}

// Copy returns a deep-enough copy of the context suitable for handing
// to a hard_async worker goroutine: Data is deep-copied so the worker
// cannot mutate the caller's live map, Metadata is shared by reference
// since only the calling goroutine touches it once the worker starts.
func (c *Context) Copy() *Context {
	return &Context{
		Data:     deepCopyMap(c.Data),
		Input:    c.Input,
		Metadata: c.Metadata,
	}
}

// lookupPath walks dot-separated segments through nested maps and
// slices (numeric segments index into slices). It never panics: any
// type mismatch or missing key simply yields (nil, false).
func lookupPath(root map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var current any = root
	for _, seg := range segments {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// ToSerialization renders the context as the JSON-ready structure
// described by SPEC_FULL.md §6: top-level data/input/metadata keys.
func (c *Context) ToSerialization() map[string]any {
	return map[string]any{
		"data":     c.Data,
		"input":    c.Input,
		"metadata": c.Metadata.ToMap(),
	}
}

// FromSerialization reconstructs a Context from the structure produced
// by ToSerialization. It is the inverse required by the round-trip
// invariant (SPEC_FULL.md §8, invariant 7).
func FromSerialization(m map[string]any) *Context {
	c := &Context{Data: make(map[string]any), Metadata: NewMetadata()}
	if data, ok := m["data"].(map[string]any); ok {
		c.Data = deepCopyMap(data)
	}
	c.Input = m["input"]
	if meta, ok := m["metadata"].(map[string]any); ok {
		c.Metadata = MetadataFromMap(meta)
	}
	return c
}
