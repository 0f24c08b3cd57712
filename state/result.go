package state

import (
	"time"
)

// NodeResult is the view of a just-completed node execution handed to the
// router and the condition evaluator. A failed node is represented as
// ordinary data here so error edges and retry policies can consume it.
type NodeResult struct {
	NodeID     string         `json:"node_id"`
	Success    bool           `json:"success"`
	Output     any            `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	RetryCount int            `json:"retry_count"`
	Duration   time.Duration  `json:"duration"`
	Prompt     string         `json:"prompt,omitempty"`
	Response   string         `json:"response,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Field resolves a dotted path ("output.user.name") against the result.
// The first segment may be "output" (alias "result"), "error", "node_id",
// "success", "retry_count" or a key of a map-typed Output.
func (r *NodeResult) Field(path string) (any, bool) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return nil, false
	}
	var cur any
	switch segs[0] {
	case "output", "result":
		cur = r.Output
		segs = segs[1:]
	case "error":
		return r.Error, len(segs) == 1
	case "node_id":
		return r.NodeID, len(segs) == 1
	case "success":
		return r.Success, len(segs) == 1
	case "retry_count":
		return r.RetryCount, len(segs) == 1
	default:
		// Bare paths resolve against a map-typed Output.
		cur = r.Output
	}
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Flatten expands a map-typed Output into dotted-path variable entries,
// e.g. {"user": {"name": "x"}} becomes {"user.name": "x"}. Scalar outputs
// map to the single key prefix.
func (r *NodeResult) Flatten(prefix string) map[string]any {
	out := map[string]any{}
	m, ok := r.Output.(map[string]any)
	if !ok {
		if r.Output != nil {
			out[prefix] = r.Output
		}
		return out
	}
	flattenInto(out, prefix, m)
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, key, nested)
			continue
		}
		out[key] = v
	}
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	var segs []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segs = append(segs, path[start:i])
			start = i + 1
		}
	}
	return append(segs, path[start:])
}
