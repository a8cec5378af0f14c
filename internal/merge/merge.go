// Package merge deep-merges configuration documents.
package merge

// Merge returns defaults with overrides applied recursively.
//
// When both sides hold a mapping under the same key the mappings are merged;
// otherwise the override value replaces the default, including a mapping
// replaced by a scalar and vice versa. Slices are replaced wholesale. Neither
// input is modified and nested mappings in the result are fresh copies.
func Merge(defaults, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = clone(v)
	}
	for k, ov := range overrides {
		om, overrideIsMap := asMap(ov)
		dm, defaultIsMap := asMap(out[k])
		if overrideIsMap && defaultIsMap {
			out[k] = Merge(dm, om)
			continue
		}
		out[k] = clone(ov)
	}
	return out
}

// asMap normalizes the mapping shapes produced by YAML and JSON decoders.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, x := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = x
		}
		return out, true
	default:
		return nil, false
	}
}

func clone(v any) any {
	if m, ok := asMap(v); ok {
		out := make(map[string]any, len(m))
		for k, x := range m {
			out[k] = clone(x)
		}
		return out
	}
	if s, ok := v.([]any); ok {
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = clone(x)
		}
		return out
	}
	return v
}
