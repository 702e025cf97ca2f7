// Package jsonutil provides key search over decoded JSON documents.
package jsonutil

// maxSearchDepth bounds the walk. Site payloads are a handful of levels
// deep; anything nested past this is treated as absent rather than
// risking the stack on a pathological document.
const maxSearchDepth = 128

// FindValueByKey walks obj depth-first and returns the first value stored
// under key, searching object values before recursing. Returns nil, false
// when the key does not occur anywhere in the document.
func FindValueByKey(obj any, key string) (any, bool) {
	return findValue(obj, key, 0)
}

func findValue(obj any, key string, depth int) (any, bool) {
	if depth >= maxSearchDepth {
		return nil, false
	}
	switch v := obj.(type) {
	case map[string]any:
		if val, ok := v[key]; ok {
			return val, true
		}
		for _, val := range v {
			if found, ok := findValue(val, key, depth+1); ok {
				return found, true
			}
		}
	case []any:
		for _, item := range v {
			if found, ok := findValue(item, key, depth+1); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// FindAllValuesByKey collects every value stored under key anywhere in obj,
// in depth-first order.
func FindAllValuesByKey(obj any, key string) []any {
	return findAllValues(obj, key, 0, nil)
}

func findAllValues(obj any, key string, depth int, out []any) []any {
	if depth >= maxSearchDepth {
		return out
	}
	switch v := obj.(type) {
	case map[string]any:
		if val, ok := v[key]; ok {
			out = append(out, val)
		}
		for _, val := range v {
			out = findAllValues(val, key, depth+1, out)
		}
	case []any:
		for _, item := range v {
			out = findAllValues(item, key, depth+1, out)
		}
	}
	return out
}
