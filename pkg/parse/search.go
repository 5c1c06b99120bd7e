// Package parse holds the per-content-type payload extractors that pull
// lists of story/reel/highlight records out of raw API captures. Extractors
// are pure functions; the router composes them per endpoint.
package parse

// MaxDepth bounds the structural search through untyped payloads. Observed
// captures nest well below this; the cap keeps adversarial or cyclic-ish
// payloads from recursing without limit.
const MaxDepth = 32

// FindValueByKey walks a decoded JSON value (maps and arrays) and returns
// the first value stored under the given key, depth-first in map iteration
// order.
func FindValueByKey(v interface{}, key string) (interface{}, bool) {
	return findValue(v, key, MaxDepth)
}

func findValue(v interface{}, key string, depth int) (interface{}, bool) {
	if depth <= 0 {
		return nil, false
	}
	switch t := v.(type) {
	case map[string]interface{}:
		if val, ok := t[key]; ok {
			return val, true
		}
		for _, val := range t {
			if found, ok := findValue(val, key, depth-1); ok {
				return found, true
			}
		}
	case []interface{}:
		for _, val := range t {
			if found, ok := findValue(val, key, depth-1); ok {
				return found, true
			}
		}
	}
	return nil, false
}
