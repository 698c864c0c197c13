package config

import (
	"fmt"
	"sort"
	"strings"
)

// Backend is the platform store for non-secret settings. Values are kept as
// strings and parsed by the key table, so every backend shares one
// validation path.
type Backend interface {
	Lookup(key string) (val string, ok bool, err error)
	Store(key, val string) error
	Remove(key string) error
}

// flatten turns a nested settings document into dotted keys:
// {server: {port: 4000}} becomes {"server.port": "4000"}.
func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case nil:
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// unflatten is the inverse of flatten. Keys are visited in order so the
// result does not depend on map iteration.
func unflatten(in map[string]string) map[string]any {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := map[string]any{}
	for _, k := range keys {
		parts := strings.Split(k, ".")
		node := out
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = in[k]
	}
	return out
}
