package cache

import (
	"fmt"
	"sort"
	"strings"
)

// Key builds a deterministic cache key from a method-identifying prefix and
// the positional arguments of the call. Semantically identical calls always
// produce the same key; different calls never collide on one.
//
// The prefix doubles as the invalidation handle: Invalidate("issues:")
// drops every key built with the "issues" method prefix.
func Key(method string, args ...any) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, method)
	for _, a := range args {
		parts = append(parts, fmt.Sprintf("%v", a))
	}
	return strings.Join(parts, ":")
}

// KeyKV builds a deterministic cache key from a method prefix and named
// arguments. Names are sorted so that argument order at the call site never
// changes the key.
func KeyKV(method string, kv map[string]any) string {
	names := make([]string, 0, len(kv))
	for name := range kv {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names)+1)
	parts = append(parts, method)
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%v", name, kv[name]))
	}
	return strings.Join(parts, ":")
}
