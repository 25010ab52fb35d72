package mapping

func MapSlice[S any, D any](src []S, fn func(S) D) []D {
	dst := make([]D, 0, len(src))
	for _, item := range src {
		dst = append(dst, fn(item))
	}
	return dst
}

// FirstByKey keeps the first element for each key and preserves input order.
func FirstByKey[S any, K comparable](src []S, key func(S) K) []S {
	seen := make(map[K]struct{}, len(src))
	dst := make([]S, 0, len(src))
	for _, item := range src {
		k := key(item)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		dst = append(dst, item)
	}
	return dst
}

// SameKeys reports whether the map keys are exactly the given names.
func SameKeys[V any](m map[string]V, names []string) bool {
	if len(m) != len(names) {
		return false
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := m[name]; !ok {
			return false
		}
		if _, dup := seen[name]; dup {
			return false
		}
		seen[name] = struct{}{}
	}
	return true
}
