package scanner

// LooksLike compares two snapshots field by field, skipping keys in ignore.
// Maps must agree on every non-ignored key, slices on length and each
// element, and everything else must be strictly equal.
func LooksLike(a, b any, ignore map[string]bool) bool {
	switch bv := b.(type) {
	case map[string]any:
		av, ok := a.(map[string]any)
		if !ok {
			return false
		}
		if countKeys(av, ignore) != countKeys(bv, ignore) {
			return false
		}
		for k, bval := range bv {
			if ignore[k] {
				continue
			}
			aval, ok := av[k]
			if !ok || !LooksLike(aval, bval, ignore) {
				return false
			}
		}
		return true
	case []any:
		av, ok := a.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range bv {
			if !LooksLike(av[i], bv[i], ignore) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func countKeys(m map[string]any, ignore map[string]bool) int {
	n := 0
	for k := range m {
		if !ignore[k] {
			n++
		}
	}
	return n
}
