package wa

// SameUserFunc reports whether two raw identifiers denote the same principal.
// The transport may supply its own comparator for equivalences the runtime
// cannot derive (alternate-identifier mappings); it is allowed to panic on
// malformed input; callers go through Same, which isolates faults.
type SameUserFunc func(a, b string) bool

// DefaultSameUser compares by canonical digit sequence.
func DefaultSameUser(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	return na != "" && na == nb
}

// Same applies fn with panic isolation: a panicking comparator counts as
// "no match" and the caller's strategy cascade continues.
func Same(fn SameUserFunc, a, b string) (same bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return fn(a, b)
}
