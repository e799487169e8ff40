package sieve

// ExtensionSet is an ordered, deduplicated set of required SIEVE extension
// names. It is owned by whichever Parser or FilterSet accumulates it —
// never process-wide — so that concurrent parses never interfere with one
// another (SPEC_FULL.md §3, §9's "process-wide extension set" redesign
// note).
type ExtensionSet struct {
	order []string
	has   map[string]bool
}

// NewExtensionSet returns an empty set.
func NewExtensionSet() *ExtensionSet {
	return &ExtensionSet{has: map[string]bool{}}
}

// Add records name if not already present, preserving first-insertion
// order.
func (s *ExtensionSet) Add(name string) {
	name = unquote(name)
	if s.has[name] {
		return
	}
	s.has[name] = true
	s.order = append(s.order, name)
}

// Has reports whether name was required.
func (s *ExtensionSet) Has(name string) bool {
	return s.has[name]
}

// List returns the required extensions in first-insertion order. The
// returned slice must not be mutated by the caller.
func (s *ExtensionSet) List() []string {
	return s.order
}
