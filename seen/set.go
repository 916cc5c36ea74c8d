// Package seen tracks every listing URL the frontier has ever accepted.
package seen

// Set is an insertion-ordered set of URLs. Membership is exact string
// equality.
type Set struct {
	order []string
	index map[string]struct{}
}

// NewSet creates a set holding urls. Repeated values are kept once, at
// their first position.
func NewSet(urls ...string) *Set {
	s := &Set{index: make(map[string]struct{}, len(urls))}
	for _, u := range urls {
		s.Add(u)
	}
	return s
}

// Contains reports whether url is in the set.
func (s *Set) Contains(url string) bool {
	_, ok := s.index[url]
	return ok
}

// Add inserts url and reports whether it was absent.
func (s *Set) Add(url string) bool {
	if s.Contains(url) {
		return false
	}
	s.index[url] = struct{}{}
	s.order = append(s.order, url)
	return true
}

// Len returns the number of URLs in the set.
func (s *Set) Len() int {
	return len(s.order)
}

// URLs returns a copy of the set's contents in insertion order.
func (s *Set) URLs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Clone returns an independent copy of the set.
func (s *Set) Clone() *Set {
	return NewSet(s.order...)
}
