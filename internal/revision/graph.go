package revision

// Ancestors returns every revision reachable from uri over parent edges,
// uri included. Missing revisions are skipped.
func (s *Snapshot) Ancestors(uri string) map[string]struct{} {
	seen := make(map[string]struct{})
	queue := []string{uri}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, ok := seen[cur]; ok {
			continue
		}
		r, ok := s.revisions[cur]
		if !ok {
			continue
		}
		seen[cur] = struct{}{}
		queue = append(queue, r.Parents...)
	}
	return seen
}

// IsAncestor reports whether ancestor is reachable from uri.
func (s *Snapshot) IsAncestor(ancestor, uri string) bool {
	_, ok := s.Ancestors(uri)[ancestor]
	return ok
}

// MergeBase returns the newest revision reachable from both a and b, or ""
// when the histories are disjoint.
func (s *Snapshot) MergeBase(a, b string) string {
	fromA := s.Ancestors(a)
	var best *Revision
	for uri := range s.Ancestors(b) {
		if _, ok := fromA[uri]; !ok {
			continue
		}
		r := s.revisions[uri]
		if best == nil || Newer(r, best) {
			best = r
		}
	}
	if best == nil {
		return ""
	}
	return best.URI
}

// FindCycle returns a revision reachable from itself, or "" if the parent
// relation is acyclic.
func (s *Snapshot) FindCycle() string {
	const (
		white = iota
		grey
		black
	)
	state := make(map[string]int, len(s.revisions))

	var visit func(uri string) string
	visit = func(uri string) string {
		switch state[uri] {
		case grey:
			return uri
		case black:
			return ""
		}
		state[uri] = grey
		if r, ok := s.revisions[uri]; ok {
			for _, p := range r.Parents {
				if c := visit(p); c != "" {
					return c
				}
			}
		}
		state[uri] = black
		return ""
	}

	for _, r := range s.Revisions() {
		if c := visit(r.URI); c != "" {
			return c
		}
	}
	return ""
}
