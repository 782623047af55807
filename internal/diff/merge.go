package diff

import (
	"fmt"
	"slices"
	"strings"

	"circuitvc/internal/errors"
	"circuitvc/internal/triple"
)

// Conflict is a subject+predicate slot both sides filled with different
// objects.
type Conflict struct {
	Subject   string   `json:"subject"`
	Predicate string   `json:"predicate"`
	Target    []string `json:"target"`
	Source    []string `json:"source"`
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s %s: target=[%s] source=[%s]",
		c.Subject, c.Predicate, strings.Join(c.Target, ", "), strings.Join(c.Source, ", "))
}

// Merge reconciles target and source against their common ancestor. Both
// sides' removals and additions are applied to the ancestor. Additions
// never conflict unless the same subject+predicate gains different objects
// on each side, in which case a MERGE_CONFLICT error carrying the
// []Conflict is returned.
func Merge(ancestor, target, source triple.Set) (triple.Set, error) {
	dt := Compute(ancestor, target)
	ds := Compute(ancestor, source)

	if conflicts := Conflicts(dt, ds); len(conflicts) > 0 {
		return nil, errors.MergeConflict(
			fmt.Sprintf("%d conflicting subject/predicate pairs", len(conflicts)), conflicts)
	}

	merged := ancestor.Clone()
	for _, d := range []*Diff{dt, ds} {
		for st := range d.Removals {
			merged.Remove(st)
		}
	}
	for _, d := range []*Diff{dt, ds} {
		for st := range d.Additions {
			merged.Add(st)
		}
	}
	return merged, nil
}

// Conflicts lists slots where both diffs add objects and the added object
// sets differ. Result is sorted by subject then predicate.
func Conflicts(target, source *Diff) []Conflict {
	left := objectsByKey(target.Additions)
	right := objectsByKey(source.Additions)

	var conflicts []Conflict
	for key, lo := range left {
		ro, ok := right[key]
		if !ok || slices.Equal(lo, ro) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Subject:   key.Subject,
			Predicate: key.Predicate,
			Target:    lo,
			Source:    ro,
		})
	}

	slices.SortFunc(conflicts, func(a, b Conflict) int {
		if c := strings.Compare(a.Subject, b.Subject); c != 0 {
			return c
		}
		return strings.Compare(a.Predicate, b.Predicate)
	})
	return conflicts
}

func objectsByKey(set triple.Set) map[triple.Key][]string {
	out := make(map[triple.Key][]string)
	for st := range set {
		out[st.Key()] = append(out[st.Key()], st.Object)
	}
	for k := range out {
		slices.Sort(out[k])
	}
	return out
}
