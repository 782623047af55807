// internal/diff/diff.go
package diff

import (
	"bytes"

	"circuitvc/internal/triple"
)

// Diff is a set-difference patch between two snapshots.
type Diff struct {
	Additions triple.Set
	Removals  triple.Set
}

// Stats summarises a diff
type Stats struct {
	Additions int `json:"additions"`
	Removals  int `json:"removals"`
	Changes   int `json:"changes"`
}

// Compute returns the patch that turns initial into final.
func Compute(initial, final triple.Set) *Diff {
	return &Diff{
		Additions: final.Minus(initial),
		Removals:  initial.Minus(final),
	}
}

// New builds a diff from explicit statement lists, e.g. an API request.
func New(additions, removals []triple.Statement) *Diff {
	return &Diff{
		Additions: triple.NewSet(additions...),
		Removals:  triple.NewSet(removals...),
	}
}

// Apply returns (base - removals) + additions. base is not modified.
func (d *Diff) Apply(base triple.Set) triple.Set {
	out := base.Clone()
	if d == nil {
		return out
	}
	for st := range d.Removals {
		out.Remove(st)
	}
	for st := range d.Additions {
		out.Add(st)
	}
	return out
}

func (d *Diff) IsEmpty() bool {
	return d == nil || (d.Additions.Len() == 0 && d.Removals.Len() == 0)
}

func (d *Diff) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	s := Stats{
		Additions: d.Additions.Len(),
		Removals:  d.Removals.Len(),
	}
	s.Changes = s.Additions + s.Removals
	return s
}

// Format renders removals then additions, each in canonical order, with
// "- " and "+ " markers.
func (d *Diff) Format() string {
	var buf bytes.Buffer
	if d == nil {
		return ""
	}

	for _, st := range d.Removals.Sorted() {
		buf.WriteString("- ")
		buf.WriteString(triple.FormatLine(st))
		buf.WriteString("\n")
	}
	for _, st := range d.Additions.Sorted() {
		buf.WriteString("+ ")
		buf.WriteString(triple.FormatLine(st))
		buf.WriteString("\n")
	}

	return buf.String()
}
