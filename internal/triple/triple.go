// Package triple holds the atomic unit of versioned content: a
// (subject, predicate, object) statement, and sets of them.
package triple

import (
	"slices"
	"strings"
)

// Statement is a single RDF fact. Identity is the full triple.
type Statement struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// Key identifies the subject+predicate slot a statement fills.
type Key struct {
	Subject   string
	Predicate string
}

func (s Statement) Key() Key {
	return Key{Subject: s.Subject, Predicate: s.Predicate}
}

func (s Statement) String() string {
	return FormatLine(s)
}

// Compare orders statements by subject, predicate, then object.
func Compare(a, b Statement) int {
	if c := strings.Compare(a.Subject, b.Subject); c != 0 {
		return c
	}
	if c := strings.Compare(a.Predicate, b.Predicate); c != 0 {
		return c
	}
	return strings.Compare(a.Object, b.Object)
}

// Set is an unordered collection of distinct statements.
type Set map[Statement]struct{}

func NewSet(stmts ...Statement) Set {
	s := make(Set, len(stmts))
	for _, st := range stmts {
		s[st] = struct{}{}
	}
	return s
}

func (s Set) Add(st Statement)    { s[st] = struct{}{} }
func (s Set) Remove(st Statement) { delete(s, st) }
func (s Set) Len() int            { return len(s) }

func (s Set) Has(st Statement) bool {
	_, ok := s[st]
	return ok
}

// Clone returns an independent copy. A nil set clones to an empty one.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for st := range s {
		out[st] = struct{}{}
	}
	return out
}

// Minus returns the statements of s that are not in other.
func (s Set) Minus(other Set) Set {
	out := make(Set)
	for st := range s {
		if !other.Has(st) {
			out[st] = struct{}{}
		}
	}
	return out
}

func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for st := range s {
		if !other.Has(st) {
			return false
		}
	}
	return true
}

// Sorted returns the statements in canonical order.
func (s Set) Sorted() []Statement {
	out := make([]Statement, 0, len(s))
	for st := range s {
		out = append(out, st)
	}
	slices.SortFunc(out, Compare)
	return out
}
