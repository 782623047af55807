package history

import (
	"encoding/json"
	"time"

	"circuitvc/internal/errors"
	"circuitvc/internal/revision"
)

// Kind tells revision rows from synthetic branch rows.
type Kind string

const (
	KindRevision Kind = "revision"
	KindBranch   Kind = "branch"
)

// Node is one row of the render model. Parents and Children are the drawn
// edges, which differ from the DAG where a branch row is spliced in.
type Node struct {
	Ref  string
	Kind Kind

	// Revision is nil for branch rows.
	Revision *revision.Revision
	Branch   *revision.Branch

	Lane         Lane
	PassingLanes []Lane
	Parents      []*Node
	Children     []*Node

	Tags     []string
	Branches []string
}

func (n *Node) Timestamp() time.Time {
	if n.Revision != nil {
		return n.Revision.Timestamp()
	}
	return n.Branch.Created.Timestamp
}

func (n *Node) addParent(p *Node) {
	n.Parents = append(n.Parents, p)
	p.Children = append(p.Children, n)
}

func (n *Node) replaceParent(old, with *Node) {
	for i, p := range n.Parents {
		if p == old {
			n.Parents[i] = with
		}
	}
}

// Row is the flat wire form of a Node.
type Row struct {
	Ref          string    `json:"ref"`
	Kind         Kind      `json:"kind"`
	Branch       string    `json:"branch"`
	BranchName   string    `json:"branch_name"`
	Timestamp    time.Time `json:"timestamp"`
	Author       string    `json:"author,omitempty"`
	Message      string    `json:"message,omitempty"`
	Lane         Lane      `json:"lane"`
	PassingLanes []Lane    `json:"passing_lanes"`
	Parents      []string  `json:"parents"`
	Children     []string  `json:"children"`
	Tags         []string  `json:"tags,omitempty"`
	Branches     []string  `json:"branches,omitempty"`
}

func (n *Node) Row() Row {
	row := Row{
		Ref:          n.Ref,
		Kind:         n.Kind,
		Branch:       n.Branch.URI,
		BranchName:   n.Branch.Name,
		Timestamp:    n.Timestamp(),
		Lane:         n.Lane,
		PassingLanes: n.PassingLanes,
		Parents:      refs(n.Parents),
		Children:     refs(n.Children),
		Tags:         n.Tags,
		Branches:     n.Branches,
	}
	if n.Revision != nil {
		row.Author = n.Revision.Action.Author.Name
		row.Message = n.Revision.Action.Message
	} else {
		row.Author = n.Branch.Created.Author.Name
		row.Message = n.Branch.Created.Message
	}
	if row.PassingLanes == nil {
		row.PassingLanes = []Lane{}
	}
	return row
}

func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Row())
}

func refs(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Ref
	}
	return out
}

// History is the assembled, ordered row list.
type History struct {
	Rows []*Node

	// Problems lists structural defects found in the DAG. The offending
	// edges were skipped and the remaining rows are still consistent.
	Problems []*errors.Error

	// Width is the number of columns used by any row.
	Width int

	opened, closed int
}

// View is the wire form of a History.
type View struct {
	Rows     []Row           `json:"rows"`
	Problems []*errors.Error `json:"problems,omitempty"`
	Width    int             `json:"width"`
}

func (h *History) View() View {
	v := View{
		Rows:     make([]Row, len(h.Rows)),
		Problems: h.Problems,
		Width:    h.Width,
	}
	for i, n := range h.Rows {
		v.Rows[i] = n.Row()
	}
	return v
}

// Row returns the node for ref, if it was emitted.
func (h *History) Row(ref string) (*Node, bool) {
	for _, n := range h.Rows {
		if n.Ref == ref {
			return n, true
		}
	}
	return nil, false
}
