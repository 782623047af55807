package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"circuitvc/internal/errors"
	"circuitvc/internal/revision"

	"go.uber.org/zap"
)

// Source is the fetched DAG the assembler walks. revision.Snapshot
// implements it.
type Source interface {
	Revision(uri string) (*revision.Revision, bool)
	Branch(uri string) (*revision.Branch, bool)
	TagsFor(revisionURI string) []*revision.Tag
}

// Assembler turns a revision DAG into ordered, lane-assigned rows. It does
// no I/O; one Assembler may run many builds but each Build is single
// threaded.
type Assembler struct {
	src    Source
	logger *zap.Logger
}

func NewAssembler(src Source, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{src: src, logger: logger}
}

// Build walks the DAG from head. With showBranches, each non-root branch
// reached is emitted as its own row spliced in above its fork point.
func (a *Assembler) Build(ctx context.Context, head string, showBranches bool) (*History, error) {
	start, ok := a.src.Revision(head)
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("head revision not found: %s", head))
	}

	b := &build{
		src:          a.src,
		logger:       a.logger,
		showBranches: showBranches,
		alloc:        NewAllocator(),
		nodes:        make(map[string]*Node),
		emitted:      make(map[string]bool),
		history:      &History{},
	}

	for _, c := range b.collect(start) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("building history: %w", err)
		}
		b.process(c)
	}
	b.alloc.CloseAll()

	h := b.history
	h.Width = b.alloc.Width()
	h.opened, h.closed = b.alloc.Counts()
	return h, nil
}

type candidate struct {
	ref    string
	kind   Kind
	at     time.Time
	rev    *revision.Revision
	branch *revision.Branch
}

// newer is the strict processing order: timestamp descending, then ref.
func (c candidate) newer(o candidate) bool {
	if !c.at.Equal(o.at) {
		return c.at.After(o.at)
	}
	return c.ref < o.ref
}

type build struct {
	src          Source
	logger       *zap.Logger
	showBranches bool
	alloc        *Allocator

	nodes   map[string]*Node
	emitted map[string]bool
	history *History
}

// collect gathers every revision reachable from head, plus the branches
// they belong to when showBranches is set, in processing order.
func (b *build) collect(head *revision.Revision) []candidate {
	var (
		out      []candidate
		seen     = map[string]bool{head.URI: true}
		branches = make(map[string]bool)
		queue    = []*revision.Revision{head}
	)
	for len(queue) > 0 {
		rev := queue[0]
		queue = queue[1:]

		br, ok := b.src.Branch(rev.BranchURI)
		if !ok {
			b.problem(errors.CorruptHistory(rev.URI, "revision on unknown branch "+rev.BranchURI))
			continue
		}
		out = append(out, candidate{ref: rev.URI, kind: KindRevision, at: rev.Timestamp(), rev: rev, branch: br})

		if b.showBranches && !br.IsRoot() && !branches[br.URI] {
			branches[br.URI] = true
			out = append(out, candidate{ref: br.URI, kind: KindBranch, at: br.Created.Timestamp, branch: br})
		}

		for _, p := range rev.Parents {
			if seen[p] {
				continue
			}
			parent, ok := b.src.Revision(p)
			if !ok {
				// reported when the edge is linked
				continue
			}
			seen[p] = true
			queue = append(queue, parent)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].newer(out[j]) })
	return out
}

func (b *build) node(c candidate) *Node {
	n, ok := b.nodes[c.ref]
	if !ok {
		n = &Node{Ref: c.ref}
		b.nodes[c.ref] = n
	}
	n.Kind = c.kind
	n.Revision = c.rev
	n.Branch = c.branch
	return n
}

func (b *build) process(c candidate) {
	n := b.node(c)
	lane := b.alloc.OpenLane(c.branch)
	n.Lane = lane
	for _, l := range b.alloc.OpenLanes() {
		if l.Branch != lane.Branch {
			n.PassingLanes = append(n.PassingLanes, l)
		}
	}

	var parents []string
	if c.kind == KindBranch {
		n.Branches = append(n.Branches, c.branch.Name)
		if tail, ok := b.nodes[c.branch.TailRevision]; ok {
			b.splice(n, tail)
		}
		b.alloc.CloseLane(lane)
		if c.branch.ParentRevision != "" {
			parents = []string{c.branch.ParentRevision}
		}
	} else {
		if !b.showBranches {
			for _, uri := range b.alloc.CloseTriggered(c.ref) {
				if br, ok := b.src.Branch(uri); ok {
					n.Branches = append(n.Branches, br.Name)
				}
			}
		}
		for _, t := range b.src.TagsFor(c.ref) {
			n.Tags = append(n.Tags, t.Name)
		}
		parents = b.orderParents(c.rev)
	}

	for _, p := range parents {
		b.link(n, p)
	}

	b.emitted[c.ref] = true
	b.history.Rows = append(b.history.Rows, n)
}

// splice moves the tail's children that belong to the branch under the
// branch row, which then sits between them and the tail.
func (b *build) splice(branchNode, tail *Node) {
	var keep []*Node
	for _, child := range tail.Children {
		if child.Revision != nil && child.Branch != nil && child.Branch.URI == branchNode.Branch.URI {
			child.replaceParent(tail, branchNode)
			branchNode.Children = append(branchNode.Children, child)
			continue
		}
		keep = append(keep, child)
	}
	tail.Children = keep
}

// orderParents sorts newest first when branches are shown; otherwise by
// the fork time of each parent's branch so long-lived lanes stay put.
func (b *build) orderParents(rev *revision.Revision) []string {
	parents := append([]string(nil), rev.Parents...)
	key := func(uri string) time.Time {
		p, ok := b.src.Revision(uri)
		if !ok {
			return time.Time{}
		}
		if b.showBranches {
			return p.Timestamp()
		}
		br, ok := b.src.Branch(p.BranchURI)
		if !ok || br.TailRevision == "" {
			return time.Time{}
		}
		if tail, ok := b.src.Revision(br.TailRevision); ok {
			return tail.Timestamp()
		}
		return time.Time{}
	}
	sort.SliceStable(parents, func(i, j int) bool {
		return key(parents[i]).After(key(parents[j]))
	})
	return parents
}

func (b *build) link(child *Node, parentURI string) {
	if parentURI == child.Ref {
		b.problem(errors.CorruptHistory(child.Ref, "revision is its own parent"))
		return
	}
	parent, ok := b.src.Revision(parentURI)
	if !ok {
		b.problem(errors.CorruptHistory(child.Ref, "missing parent "+parentURI))
		return
	}
	if b.emitted[parentURI] {
		b.problem(errors.CorruptHistory(child.Ref, "parent "+parentURI+" already emitted"))
		return
	}
	br, ok := b.src.Branch(parent.BranchURI)
	if !ok {
		// the parent itself was reported during collection
		return
	}

	pn := b.node(candidate{ref: parentURI, kind: KindRevision, rev: parent, branch: br})
	child.addParent(pn)
	b.alloc.OpenLane(br)
}

func (b *build) problem(err *errors.Error) {
	b.logger.Warn("Skipping corrupt history",
		zap.String("error", err.Error()))
	b.history.Problems = append(b.history.Problems, err)
}
