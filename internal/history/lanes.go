package history

import (
	"fmt"
	"sort"

	"circuitvc/internal/revision"
)

// Palette holds the lane colors handed out in order.
var Palette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd", "#8c564b", "#e377c2",
	"#7f7f7f", "#bcbd22", "#17becf", "#aec7e8", "#ffbb78", "#98df8a", "#ff9896",
	"#c5b0d5", "#c49c94", "#f7b6d2", "#c7c7c7", "#dbdb8d", "#9edae5", "#393b79",
	"#637939", "#8c6d31", "#843c39", "#7b4173", "#3182bd", "#e6550d", "#31a354",
}

// Color indexes Palette.
type Color int

func (c Color) Hex() string {
	return Palette[int(c)%len(Palette)]
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

func (c *Color) UnmarshalText(text []byte) error {
	for i, hex := range Palette {
		if hex == string(text) {
			*c = Color(i)
			return nil
		}
	}
	return fmt.Errorf("unknown lane color %q", text)
}

// Lane is a column and color held by a branch while it is visually open.
type Lane struct {
	Branch string `json:"branch"`
	Column int    `json:"column"`
	Color  Color  `json:"color"`
}

// ColumnPool hands out the smallest column not in use.
type ColumnPool struct {
	free []int // sorted
	next int
}

func (p *ColumnPool) Take() int {
	if len(p.free) > 0 {
		c := p.free[0]
		p.free = p.free[1:]
		return c
	}
	c := p.next
	p.next++
	return c
}

func (p *ColumnPool) Put(c int) {
	i := sort.SearchInts(p.free, c)
	if i < len(p.free) && p.free[i] == c {
		return
	}
	p.free = append(p.free, 0)
	copy(p.free[i+1:], p.free[i:])
	p.free[i] = c
}

// Width is the number of columns ever handed out.
func (p *ColumnPool) Width() int { return p.next }

// ColorPool is a deque over Palette. Returned colors go to the front;
// a drained pool refills with the whole palette.
type ColorPool struct {
	queue []Color
}

func (p *ColorPool) Take() Color {
	if len(p.queue) == 0 {
		p.queue = make([]Color, len(Palette))
		for i := range p.queue {
			p.queue[i] = Color(i)
		}
	}
	c := p.queue[0]
	p.queue = p.queue[1:]
	return c
}

func (p *ColorPool) Put(c Color) {
	p.queue = append([]Color{c}, p.queue...)
}

// Allocator assigns lanes to branches during one traversal. Opening a lane
// also registers the branch's tail revision as a pending close trigger.
type Allocator struct {
	columns ColumnPool
	colors  ColorPool

	open     map[string]Lane
	triggers map[string][]string // tail revision -> branch URIs

	opened, closed int
}

func NewAllocator() *Allocator {
	return &Allocator{
		open:     make(map[string]Lane),
		triggers: make(map[string][]string),
	}
}

// OpenLane returns b's lane, allocating one if b has none open.
func (a *Allocator) OpenLane(b *revision.Branch) Lane {
	if l, ok := a.open[b.URI]; ok {
		return l
	}
	l := Lane{Branch: b.URI, Column: a.columns.Take(), Color: a.colors.Take()}
	a.open[b.URI] = l
	if b.TailRevision != "" {
		a.triggers[b.TailRevision] = append(a.triggers[b.TailRevision], b.URI)
	}
	a.opened++
	return l
}

// Lane returns the open lane for a branch.
func (a *Allocator) Lane(branchURI string) (Lane, bool) {
	l, ok := a.open[branchURI]
	return l, ok
}

// CloseLane releases l's column and color. Closing a lane that is not open
// is a no-op and returns false.
func (a *Allocator) CloseLane(l Lane) bool {
	cur, ok := a.open[l.Branch]
	if !ok {
		return false
	}
	delete(a.open, l.Branch)
	a.columns.Put(cur.Column)
	a.colors.Put(cur.Color)
	a.closed++

	for tail, branches := range a.triggers {
		for i, b := range branches {
			if b == l.Branch {
				branches = append(branches[:i], branches[i+1:]...)
				break
			}
		}
		if len(branches) == 0 {
			delete(a.triggers, tail)
		} else {
			a.triggers[tail] = branches
		}
	}
	return true
}

// CloseTriggered closes every open lane whose branch forked at revisionURI
// and returns those branch URIs in column order.
func (a *Allocator) CloseTriggered(revisionURI string) []string {
	var lanes []Lane
	for _, b := range a.triggers[revisionURI] {
		if l, ok := a.open[b]; ok {
			lanes = append(lanes, l)
		}
	}
	sortLanes(lanes)

	closed := make([]string, 0, len(lanes))
	for _, l := range lanes {
		a.CloseLane(l)
		closed = append(closed, l.Branch)
	}
	return closed
}

// OpenLanes returns the open lanes ordered by column.
func (a *Allocator) OpenLanes() []Lane {
	lanes := make([]Lane, 0, len(a.open))
	for _, l := range a.open {
		lanes = append(lanes, l)
	}
	sortLanes(lanes)
	return lanes
}

// CloseAll closes every remaining lane.
func (a *Allocator) CloseAll() {
	for _, l := range a.OpenLanes() {
		a.CloseLane(l)
	}
}

// Counts returns how many lanes were opened and closed so far.
func (a *Allocator) Counts() (opened, closed int) {
	return a.opened, a.closed
}

func (a *Allocator) Width() int { return a.columns.Width() }

func sortLanes(lanes []Lane) {
	sort.Slice(lanes, func(i, j int) bool { return lanes[i].Column < lanes[j].Column })
}
