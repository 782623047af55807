package history

import (
	"context"
	"testing"
	"time"

	"circuitvc/internal/errors"
	"circuitvc/internal/revision"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dag builds a revision graph with a strictly increasing clock.
type dag struct {
	revs     []*revision.Revision
	branches []*revision.Branch
	tags     []*revision.Tag
	clock    int64
}

func (d *dag) now() time.Time {
	d.clock++
	return time.Unix(1700000000+d.clock, 0)
}

func (d *dag) branch(name, tail string) *revision.Branch {
	b := &revision.Branch{
		URI:            "urn:branch:" + name,
		Name:           name,
		ParentRevision: tail,
		HeadRevision:   tail,
		TailRevision:   tail,
		Created:        revision.ActionInfo{Timestamp: d.now()},
	}
	d.branches = append(d.branches, b)
	return b
}

func (d *dag) commit(b *revision.Branch, name string, parents ...string) string {
	r := &revision.Revision{
		URI:       "urn:rev:" + name,
		BranchURI: b.URI,
		Parents:   parents,
		Action:    revision.ActionInfo{Message: name, Timestamp: d.now()},
	}
	d.revs = append(d.revs, r)
	b.HeadRevision = r.URI
	return r.URI
}

func (d *dag) tag(name, target string) {
	d.tags = append(d.tags, &revision.Tag{URI: "urn:tag:" + name, Name: name, TargetRevision: target})
}

func (d *dag) snapshot() *revision.Snapshot {
	return revision.NewSnapshot(nil, d.revs, d.branches, d.tags)
}

// cmy: rev1 on master, moduleC forked at rev1 with two commits, merged
// back and tagged.
func cmy() (*dag, map[string]string) {
	d := &dag{}
	master := d.branch("master", "")
	rev1 := d.commit(master, "rev1")
	moduleC := d.branch("moduleC", rev1)
	commitC := d.commit(moduleC, "commitC", rev1)
	bugfixC := d.commit(moduleC, "bugfixC", commitC)
	merge := d.commit(master, "merge", rev1, bugfixC)
	d.tag("Release 1.0", merge)
	return d, map[string]string{
		"rev1": rev1, "commitC": commitC, "bugfixC": bugfixC, "merge": merge, "moduleC": moduleC.URI,
	}
}

func rowRefs(h *History) []string {
	var out []string
	for _, n := range h.Rows {
		out = append(out, n.Ref)
	}
	return out
}

func TestBuild_ShowBranches(t *testing.T) {
	d, ref := cmy()
	h, err := NewAssembler(d.snapshot(), nil).Build(context.Background(), ref["merge"], true)
	require.NoError(t, err)
	assert.Empty(t, h.Problems)

	assert.Equal(t, []string{ref["merge"], ref["bugfixC"], ref["commitC"], ref["moduleC"], ref["rev1"]}, rowRefs(h))
	for i := 1; i < len(h.Rows); i++ {
		assert.True(t, h.Rows[i-1].Timestamp().After(h.Rows[i].Timestamp()), "row %d out of order", i)
	}

	merge, _ := h.Row(ref["merge"])
	assert.Equal(t, []string{"Release 1.0"}, merge.Tags)
	assert.Equal(t, []string{ref["bugfixC"], ref["rev1"]}, merge.Row().Parents)
	assert.Equal(t, 0, merge.Lane.Column)
	assert.Empty(t, merge.PassingLanes)

	bugfix, _ := h.Row(ref["bugfixC"])
	assert.Equal(t, 1, bugfix.Lane.Column)
	require.Len(t, bugfix.PassingLanes, 1)
	assert.Equal(t, merge.Lane, bugfix.PassingLanes[0])

	t.Run("BranchRowSplice", func(t *testing.T) {
		branch, _ := h.Row(ref["moduleC"])
		assert.Equal(t, KindBranch, branch.Kind)
		assert.Equal(t, []string{"moduleC"}, branch.Branches)
		assert.Equal(t, bugfix.Lane, branch.Lane)
		assert.Equal(t, []string{ref["commitC"]}, branch.Row().Children)
		assert.Equal(t, []string{ref["rev1"]}, branch.Row().Parents)

		commitC, _ := h.Row(ref["commitC"])
		assert.Equal(t, []string{ref["moduleC"]}, commitC.Row().Parents)

		rev1, _ := h.Row(ref["rev1"])
		assert.Equal(t, []string{ref["merge"], ref["moduleC"]}, rev1.Row().Children)
		assert.Empty(t, rev1.PassingLanes)
	})

	assert.Equal(t, 2, h.Width)
	assert.Equal(t, h.opened, h.closed)
}

func TestBuild_HiddenBranches(t *testing.T) {
	d, ref := cmy()
	h, err := NewAssembler(d.snapshot(), nil).Build(context.Background(), ref["merge"], false)
	require.NoError(t, err)

	assert.Equal(t, []string{ref["merge"], ref["bugfixC"], ref["commitC"], ref["rev1"]}, rowRefs(h))

	merge, _ := h.Row(ref["merge"])
	assert.Equal(t, []string{ref["bugfixC"], ref["rev1"]}, merge.Row().Parents)

	rev1, _ := h.Row(ref["rev1"])
	assert.Equal(t, []string{"moduleC"}, rev1.Branches)
	require.Len(t, rev1.PassingLanes, 1)
	assert.Equal(t, ref["moduleC"], rev1.PassingLanes[0].Branch)
	assert.ElementsMatch(t, []string{ref["merge"], ref["commitC"]}, rev1.Row().Children)

	assert.Equal(t, h.opened, h.closed)
}

func TestBuild_ColumnReuse(t *testing.T) {
	d := &dag{}
	master := d.branch("master", "")
	r1 := d.commit(master, "r1")
	b1 := d.branch("b1", r1)
	b1c1 := d.commit(b1, "b1c1", r1)
	m1 := d.commit(master, "m1", r1, b1c1)
	b2 := d.branch("b2", m1)
	b2c1 := d.commit(b2, "b2c1", m1)
	m2 := d.commit(master, "m2", m1, b2c1)

	h, err := NewAssembler(d.snapshot(), nil).Build(context.Background(), m2, false)
	require.NoError(t, err)
	assert.Equal(t, []string{m2, b2c1, m1, b1c1, r1}, rowRefs(h))

	late, _ := h.Row(b2c1)
	early, _ := h.Row(b1c1)
	assert.Equal(t, late.Lane.Column, early.Lane.Column)
	assert.Equal(t, late.Lane.Color, early.Lane.Color)
	assert.Equal(t, 2, h.Width)

	fork, _ := h.Row(m1)
	assert.Equal(t, []string{"b2"}, fork.Branches)

	// never more lanes than branches alive at that row
	for _, n := range h.Rows {
		assert.LessOrEqual(t, len(n.PassingLanes)+1, 2)
	}
	assert.Equal(t, h.opened, h.closed)
}

func TestBuild_CorruptHistory(t *testing.T) {
	d := &dag{}
	master := d.branch("master", "")
	r1 := d.commit(master, "r1", "urn:rev:ghost")
	r2 := d.commit(master, "r2", r1)
	// self-parent
	d.revs[1].Parents = append(d.revs[1].Parents, r2)

	h, err := NewAssembler(d.snapshot(), nil).Build(context.Background(), r2, false)
	require.NoError(t, err)

	assert.Equal(t, []string{r2, r1}, rowRefs(h))
	require.Len(t, h.Problems, 2)
	for _, p := range h.Problems {
		assert.True(t, errors.Is(p, errors.ErrCorruptHistory))
	}

	n, _ := h.Row(r2)
	assert.Equal(t, []string{r1}, n.Row().Parents)
}

func TestBuild_ParentNewerThanChild(t *testing.T) {
	d := &dag{}
	master := d.branch("master", "")
	child := d.commit(master, "child")
	parent := d.commit(master, "parent")
	d.revs[0].Parents = []string{parent}

	h, err := NewAssembler(d.snapshot(), nil).Build(context.Background(), child, false)
	require.NoError(t, err)
	assert.Equal(t, []string{parent, child}, rowRefs(h))
	require.Len(t, h.Problems, 1)

	n, _ := h.Row(child)
	assert.Empty(t, n.Parents)
}

func TestBuild_Errors(t *testing.T) {
	d, ref := cmy()
	a := NewAssembler(d.snapshot(), nil)

	_, err := a.Build(context.Background(), "urn:rev:missing", false)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Build(ctx, ref["merge"], true)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHistory_View(t *testing.T) {
	d, ref := cmy()
	h, err := NewAssembler(d.snapshot(), nil).Build(context.Background(), ref["merge"], true)
	require.NoError(t, err)

	v := h.View()
	require.Len(t, v.Rows, 5)
	assert.Equal(t, "merge", v.Rows[0].Message)
	assert.Equal(t, "master", v.Rows[0].BranchName)
	assert.Equal(t, KindBranch, v.Rows[3].Kind)
	assert.NotNil(t, v.Rows[0].PassingLanes)
}
