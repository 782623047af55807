package revision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func rev(uri string, at int, parents ...string) *Revision {
	return &Revision{
		URI:     uri,
		Parents: parents,
		Action:  ActionInfo{Timestamp: time.Unix(int64(at), 0)},
	}
}

func TestSnapshot_MergeBase(t *testing.T) {
	//   r1 - r2 ------- m
	//          \       /
	//           c1 - c2
	s := NewSnapshot(nil, []*Revision{
		rev("r1", 1),
		rev("r2", 2, "r1"),
		rev("c1", 3, "r2"),
		rev("c2", 4, "c1"),
		rev("m", 5, "r2", "c2"),
	}, nil, nil)

	assert.Equal(t, "r2", s.MergeBase("r2", "c2"))
	assert.Equal(t, "c2", s.MergeBase("m", "c2"))
	assert.True(t, s.IsAncestor("r1", "m"))
	assert.False(t, s.IsAncestor("c1", "r2"))
	assert.Equal(t, "", s.FindCycle())

	disjoint := NewSnapshot(nil, []*Revision{rev("a", 1), rev("b", 2)}, nil, nil)
	assert.Equal(t, "", disjoint.MergeBase("a", "b"))
}

func TestSnapshot_FindCycle(t *testing.T) {
	s := NewSnapshot(nil, []*Revision{
		rev("a", 1, "c"),
		rev("b", 2, "a"),
		rev("c", 3, "b"),
	}, nil, nil)
	assert.NotEqual(t, "", s.FindCycle())
}

func TestSnapshot_Ordering(t *testing.T) {
	s := NewSnapshot(nil, []*Revision{
		rev("b", 1),
		rev("a", 1),
		rev("c", 2),
	}, nil, []*Tag{
		{Name: "v2", TargetRevision: "c"},
		{Name: "v1", TargetRevision: "c"},
	})

	var order []string
	for _, r := range s.Revisions() {
		order = append(order, r.URI)
	}
	assert.Equal(t, []string{"c", "a", "b"}, order)

	tags := s.TagsFor("c")
	if assert.Len(t, tags, 2) {
		assert.Equal(t, "v1", tags[0].Name)
	}
}
