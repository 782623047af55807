package diff

import (
	"fmt"
	"math/rand"
	"testing"

	"circuitvc/internal/errors"
	"circuitvc/internal/triple"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func st(s, p, o string) triple.Statement {
	return triple.Statement{Subject: "<" + s + ">", Predicate: "<" + p + ">", Object: o}
}

func randomSet(r *rand.Rand, n int) triple.Set {
	set := make(triple.Set)
	for i := 0; i < n; i++ {
		set.Add(st(fmt.Sprintf("s%d", r.Intn(8)), fmt.Sprintf("p%d", r.Intn(3)), fmt.Sprintf(`"%d"`, r.Intn(5))))
	}
	return set
}

func TestComputeApplyRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		a := randomSet(r, r.Intn(20))
		b := randomSet(r, r.Intn(20))

		d := Compute(a, b)
		assert.True(t, d.Apply(a).Equal(b), "apply(compute(A,B),A) != B at iteration %d", i)
	}
}

func TestComputeSameSetIsEmpty(t *testing.T) {
	a := triple.NewSet(st("pTet", "role", `"promoter"`), st("gfp", "role", `"cds"`))

	d := Compute(a, a)
	assert.True(t, d.IsEmpty())
	assert.True(t, d.Apply(a).Equal(a))
}

func TestApplyDoesNotMutateBase(t *testing.T) {
	base := triple.NewSet(st("a", "p", `"1"`))
	d := New([]triple.Statement{st("b", "p", `"2"`)}, []triple.Statement{st("a", "p", `"1"`)})

	out := d.Apply(base)
	assert.True(t, base.Has(st("a", "p", `"1"`)))
	assert.True(t, out.Equal(triple.NewSet(st("b", "p", `"2"`))))
	assert.Equal(t, Stats{Additions: 1, Removals: 1, Changes: 2}, d.Stats())
}

func TestFormat(t *testing.T) {
	d := Compute(
		triple.NewSet(st("a", "p", `"1"`)),
		triple.NewSet(st("a", "p", `"2"`)),
	)
	assert.Equal(t, "- <a> <p> \"1\" .\n+ <a> <p> \"2\" .\n", d.Format())
}

func TestMerge(t *testing.T) {
	ancestor := triple.NewSet(
		st("pTet", "role", `"promoter"`),
		st("gfp", "title", `"GFP"`),
	)

	t.Run("disjoint edits union", func(t *testing.T) {
		target := ancestor.Clone()
		target.Add(st("rbs", "role", `"rbs"`))
		source := ancestor.Clone()
		source.Remove(st("gfp", "title", `"GFP"`))
		source.Add(st("gfp", "title", `"eGFP"`))

		merged, err := Merge(ancestor, target, source)
		require.NoError(t, err)
		assert.True(t, merged.Equal(triple.NewSet(
			st("pTet", "role", `"promoter"`),
			st("rbs", "role", `"rbs"`),
			st("gfp", "title", `"eGFP"`),
		)))
	})

	t.Run("identical additions do not conflict", func(t *testing.T) {
		target := ancestor.Clone()
		target.Add(st("rbs", "role", `"rbs"`))
		source := target.Clone()

		merged, err := Merge(ancestor, target, source)
		require.NoError(t, err)
		assert.True(t, merged.Equal(target))
	})

	t.Run("same slot different objects conflicts", func(t *testing.T) {
		target := ancestor.Clone()
		target.Add(st("gfp", "color", `"green"`))
		source := ancestor.Clone()
		source.Add(st("gfp", "color", `"yellow"`))

		merged, err := Merge(ancestor, target, source)
		require.Error(t, err)
		assert.Nil(t, merged)
		assert.True(t, errors.Is(err, errors.ErrMergeConflict))

		e, ok := errors.As(err)
		require.True(t, ok)
		conflicts, ok := e.Details.([]Conflict)
		require.True(t, ok)
		require.Len(t, conflicts, 1)
		assert.Equal(t, "<gfp>", conflicts[0].Subject)
		assert.Equal(t, []string{`"green"`}, conflicts[0].Target)
		assert.Equal(t, []string{`"yellow"`}, conflicts[0].Source)
	})
}
