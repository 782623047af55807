package content

import (
	"testing"

	"circuitvc/internal/triple"

	"github.com/stretchr/testify/assert"
)

func TestDigestIsOrderIndependent(t *testing.T) {
	a := triple.Statement{Subject: "<a>", Predicate: "<p>", Object: `"1"`}
	b := triple.Statement{Subject: "<b>", Predicate: "<p>", Object: `"2"`}

	d1 := Digest(triple.NewSet(a, b))
	d2 := Digest(triple.NewSet(b, a))
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)
	assert.NotEqual(t, d1, Digest(triple.NewSet(a)))
	assert.Equal(t, "<a> <p> \"1\" .\n<b> <p> \"2\" .\n", string(Canonical(triple.NewSet(a, b))))
}
