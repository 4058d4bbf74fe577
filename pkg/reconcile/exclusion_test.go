package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExclusionList(t *testing.T) {
	l := NewExclusionList([]string{"b", "a", "b", ""})
	assert.Equal(t, []string{"b", "a"}, l.Keys())
	assert.Equal(t, 2, l.Len())
	assert.False(t, l.Changed(), "initial keys are committed")

	assert.True(t, l.Contains("a"))
	assert.False(t, l.Contains("c"))

	assert.False(t, l.Add("a"))
	assert.False(t, l.Changed())

	assert.True(t, l.Add("c"))
	assert.True(t, l.Add("d"))
	assert.True(t, l.Changed())
	assert.Equal(t, []string{"c", "d"}, l.Added())
	assert.Equal(t, []string{"b", "a", "c", "d"}, l.Keys())

	l.Commit()
	assert.False(t, l.Changed())
	assert.Empty(t, l.Added())

	keys := l.Keys()
	keys[0] = "mutated"
	assert.True(t, l.Contains("b"), "Keys returns a copy")
}
