package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderedSet(t *testing.T) {
	t.Parallel()

	s := NewOrderedSet("b", "a", "b")
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Add("c"))
	assert.False(t, s.Add("a"))
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("z"))
	assert.Equal(t, []string{"b", "a", "c"}, s.Items())

	items := s.Items()
	items[0] = "mutated"
	assert.Equal(t, "b", s.Items()[0])
}

func TestRunSummary(t *testing.T) {
	t.Parallel()

	var total RunSummary
	total.Add(RunSummary{RecordsProcessed: 2, FilesCopied: 3, FilesErrored: 1})
	total.Add(RunSummary{RecordsProcessed: 1, FilesTransformed: 4, FilesMissing: 2})

	assert.Equal(t, 3, total.RecordsProcessed)
	assert.Equal(t, 10, total.FilesTotal())
	assert.InDelta(t, 0.1, total.FileErrorRate(), 1e-9)
	assert.Zero(t, RunSummary{}.FileErrorRate())
}
