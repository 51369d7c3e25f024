package script

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceKeyChangesWithOneCharacter(t *testing.T) {
	a := SourceKey(`return strings.ToUpper("hi")`)
	b := SourceKey(`return strings.ToUpper("hI")`)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, SourceKey(`return strings.ToUpper("hi")`))
}

func TestMemoryCacheInsertIfAbsent(t *testing.T) {
	c := NewMemoryCache()
	first := &Artifact{Package: "first"}
	second := &Artifact{Package: "second"}

	require.Same(t, first, c.Store(1, first))
	// The first writer wins; a later insert under the same key returns the
	// existing artifact.
	require.Same(t, first, c.Store(1, second))

	got, ok := c.Lookup(1)
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCacheConcurrentFirstWrite(t *testing.T) {
	c := NewMemoryCache()
	const workers = 16

	survivors := make([]*Artifact, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			survivors[i] = c.Store(7, &Artifact{Package: fmt.Sprintf("w%d", i)})
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, c.Len())
	winner, _ := c.Lookup(7)
	for i, s := range survivors {
		assert.Same(t, winner, s, "worker %d observed a different artifact", i)
	}
}
