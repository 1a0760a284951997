package web

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionGuard(t *testing.T) {
	g := NewActionGuard()
	assert.True(t, g.Begin("1/start"), "passed, first time")
	assert.False(t, g.Begin("1/start"), "failed, in flight")
	assert.True(t, g.Begin("1/stop"), "passed, different action")
	assert.True(t, g.Begin("2/start"), "passed, different job")
	g.End("1/start")
	assert.True(t, g.Begin("1/start"), "passed, ended before")
	g.End("no-such-key") // no-op
}

func TestActionGuard_Concurrent(t *testing.T) {
	g := NewActionGuard()

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if g.Begin("42/delete") {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted, "exactly one concurrent begin wins")

	g.End("42/delete")
	assert.True(t, g.Begin("42/delete"), "free again after end")
}
