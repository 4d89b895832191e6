package lobby

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestIDAllocatorStartsAtOne(t *testing.T) {
	var a idAllocator
	assert.Equal(t, 1, a.Next())
	assert.Equal(t, 2, a.Next())
	assert.Equal(t, 3, a.Next())
}

func TestIDAllocatorWraps(t *testing.T) {
	var a idAllocator
	for i := 1; i <= idCycleMax; i++ {
		assert.Equal(t, i, a.Next())
	}
	// Past the cycle maximum the allocator restarts at 1, never 0.
	assert.Equal(t, 1, a.Next())
	assert.Equal(t, 2, a.Next())
}

func TestPropertyIDAlwaysInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var a idAllocator
		n := rapid.IntRange(1, 5000).Draw(t, "allocations")
		for i := 0; i < n; i++ {
			id := a.Next()
			if id < 1 || id > idCycleMax {
				t.Fatalf("allocation %d produced out-of-range id %d", i, id)
			}
		}
	})
}
