package freeze

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_FreezeUnfreeze(t *testing.T) {
	r := NewRegistry()
	id := uuid.New()
	pos := Position{World: "world", X: 10, Y: 20, Z: 30}

	assert.False(t, r.IsFrozen(id))
	assert.True(t, r.Freeze(id, pos))
	assert.True(t, r.IsFrozen(id))
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Unfreeze(id))
	assert.False(t, r.IsFrozen(id))
	assert.False(t, r.Unfreeze(id), "unfreeze of absent session is a no-op")
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_RefreezeKeepsFirstPin(t *testing.T) {
	r := NewRegistry()
	id := uuid.New()
	first := Position{X: 10, Y: 20, Z: 30}

	require.True(t, r.Freeze(id, first))
	assert.False(t, r.Freeze(id, Position{X: 99, Y: 99, Z: 99}))

	got, ok := r.Pinned(id)
	require.True(t, ok)
	assert.Equal(t, first, got)
}

func TestRegistry_InterceptMovement(t *testing.T) {
	r := NewRegistry()
	id := uuid.New()
	pin := Position{X: 10, Y: 20, Z: 30}

	_, blocked := r.InterceptMovement(id, Position{X: 1})
	assert.False(t, blocked, "unfrozen sessions move freely")

	r.Freeze(id, pin)
	for _, attempted := range []Position{
		{X: 11, Y: 20, Z: 30},
		{X: -5, Y: 200, Z: 0.5},
		{World: "nether", X: 10, Y: 20, Z: 30},
	} {
		got, blocked := r.InterceptMovement(id, attempted)
		assert.True(t, blocked)
		assert.Equal(t, pin, got)
	}

	got, blocked := r.InterceptMovement(id, pin)
	assert.False(t, blocked, "no correction when already at the pin")
	assert.Equal(t, pin, got, "the pin is still reported")
	assert.True(t, r.IsFrozen(id))

	r.Unfreeze(id)
	_, blocked = r.InterceptMovement(id, Position{X: 11})
	assert.False(t, blocked)
}

func TestRegistry_Reset(t *testing.T) {
	r := NewRegistry()
	r.Freeze(uuid.New(), Position{})
	r.Freeze(uuid.New(), Position{})

	r.Reset()
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	ids := make([]uuid.UUID, 32)
	for i := range ids {
		ids[i] = uuid.New()
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(2)
		go func(id uuid.UUID) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Freeze(id, Position{X: float64(i)})
				r.Unfreeze(id)
			}
			r.Freeze(id, Position{X: 1})
		}(id)
		go func(id uuid.UUID) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.InterceptMovement(id, Position{X: float64(i)})
				r.IsFrozen(id)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, len(ids), r.Len())
	for _, id := range ids {
		pos, ok := r.Pinned(id)
		require.True(t, ok)
		assert.Equal(t, Position{X: 1}, pos)
	}
}

func TestPosition_String(t *testing.T) {
	assert.Equal(t, "10,20,30", Position{X: 10, Y: 20, Z: 30}.String())
	assert.Equal(t, "world:1.5,64,-3", Position{World: "world", X: 1.5, Y: 64, Z: -3}.String())
}
