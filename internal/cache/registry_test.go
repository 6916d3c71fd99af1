package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attachkit/linkcore/pkg/core"
)

func TestPartRegistry_New(t *testing.T) {
	reg := NewPartRegistry()

	require.NotNil(t, reg)
	assert.Equal(t, 0, reg.Len())
}

func TestPartRegistry_AddAndGet(t *testing.T) {
	reg := NewPartRegistry()

	reg.Add(&core.Part{ID: 42, VesselID: 7, Title: "TJ-1 pylon"})

	got, ok := reg.Get(42)
	require.True(t, ok, "expected to find part with ID 42")
	assert.Equal(t, core.PartID(42), got.ID)
	assert.Equal(t, "TJ-1 pylon", got.Title)
}

func TestPartRegistry_Get_NotFound(t *testing.T) {
	reg := NewPartRegistry()

	_, ok := reg.Get(999)
	assert.False(t, ok, "expected not to find part with ID 999")
}

func TestPartRegistry_Remove(t *testing.T) {
	reg := NewPartRegistry()
	reg.Add(&core.Part{ID: 1, VesselID: 7})

	reg.Remove(1)

	_, ok := reg.Get(1)
	assert.False(t, ok)
	assert.Empty(t, reg.VesselParts(7))
}

func TestPartRegistry_VesselParts(t *testing.T) {
	reg := NewPartRegistry()
	reg.Add(&core.Part{ID: 1, VesselID: 7})
	reg.Add(&core.Part{ID: 2, VesselID: 7})
	reg.Add(&core.Part{ID: 3, VesselID: 8})

	ids := reg.VesselParts(7)
	assert.Len(t, ids, 2)
	assert.ElementsMatch(t, []core.PartID{1, 2}, ids)
}

func TestPartRegistry_Reparent(t *testing.T) {
	reg := NewPartRegistry()
	reg.Add(&core.Part{ID: 1, VesselID: 7})

	reg.Reparent(1, 8)

	got, ok := reg.Get(1)
	require.True(t, ok)
	assert.Equal(t, core.VesselID(8), got.VesselID)
	assert.Empty(t, reg.VesselParts(7))
	assert.ElementsMatch(t, []core.PartID{1}, reg.VesselParts(8))
}

func TestPartRegistry_Reset(t *testing.T) {
	reg := NewPartRegistry()
	reg.Add(&core.Part{ID: 1, VesselID: 7})

	reg.Reset()

	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, reg.VesselParts(7))
}

func TestPartRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewPartRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg.Add(&core.Part{ID: core.PartID(i), VesselID: core.VesselID(i % 4)})
			reg.Get(core.PartID(i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, reg.Len())
}

func TestLinkTypeCache_SetGetDelete(t *testing.T) {
	c := NewLinkTypeCache()

	c.Set("cable20", core.ConstraintConfig{MaxLinkLength: 20, LinkType: "cable20"})

	cfg, ok := c.Get("cable20")
	require.True(t, ok)
	assert.Equal(t, 20.0, cfg.MaxLinkLength)

	c.Delete("cable20")
	_, ok = c.Get("cable20")
	assert.False(t, ok)
}

func TestSafeCounter(t *testing.T) {
	var c SafeCounter

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, c.Value())

	c.Set(5)
	assert.Equal(t, 5, c.Value())
}
