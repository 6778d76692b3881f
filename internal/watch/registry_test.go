package watch

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingResource struct {
	key      string
	disposed atomic.Int32
}

func (c *countingResource) DisposeAll() { c.disposed.Add(1) }

func newCountingRegistry() (*Registry[*countingResource], *atomic.Int32) {
	var created atomic.Int32
	r := NewRegistry(func(key string) (*countingResource, error) {
		created.Add(1)
		return &countingResource{key: key}, nil
	})
	return r, &created
}

func TestRegistryCreatesOnFirstInterest(t *testing.T) {
	r, created := newCountingRegistry()

	a1, release1, err := r.Acquire("a")
	require.NoError(t, err)
	a2, release2, err := r.Acquire("a")
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.Equal(t, int32(1), created.Load())

	release1()
	release1()
	assert.Equal(t, int32(0), a1.disposed.Load())
	_, ok := r.Get("a")
	assert.True(t, ok)

	release2()
	assert.Equal(t, int32(1), a1.disposed.Load())
	_, ok = r.Get("a")
	assert.False(t, ok)
}

func TestRegistryKeysAreIndependent(t *testing.T) {
	r, _ := newCountingRegistry()

	a, releaseA, err := r.Acquire("a")
	require.NoError(t, err)
	b, releaseB, err := r.Acquire("b")
	require.NoError(t, err)
	defer releaseB()

	releaseA()
	assert.Equal(t, int32(1), a.disposed.Load())
	assert.Equal(t, int32(0), b.disposed.Load())
	assert.Equal(t, 1, r.Len())
}

func TestRegistryDisposeAll(t *testing.T) {
	r, _ := newCountingRegistry()
	var sizes []int
	r.OnSizeChange(func(n int) { sizes = append(sizes, n) })

	a, releaseA, _ := r.Acquire("a")
	b, _, _ := r.Acquire("b")

	r.DisposeAll()
	releaseA()

	assert.Equal(t, int32(1), a.disposed.Load())
	assert.Equal(t, int32(1), b.disposed.Load())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, []int{1, 2, 0}, sizes)
}

func TestRegistryCreateFailure(t *testing.T) {
	r := NewRegistry(func(key string) (*countingResource, error) {
		return nil, errFactory
	})

	_, release, err := r.Acquire("a")
	assert.ErrorIs(t, err, errFactory)
	assert.Nil(t, release)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryConcurrentAcquireRelease(t *testing.T) {
	r, created := newCountingRegistry()
	hold, releaseHold, err := r.Acquire("shared")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, release, err := r.Acquire("shared")
			if err == nil {
				release()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(0), hold.disposed.Load())
	releaseHold()
	assert.Equal(t, int32(1), hold.disposed.Load())
}

func TestSessionRegistryIntegration(t *testing.T) {
	w := newFakeWatcher()
	r := NewRegistry(func(key string) (*Session, error) {
		return NewSession(key, factoryFor(w), nil, nil, nil)
	})

	s, release, err := r.Acquire("sess")
	require.NoError(t, err)
	require.NoError(t, s.AddWatch(1, uriFile("/tmp"), diskOpts()))

	release()
	assert.Equal(t, int32(1), w.handle(0).closes.Load())
	assert.Equal(t, int32(1), w.closes.Load())
}
