package id

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()
	assert.NotEqual(t, gen.Generate().String(), gen.Generate().String())
}

func TestGenerateLength(t *testing.T) {
	assert.Len(t, NewGenerator().Generate().String(), 26)
}

func TestGenerateWithPrefix(t *testing.T) {
	id := NewGenerator().GenerateWithPrefix("conn")

	parts := strings.Split(id, "_")
	require.Len(t, parts, 2)
	assert.Equal(t, "conn", parts[0])
	_, err := ulid.Parse(parts[1])
	assert.NoError(t, err)
}

func TestNewConnectionID(t *testing.T) {
	before := time.Now().Truncate(time.Millisecond)
	id := NewConnectionID()
	after := time.Now()

	assert.True(t, strings.HasPrefix(id.String(), "conn_"))

	created, err := id.Created()
	require.NoError(t, err)
	assert.False(t, created.Before(before))
	assert.False(t, created.After(after))

	_, err = ConnectionID("conn_invalid").Created()
	assert.Error(t, err)
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	const goroutines = 50
	const idsPerGoroutine = 100

	var wg sync.WaitGroup
	ids := make(chan string, goroutines*idsPerGoroutine)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < idsPerGoroutine; j++ {
				ids <- gen.Generate().String()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, goroutines*idsPerGoroutine)
}

func TestLexicographicSorting(t *testing.T) {
	gen := NewGenerator()

	ids := make([]string, 5)
	for i := range ids {
		ids[i] = gen.Generate().String()
		time.Sleep(2 * time.Millisecond)
	}
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
}

func TestDefaultGenerator(t *testing.T) {
	assert.Same(t, Default(), Default())
	assert.True(t, strings.HasPrefix(Default().GenerateWithPrefix("x"), "x_"))
}

func BenchmarkGenerateWithPrefix(b *testing.B) {
	gen := NewGenerator()
	for i := 0; i < b.N; i++ {
		_ = gen.GenerateWithPrefix(ConnectionPrefix)
	}
}
