package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reactmesh/core"
)

// Interface compliance (compile-time assertions)
var (
	_ Retriever = (*InMemoryStore)(nil)
	_ Retriever = (*ShortMemory)(nil)
	_ Retriever = RetrieverFunc(nil)
)

func TestInMemoryStore_SearchRanksByKeywords(t *testing.T) {
	store := NewInMemoryStore()
	store.Store("The capital of France is Paris", map[string]any{"source": "atlas"})
	store.Store("Paris has many museums and the Louvre", nil)
	store.Store("Berlin is the capital of Germany", nil)

	res := store.Search("capital France", 10)
	require.Len(t, res, 2)
	assert.Equal(t, "The capital of France is Paris", res[0].Content)
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
	assert.Equal(t, "atlas", res[0].Metadata["source"])
	assert.InDelta(t, 0.5, res[1].Score, 1e-9)

	assert.Len(t, store.Search("", 2), 2)
	assert.Empty(t, store.Search("quantum", 10))
}

func TestInMemoryStore_Delete(t *testing.T) {
	store := NewInMemoryStore()
	id := store.Store("forget me", nil)
	require.Equal(t, 1, store.Len())

	require.NoError(t, store.Delete(id))
	assert.Equal(t, 0, store.Len())
	assert.ErrorIs(t, store.Delete(id), ErrNotFound)
}

func TestInMemoryStore_Retrieve(t *testing.T) {
	store := NewInMemoryStore()
	store.Store("User prefers metric units", nil)

	msgs, err := store.Retrieve(context.Background(), "convert units please", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, core.RoleSystem, msgs[0].Role)
	assert.Equal(t, "Relevant memory: User prefers metric units", msgs[0].Content)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Retrieve(ctx, "units", 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryStore_Concurrent(t *testing.T) {
	store := NewInMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Store("entry", nil)
			_ = store.Search("entry", 5)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, store.Len())
}

func TestShortMemory_Window(t *testing.T) {
	mem := NewShortMemory(3)
	mem.Add(
		core.NewUserMessage("one"),
		core.NewAssistantMessage("a", "two"),
		core.NewUserMessage("three"),
		core.NewToolMessage("Observation: four"),
	)

	require.Equal(t, 3, mem.Len())
	assert.Equal(t, "two", mem.Messages()[0].Content)
	assert.Equal(t, []core.Message{core.NewToolMessage("Observation: four")}, mem.Last(1))
	assert.Len(t, mem.ByRole(core.RoleUser), 1)

	msgs, err := mem.Retrieve(context.Background(), "ignored", 2)
	require.NoError(t, err)
	assert.Equal(t, "three", msgs[0].Content)

	mem.Clear()
	assert.Equal(t, 0, mem.Len())
	assert.Equal(t, DefaultWindow, NewShortMemory(0).window)
}
