package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/poiscan/internal/model"
)

func TestRegistryFirstWriteWins(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Insert(model.Place{ID: "a", Name: "first sighting", Rating: 4.2}))
	assert.True(t, r.Insert(model.Place{ID: "b", Name: "other"}))
	assert.False(t, r.Insert(model.Place{ID: "a", Name: "later sighting", Rating: 1.0}))

	assert.Equal(t, 2, r.Len())

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "first sighting", got.Name)
	assert.Equal(t, 4.2, got.Rating)
}

func TestRegistryInsertionOrder(t *testing.T) {
	r := NewRegistry()
	r.Insert(model.Place{ID: "z"})
	r.Insert(model.Place{ID: "a"})
	r.Insert(model.Place{ID: "m"})
	r.Insert(model.Place{ID: "a"})

	places := r.Places()
	require.Len(t, places, 3)
	assert.Equal(t, "z", places[0].ID)
	assert.Equal(t, "a", places[1].ID)
	assert.Equal(t, "m", places[2].ID)
}

func TestRegistrySkipsEmptyIdentity(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Insert(model.Place{Name: "no id"}))
	assert.Equal(t, 0, r.Len())
}
