package renderers

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CaseInsensitiveKeys(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("Episode.Date", func(ctx Context) string { return "on " + fmt.Sprint(ctx.Value) })

	renderer, ok := r.Get("episode.date")
	require.True(t, ok)
	assert.Equal(t, "on 2020", renderer(Context{Value: 2020}))

	_, ok = r.Get("date")
	assert.False(t, ok)
}

func TestRegistry_ResolveFirstHit(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("name", func(Context) string { return "generic" })
	r.Register("Serie.name", func(Context) string { return "serie" })

	renderer, ok := r.Resolve("Episode.name", "name")
	require.True(t, ok)
	assert.Equal(t, "generic", renderer(Context{}))

	renderer, ok = r.Resolve("Serie.name", "name")
	require.True(t, ok)
	assert.Equal(t, "serie", renderer(Context{}))

	_, ok = r.Resolve("Episode.date", "date")
	assert.False(t, ok)
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("x", func(Context) string { return "" })
	r.Clear()

	_, ok := r.Get("x")
	assert.False(t, ok)
}

func TestDefaultRegistry(t *testing.T) {
	t.Cleanup(Default.Clear)

	Register("Rating", func(ctx Context) string { return fmt.Sprintf("%v★", ctx.Value) })
	renderer, ok := Resolve("rating")
	require.True(t, ok)
	assert.Equal(t, "4★", renderer(Context{Value: 4}))
}
