package partition

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanpack/offsync/internal/logger"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	repo := NewEntryRepository(setupTestDB(t))
	return NewRegistry(repo, logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
}

func TestRegistry_OpenIdempotent(t *testing.T) {
	reg := testRegistry(t)

	a := reg.Open("cityshelf-shell-1")
	b := reg.Open("cityshelf-shell-1")
	assert.Same(t, a, b, "same name must return the same handle")

	c := reg.Open("cityshelf-tokyo-v1")
	assert.NotSame(t, a, c)
}

func TestRegistry_PutMatchRoundTrip(t *testing.T) {
	reg := testRegistry(t)
	part := reg.Open("cityshelf-tokyo-v1")

	require.NoError(t, part.Put(t.Context(), testSnapshot("/guide/tokyo", "tokyo")))

	got, err := part.Match(t.Context(), "/guide/tokyo")
	require.NoError(t, err)
	assert.Equal(t, []byte("tokyo"), got.Body)

	// The returned snapshot is a copy: mutating it must not poison the
	// cached entry.
	got.Body[0] = 'X'
	again, err := part.Match(t.Context(), "/guide/tokyo")
	require.NoError(t, err)
	assert.Equal(t, []byte("tokyo"), again.Body)
}

func TestRegistry_MatchMissing(t *testing.T) {
	reg := testRegistry(t)
	part := reg.Open("cityshelf-tokyo-v1")

	_, err := part.Match(t.Context(), "/guide/tokyo")
	assert.ErrorIs(t, err, ErrEntryNotFound)
	assert.True(t, IsNotFound(err))
}

func TestRegistry_DropInvalidatesHotLayer(t *testing.T) {
	reg := testRegistry(t)
	part := reg.Open("cityshelf-tokyo-v1")

	require.NoError(t, part.Put(t.Context(), testSnapshot("/guide/tokyo", "tokyo")))

	// Warm the hot layer, then drop the partition.
	_, err := part.Match(t.Context(), "/guide/tokyo")
	require.NoError(t, err)

	deleted, err := reg.Drop(t.Context(), "cityshelf-tokyo-v1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = reg.Open("cityshelf-tokyo-v1").Match(t.Context(), "/guide/tokyo")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestRegistry_DropLeavesOtherPartitions(t *testing.T) {
	reg := testRegistry(t)

	require.NoError(t, reg.Open("cityshelf-tokyo-v1").Put(t.Context(), testSnapshot("/guide/tokyo", "tokyo")))
	require.NoError(t, reg.Open("cityshelf-paris-v1").Put(t.Context(), testSnapshot("/guide/paris", "paris")))

	_, err := reg.Drop(t.Context(), "cityshelf-tokyo-v1")
	require.NoError(t, err)

	got, err := reg.Open("cityshelf-paris-v1").Match(t.Context(), "/guide/paris")
	require.NoError(t, err)
	assert.Equal(t, []byte("paris"), got.Body)
}

func TestRegistry_Keys(t *testing.T) {
	reg := testRegistry(t)
	part := reg.Open("cityshelf-shell-1")

	require.NoError(t, part.Put(t.Context(), testSnapshot("/", "doc")))
	require.NoError(t, part.Put(t.Context(), testSnapshot("/app.js", "js")))

	keys, err := part.Keys(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/app.js"}, keys)
}
