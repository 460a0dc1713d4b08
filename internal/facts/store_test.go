package facts

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seneschal/seneschal/internal/schema"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

func TestStore_AddAndRecent(t *testing.T) {
	store := setupStore(t)

	_, created, err := store.Add(schema.ScopeGlobal, "likes green tea")
	require.NoError(t, err)
	require.True(t, created)

	_, created, err = store.Add(schema.ScopeGlobal, "lives in Lisbon")
	require.NoError(t, err)
	require.True(t, created)

	got, err := store.Recent(schema.ScopeGlobal, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "lives in Lisbon", got[0].Text)
	require.Equal(t, "likes green tea", got[1].Text)
}

func TestStore_AddSuppressesExactDuplicate(t *testing.T) {
	store := setupStore(t)

	first, created, err := store.Add("user:u1", "prefers dark mode")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := store.Add("user:u1", "prefers dark mode")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)

	n, err := store.Count("user:u1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Same text in another scope is a distinct fact.
	_, created, err = store.Add("user:u2", "prefers dark mode")
	require.NoError(t, err)
	require.True(t, created)
}

func TestStore_RecentHonorsLimitAndScope(t *testing.T) {
	store := setupStore(t)

	for _, text := range []string{"a", "b", "c"} {
		_, _, err := store.Add("channel:general", text)
		require.NoError(t, err)
	}
	_, _, err := store.Add("channel:random", "elsewhere")
	require.NoError(t, err)

	got, err := store.Recent("channel:general", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "c", got[0].Text)
	require.Equal(t, "b", got[1].Text)
}

func TestStore_Search(t *testing.T) {
	store := setupStore(t)

	_, _, err := store.Add(schema.ScopeGlobal, "birthday is March 3rd")
	require.NoError(t, err)
	_, _, err = store.Add(schema.ScopeGlobal, "allergic to peanuts")
	require.NoError(t, err)

	got, err := store.Search(schema.ScopeGlobal, "march", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "birthday is March 3rd", got[0].Text)

	got, err = store.Search(schema.ScopeGlobal, "gluten", 10)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestStore_Delete(t *testing.T) {
	store := setupStore(t)

	fact, _, err := store.Add(schema.ScopeGlobal, "temporary note")
	require.NoError(t, err)

	require.NoError(t, store.Delete(fact.ID))
	require.Error(t, store.Delete(fact.ID))

	n, err := store.Count(schema.ScopeGlobal)
	require.NoError(t, err)
	require.Zero(t, n)
}
