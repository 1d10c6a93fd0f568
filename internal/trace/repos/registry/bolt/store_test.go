package bolt

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *boltStore {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st.(*boltStore)
}

func TestBoltStore_LookupExactAndSuffix(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.RebuildAll([]string{"doubleclick.net", "google-analytics.com"}, 1, 1700000000))

	entry, ok, err := st.Lookup("doubleclick.net")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "doubleclick.net", entry)

	entry, ok, err = st.Lookup("sub.doubleclick.net")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "doubleclick.net", entry)

	_, ok, err = st.Lookup("notdoubleclick.net")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBoltStore_RebuildReplacesAndStats(t *testing.T) {
	st := newTestStore(t)
	assert.Equal(t, uint64(0), st.Stats().Entries)

	require.NoError(t, st.RebuildAll([]string{"a.test", "b.test", "c.test"}, 4, 123))
	stats := st.Stats()
	assert.Equal(t, uint64(3), stats.Entries)
	assert.Equal(t, uint64(4), stats.Version)
	assert.Equal(t, int64(123), stats.UpdatedUnix)

	require.NoError(t, st.RebuildAll([]string{"d.test"}, 5, 124))
	_, ok, _ := st.Lookup("a.test")
	assert.False(t, ok)
	_, ok, _ = st.Lookup("x.d.test")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), st.Stats().Entries)
}

func TestBoltStore_ReopenKeepsIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	st, err := New(path)
	require.NoError(t, err)
	require.NoError(t, st.RebuildAll([]string{"criteo.com"}, 1, 1))
	require.NoError(t, st.Close())

	st2, err := New(path)
	require.NoError(t, err)
	defer st2.Close()
	_, ok, err := st2.Lookup("static.criteo.com")
	require.NoError(t, err)
	assert.True(t, ok)
}
