package memstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_Lookup(t *testing.T) {
	s := New()
	require.NoError(t, s.RebuildAll([]string{"doubleclick.net", "g.doubleclick.net", "google-analytics.com"}, 3, 100))

	tests := []struct {
		host  string
		entry string
		ok    bool
	}{
		{"doubleclick.net", "doubleclick.net", true},
		{"ad.doubleclick.net", "doubleclick.net", true},
		{"stats.g.doubleclick.net", "g.doubleclick.net", true},
		{"notdoubleclick.net", "", false},
		{"www.google-analytics.com", "google-analytics.com", true},
		{"example.com", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		entry, ok, err := s.Lookup(tt.host)
		require.NoError(t, err)
		assert.Equal(t, tt.ok, ok, tt.host)
		assert.Equal(t, tt.entry, entry, tt.host)
	}

	st := s.Stats()
	assert.Equal(t, uint64(3), st.Entries)
	assert.Equal(t, uint64(3), st.Version)
	assert.Equal(t, int64(100), st.UpdatedUnix)
	assert.NoError(t, s.Close())
}

func TestMemStore_RebuildReplaces(t *testing.T) {
	s := New()
	require.NoError(t, s.RebuildAll([]string{"old.test"}, 1, 1))
	require.NoError(t, s.RebuildAll([]string{"new.test"}, 2, 2))

	_, ok, _ := s.Lookup("old.test")
	assert.False(t, ok)
	_, ok, _ = s.Lookup("x.new.test")
	assert.True(t, ok)
}
