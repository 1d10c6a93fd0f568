package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalHost(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"already canonical", "doubleclick.net", "doubleclick.net"},
		{"trailing dot", "doubleclick.net.", "doubleclick.net"},
		{"multiple trailing dots", "doubleclick.net..", "doubleclick.net"},
		{"uppercase", "STATS.G.DOUBLECLICK.NET", "stats.g.doubleclick.net"},
		{"whitespace", " \tgoogle-analytics.com \n", "google-analytics.com"},
		{"root", ".", ""},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanonicalHost(tt.input))
		})
	}
}

func TestCanonicalHost_Idempotent(t *testing.T) {
	for _, in := range []string{"A.B.C.", " x.Y ", "localhost", ""} {
		once := CanonicalHost(in)
		assert.Equal(t, once, CanonicalHost(once), "input %q", in)
	}
}

func TestSuffixes(t *testing.T) {
	assert.Equal(t, []string{"a.b.c", "b.c", "c"}, Suffixes("a.b.c"))
	assert.Equal(t, []string{"localhost"}, Suffixes("localhost"))
	assert.Nil(t, Suffixes(""))
	assert.Equal(t, []string{"a."}, Suffixes("a."))
}

func TestHasLabelSuffix(t *testing.T) {
	tests := []struct {
		host, entry string
		want        bool
	}{
		{"doubleclick.net", "doubleclick.net", true},
		{"sub.doubleclick.net", "doubleclick.net", true},
		{"a.b.doubleclick.net", "doubleclick.net", true},
		{"notdoubleclick.net", "doubleclick.net", false},
		{"doubleclick.net.evil.com", "doubleclick.net", false},
		{"net", "doubleclick.net", false},
		{"anything", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HasLabelSuffix(tt.host, tt.entry), "%s vs %s", tt.host, tt.entry)
	}
}
