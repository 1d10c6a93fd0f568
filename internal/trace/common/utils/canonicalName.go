package utils

import "strings"

// CanonicalHost returns a hostname in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - No trailing dot, so "Tracker.example." and "tracker.example" share a key.
func CanonicalHost(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}

// Suffixes returns host and every parent name obtained by dropping leading
// labels, most specific first: "a.b.c" → ["a.b.c", "b.c", "c"].
func Suffixes(host string) []string {
	if host == "" {
		return nil
	}
	out := []string{host}
	for {
		i := strings.IndexByte(host, '.')
		if i < 0 {
			return out
		}
		host = host[i+1:]
		if host == "" {
			return out
		}
		out = append(out, host)
	}
}

// HasLabelSuffix reports whether host equals entry or ends with "." + entry.
func HasLabelSuffix(host, entry string) bool {
	if entry == "" {
		return false
	}
	if host == entry {
		return true
	}
	return len(host) > len(entry) && strings.HasSuffix(host, entry) && host[len(host)-len(entry)-1] == '.'
}
