package utils

import "golang.org/x/net/publicsuffix"

// GetApexDomain returns the registrable domain (eTLD+1) of name, falling back
// to the canonical name when the public suffix list cannot answer.
func GetApexDomain(name string) string {
	name = CanonicalHost(name)
	apex, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return name
	}
	return apex
}
