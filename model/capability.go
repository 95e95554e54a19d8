package model

// Capabilities granted by access token scopes. Unlike roles, capabilities
// are flat: a scope maps to an explicit set, with no implied inclusion.
const (
	CapView    = "view"
	CapEdit    = "edit"
	CapSuggest = "suggest"
	CapSign    = "sign"
)

// CapabilitySet is the set of capabilities a resolved token grants.
type CapabilitySet map[string]bool

// Has returns true if the set contains the capability.
func (cs CapabilitySet) Has(cap string) bool {
	return cs[cap]
}

// HasAll returns true if the set contains every given capability.
func (cs CapabilitySet) HasAll(caps ...string) bool {
	for _, c := range caps {
		if !cs[c] {
			return false
		}
	}
	return true
}
