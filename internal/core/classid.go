package core

import "strings"

// ClassID identifies a node or filter implementation class, e.g. the
// built-in "router" node or a dynamically registered "acme.rate-limit"
// filter. It serializes as "namespace.name", or bare "name" when the
// namespace is empty.
type ClassID struct {
	Namespace string
	Name      string
}

func (c ClassID) String() string {
	if c.Namespace == "" {
		return c.Name
	}
	return c.Namespace + "." + c.Name
}

// ParseClassID parses the "ns.name" / "name" wire form. Only the first dot
// separates namespace from name, so any later dots stay in the name. A
// bare name that itself contains a dot does not round-trip: its first dot
// is read as the namespace separator.
func ParseClassID(s string) ClassID {
	if idx := strings.Index(s, "."); idx >= 0 {
		return ClassID{Namespace: s[:idx], Name: s[idx+1:]}
	}
	return ClassID{Name: s}
}

func (c ClassID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ClassID) UnmarshalText(text []byte) error {
	*c = ParseClassID(string(text))
	return nil
}
