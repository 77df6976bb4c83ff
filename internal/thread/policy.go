package thread

import (
	"fmt"
	"strings"
)

// Policy names accepted in configuration.
const (
	PolicyBounded   = "bounded"
	PolicyUnbounded = "unbounded"
)

// Policy governs how many levels of replies are fetched below each
// top-level comment. Levels[i] caps the replies fetched per parent at depth
// i+1; levels past the end of the slice are omitted. A nil Levels fetches
// every level without caps.
type Policy struct {
	Name   string
	Levels []int
}

// Bounded fetches up to 10 direct replies and up to 5 replies to each of those.
func Bounded() Policy {
	return Policy{Name: PolicyBounded, Levels: []int{10, 5}}
}

// Unbounded fetches the whole reply tree.
func Unbounded() Policy {
	return Policy{Name: PolicyUnbounded}
}

// IsUnbounded reports whether no depth or count limit applies.
func (p Policy) IsUnbounded() bool {
	return p.Levels == nil
}

// capAt returns the reply cap for children of a node at the given depth
// (top-level comments are depth 0). ok is false when those children are
// beyond the policy's reach. A cap of 0 means no cap.
func (p Policy) capAt(depth int) (limit int, ok bool) {
	if p.Levels == nil {
		return 0, true
	}
	if depth < len(p.Levels) {
		return p.Levels[depth], true
	}
	return 0, false
}

// ParsePolicy resolves a configured policy name.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PolicyBounded:
		return Bounded(), nil
	case PolicyUnbounded, "":
		return Unbounded(), nil
	}
	return Policy{}, fmt.Errorf("unknown thread policy %q", name)
}

// RolePolicies picks the depth policy for a viewer role.
type RolePolicies struct {
	Default Policy
	ByRole  map[string]Policy
}

// NewRolePolicies builds the lookup from a default policy name and role overrides.
func NewRolePolicies(defaultName string, byRole map[string]string) (*RolePolicies, error) {
	def, err := ParsePolicy(defaultName)
	if err != nil {
		return nil, err
	}
	rp := &RolePolicies{Default: def, ByRole: make(map[string]Policy, len(byRole))}
	for role, name := range byRole {
		p, err := ParsePolicy(name)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", role, err)
		}
		rp.ByRole[role] = p
	}
	return rp, nil
}

// For returns the policy for role, falling back to the default for
// anonymous viewers and roles without an override.
func (r *RolePolicies) For(role string) Policy {
	if r == nil {
		return Unbounded()
	}
	if p, ok := r.ByRole[role]; ok {
		return p
	}
	return r.Default
}
