// Package address implements ActorAddress: the value-typed, comparable
// identifier every actor carries for its entire lifetime, stable across
// restarts of the same actor.
package address

import (
	"fmt"
	"regexp"
	"strings"
)

// segmentPattern matches the required token shape for type, node, and id.
var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Address is "<type>://<node>/<id>". Addresses are comparable by Path and
// must never be mutated after construction.
type Address struct {
	id   string
	typ  string
	node string
}

// New validates typ, node, and id against the wire format's token pattern
// and constructs an Address.
func New(typ, node, id string) (Address, error) {
	for name, v := range map[string]string{"type": typ, "node": node, "id": id} {
		if v == "" || !segmentPattern.MatchString(v) {
			return Address{}, fmt.Errorf("address: invalid %s %q", name, v)
		}
	}
	return Address{id: id, typ: typ, node: node}, nil
}

// MustNew is New but panics on an invalid address; intended for static,
// known-good addresses such as the guardian's.
func MustNew(typ, node, id string) Address {
	a, err := New(typ, node, id)
	if err != nil {
		panic(err)
	}
	return a
}

// Parse reads "<type>://<node>/<id>" back into an Address.
func Parse(path string) (Address, error) {
	schemeSplit := strings.SplitN(path, "://", 2)
	if len(schemeSplit) != 2 {
		return Address{}, fmt.Errorf("address: malformed path %q", path)
	}
	typ := schemeSplit[0]

	rest := strings.SplitN(schemeSplit[1], "/", 2)
	if len(rest) != 2 {
		return Address{}, fmt.Errorf("address: malformed path %q", path)
	}
	return New(typ, rest[0], rest[1])
}

// ID returns the actor's id segment.
func (a Address) ID() string { return a.id }

// Type returns the actor's type segment.
func (a Address) Type() string { return a.typ }

// Node returns the actor's node segment.
func (a Address) Node() string { return a.node }

// Path renders the canonical "<type>://<node>/<id>" wire form.
func (a Address) Path() string {
	return a.typ + "://" + a.node + "/" + a.id
}

// String satisfies fmt.Stringer.
func (a Address) String() string { return a.Path() }

// IsZero reports whether this is the zero-value Address.
func (a Address) IsZero() bool { return a == Address{} }

// Equal compares addresses by path, matching spec's comparability rule.
func (a Address) Equal(other Address) bool { return a.Path() == other.Path() }
