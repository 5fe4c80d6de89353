package connectors

import (
	"fmt"
	"sort"
)

// priority orders adapters; the read-only connector is always last
var priority = map[Kind]int{
	InjectedWallet: 0,
	RemotePairing:  1,
	OtherInjected:  2,
	ReadOnlyRpc:    3,
}

// Registry holds one adapter per kind in priority order. It is built once per
// session and handed to its consumers.
type Registry struct {
	ordered []Connector
	byKind  map[Kind]Connector
}

// NewRegistry creates a registry from adapters in any order
func NewRegistry(adapters ...Connector) (*Registry, error) {
	r := &Registry{byKind: make(map[Kind]Connector, len(adapters))}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		if _, ok := priority[a.Kind()]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownConnector, a.Kind())
		}
		if _, dup := r.byKind[a.Kind()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateConnector, a.Kind())
		}
		r.byKind[a.Kind()] = a
		r.ordered = append(r.ordered, a)
	}
	sort.SliceStable(r.ordered, func(i, j int) bool {
		return priority[r.ordered[i].Kind()] < priority[r.ordered[j].Kind()]
	})
	return r, nil
}

// Select resolves an adapter the user may pick as their wallet
func (r *Registry) Select(kind Kind) (Connector, error) {
	c, err := r.Get(kind)
	if err != nil {
		return nil, err
	}
	if !c.Capabilities().UserSelectable {
		return nil, fmt.Errorf("%w: %s", ErrNotSelectable, kind)
	}
	return c, nil
}

// Get resolves an adapter by kind
func (r *Registry) Get(kind Kind) (Connector, error) {
	c, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnector, kind)
	}
	return c, nil
}

// Lookup resolves a persisted connector identity
func (r *Registry) Lookup(name string) (Connector, error) {
	kind, err := ParseKind(name)
	if err != nil {
		return nil, err
	}
	return r.Select(kind)
}

// Fallback returns the read-only connector, or nil when none is registered
func (r *Registry) Fallback() Connector {
	return r.byKind[ReadOnlyRpc]
}

// Connectors returns all adapters in priority order
func (r *Registry) Connectors() []Connector {
	return append([]Connector(nil), r.ordered...)
}
