package state

import (
	"strings"

	"github.com/gnoswap-labs/sepexec/internal/term"
)

// Store maps program variables to symbolic terms. A Store is never
// mutated; every update returns a new Store.
type Store struct {
	names []string
	vals  map[string]term.Term
}

// NewStore returns a store binding names[i] to vals[i].
func NewStore(names []string, vals []term.Term) Store {
	return Store{}.SetAll(names, vals)
}

// Get returns the binding of name.
func (s Store) Get(name string) (term.Term, bool) {
	t, ok := s.vals[name]
	return t, ok
}

// Set returns a store where name is bound to t.
func (s Store) Set(name string, t term.Term) Store {
	return s.SetAll([]string{name}, []term.Term{t})
}

// SetAll binds all names at once.
func (s Store) SetAll(names []string, vals []term.Term) Store {
	out := Store{
		names: make([]string, len(s.names), len(s.names)+len(names)),
		vals:  make(map[string]term.Term, len(s.vals)+len(names)),
	}
	copy(out.names, s.names)
	for k, v := range s.vals {
		out.vals[k] = v
	}
	for i, n := range names {
		if _, ok := out.vals[n]; !ok {
			out.names = append(out.names, n)
		}
		out.vals[n] = vals[i]
	}
	return out
}

// Merge returns s overridden by the bindings of o.
func (s Store) Merge(o Store) Store {
	return s.SetAll(o.names, o.Values())
}

// Without returns a store lacking the given names.
func (s Store) Without(names ...string) Store {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := Store{vals: make(map[string]term.Term, len(s.vals))}
	for _, n := range s.names {
		if drop[n] {
			continue
		}
		out.names = append(out.names, n)
		out.vals[n] = s.vals[n]
	}
	return out
}

// Names returns the bound names in binding order.
func (s Store) Names() []string {
	return append([]string(nil), s.names...)
}

// Values returns the bound terms in binding order.
func (s Store) Values() []term.Term {
	out := make([]term.Term, len(s.names))
	for i, n := range s.names {
		out[i] = s.vals[n]
	}
	return out
}

// Len is the number of bindings.
func (s Store) Len() int {
	return len(s.names)
}

func (s Store) String() string {
	parts := make([]string, len(s.names))
	for i, n := range s.names {
		parts[i] = n + " -> " + s.vals[n].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
