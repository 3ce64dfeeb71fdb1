// Package mutable defines changes that are applied to real-time components
// at the cycle boundary. Non-real-time threads never touch the state of a
// running component directly: they push mutations which the real-time
// thread applies before it processes the next cycle.
package mutable

import "github.com/rs/xid"

type (
	// Context identifies the component that owns mutations. It's
	// embedded or held by mutable components. Zero value is immutable.
	Context struct {
		id xid.ID
	}

	// Mutation is a function bound to a mutable context.
	Mutation struct {
		Context
		mutator MutatorFunc
	}

	// Mutations is an ordered batch of mutations.
	Mutations []Mutation

	// MutatorFunc mutates the component.
	MutatorFunc func()
)

// Mutable returns new mutable context.
func Mutable() Context {
	return Context{id: xid.New()}
}

// IsMutable returns false for zero context.
func (c Context) IsMutable() bool {
	return !c.id.IsNil()
}

// String returns context id.
func (c Context) String() string {
	return c.id.String()
}

// Mutate binds mutator to the context. It panics if context is immutable.
func (c Context) Mutate(m MutatorFunc) Mutation {
	if !c.IsMutable() {
		panic("mutate immutable")
	}
	return Mutation{
		Context: c,
		mutator: m,
	}
}

// Apply calls mutator function.
func (m Mutation) Apply() {
	m.mutator()
}

// Put appends mutation to the batch. Mutations of immutable context are
// ignored.
func (ms Mutations) Put(m Mutation) Mutations {
	if !m.IsMutable() || m.mutator == nil {
		return ms
	}
	return append(ms, m)
}

// Apply calls all mutations in the order they were put and returns their
// number.
func (ms Mutations) Apply() int {
	for _, m := range ms {
		m.mutator()
	}
	return len(ms)
}

// Of returns mutations of provided context.
func (ms Mutations) Of(c Context) Mutations {
	var own Mutations
	for _, m := range ms {
		if m.Context == c {
			own = append(own, m)
		}
	}
	return own
}
