// Package servicetable holds the pluggable ServiceType -> body mapping the
// core dispatch engine treats as out of scope (spec.md §1, §9 "Dynamic
// dispatch"): a table indexed by service tag, populated at startup, no
// virtual hierarchy required.
package servicetable

import "github.com/Gyro91/CBSD-Project/internal/wire"

// Body is one service's computation: int32 -> int32.
type Body func(int32) int32

// Table maps a ServiceType to the body a worker replica runs for it.
type Table struct {
	bodies map[wire.ServiceType]Body
}

// New returns an empty table.
func New() *Table {
	return &Table{bodies: make(map[wire.ServiceType]Body)}
}

// Register adds or replaces the body for a service.
func (t *Table) Register(service wire.ServiceType, body Body) {
	t.bodies[service] = body
}

// Lookup returns the body registered for a service, if any.
func (t *Table) Lookup(service wire.ServiceType) (Body, bool) {
	b, ok := t.bodies[service]
	return b, ok
}

// Reference returns a table pre-populated with the small set of bodies the
// CLI needs to run end to end without an external plugin: identity,
// doubling, and squaring.
func Reference() *Table {
	t := New()
	t.Register(0, func(p int32) int32 { return p })
	t.Register(1, func(p int32) int32 { return p * 2 })
	t.Register(2, func(p int32) int32 { return p * p })
	return t
}
