// Package ecs defines the Entity and System contracts of spec.md §4.1 and
// the 128-bit entity id scheme of §3. Entity and System live in one
// package because step_systems (§4.3) couples them tightly: a System
// mutates its owning Entity's next-step value, and an Entity carries an
// ordered list of Systems by pointer identity.
package ecs

import "fmt"

// ID is the 128-bit entity identifier of spec.md §3: "(step_index << 64) |
// counter", where counter resets to zero at the start of every step. High
// holds the generating step index, Low holds the per-step counter. Id zero
// (High == 0 && Low == 0) is reserved and invalid.
type ID struct {
	High uint64
	Low  uint64
}

// Zero is the reserved, invalid entity id.
var Zero = ID{}

func (id ID) IsZero() bool {
	return id.High == 0 && id.Low == 0
}

func (id ID) String() string {
	return fmt.Sprintf("%016x%016x", id.High, id.Low)
}

// Less orders ids first by generating step (High), then by per-step
// counter (Low). Iteration in this order is what spec.md §4.2 requires:
// "Iteration order of entities during the modification phase must be
// deterministic and identical across all instances (sort by EntityId)."
func (id ID) Less(other ID) bool {
	if id.High != other.High {
		return id.High < other.High
	}
	return id.Low < other.Low
}
