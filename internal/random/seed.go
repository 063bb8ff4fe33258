// Package random provides both the cryptographic seed generation the
// teacher uses for nondeterministic ids, and the deterministic per-entity,
// per-step stream mandated by spec.md §5 for mob AI and item animation.
//
// Determinism forbids unsynchronized random sources inside entity/system
// step(); the only sanctioned source is DeterministicStream, seeded purely
// from (entity id, step index) so that two independent replays of the same
// step produce the same stream regardless of wall-clock or history.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
)

const maxSeedInt64 = int64(^uint64(0) >> 1)

var errSeedOutOfRange = errors.New("seed must fit in int64")

// ErrSeedOutOfRange reports when a seed does not fit in int64.
func ErrSeedOutOfRange() error {
	return errSeedOutOfRange
}

// NewSeed generates a random, non-negative seed using crypto/rand. It
// suits only sources that are themselves nondeterministic by contract,
// such as server-originated spawns (player join, portal transition) per
// spec.md §9. Only this package's tests call it; engine ids come from
// uuid.New.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	seed := binary.LittleEndian.Uint64(b[:]) & uint64(^uint64(0)>>1)
	if seed > uint64(maxSeedInt64) {
		return 0, errSeedOutOfRange
	}
	return int64(seed), nil
}

// DeterministicStream is a small xorshift64* generator seeded from a stable
// mix of entity id and step index. It never reads wall-clock or any other
// source of nondeterminism, so two independently replayed steps produce an
// identical sequence of draws.
type DeterministicStream struct {
	state uint64
}

// NewDeterministicStream mixes entityIDLow and stepIndex into a seed per
// spec.md §5: "seed = entity_id_low xor step_index (or an equivalent
// stable mix)".
func NewDeterministicStream(entityIDLow, stepIndex uint64) *DeterministicStream {
	seed := entityIDLow ^ stepIndex
	// avoid the all-zero fixed point of xorshift.
	if seed == 0 {
		seed = 0x9e3779b97f4a7c15
	}
	return &DeterministicStream{state: seed}
}

// Next draws the next pseudo-random uint64 in the stream.
func (s *DeterministicStream) Next() uint64 {
	x := s.state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	s.state = x
	return x * 0x2545F4914F6CDD1D
}

// IntN returns a deterministic value in [0, n).
func (s *DeterministicStream) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.Next() % uint64(n))
}

// Bool returns a deterministic coin flip.
func (s *DeterministicStream) Bool() bool {
	return s.Next()&1 == 1
}
