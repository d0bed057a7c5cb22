package simulation

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
)

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Source hands out one generator per independent stream. With a fixed
// seed, stream i always draws from seed+i, so results do not depend on the
// order or concurrency in which streams run.
type Source struct {
	seed   int64
	seeded bool
}

// Seeded returns a deterministic source.
func Seeded(seed int64) Source {
	return Source{seed: seed, seeded: true}
}

// SourceFor returns a deterministic source when seed is set, otherwise a
// freshly seeded one.
func SourceFor(seed *int64) (Source, error) {
	if seed != nil {
		return Seeded(*seed), nil
	}
	s, err := NewSeed()
	if err != nil {
		return Source{}, err
	}
	return Source{seed: s}, nil
}

// Stream returns the generator for stream i.
func (s Source) Stream(i int) *rand.Rand {
	return rand.New(rand.NewSource(s.seed + int64(i)))
}
