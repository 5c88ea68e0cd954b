// Package rng provides seedable, cloneable pseudo-random streams and the
// derivation operations used to hand independent streams to pipeline workers.
//
// All streams ultimately descend from one root stream held by a Context.
// Derivation is deterministic: the same parent state and count always yield
// the same child streams, which is what makes parallel augmentation
// reproducible for a fixed worker count.
package rng

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// seedSpace bounds the integers drawn during derivation. Child seeds are
// offsets above one such draw, so the space only has to be large enough to
// keep unrelated derivations apart.
const seedSpace = 1_000_000

// pcgStream is the second PCG seed word, fixed so that a State is a function
// of its single user-visible seed.
const pcgStream = 0x9e3779b97f4a7c15

// State is one pseudo-random stream. Two States created from the same seed
// produce bit-identical draw sequences. A State is mutated by every draw and
// must not be shared across workers without an explicit Clone or Derive.
type State struct {
	pcg *rand.PCG
	rnd *rand.Rand
}

// New returns a State seeded with the given value.
func New(seed uint64) *State {
	pcg := rand.NewPCG(seed, pcgStream)
	return &State{pcg: pcg, rnd: rand.New(pcg)}
}

// NewFullyRandom returns a State seeded from external entropy. The resulting
// stream is not reproducible.
func NewFullyRandom() *State {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// fixed seed rather than returning an error nobody can act on.
		return New(1)
	}
	return New(binary.LittleEndian.Uint64(buf[:]))
}

// Seed reinitializes the stream in place. The State keeps its identity, so
// references held elsewhere observe the new sequence.
func (s *State) Seed(seed uint64) {
	s.pcg.Seed(seed, pcgStream)
}

// Uint64 draws the next value.
func (s *State) Uint64() uint64 { return s.rnd.Uint64() }

// Uint64N draws a value in [0, n).
func (s *State) Uint64N(n uint64) uint64 { return s.rnd.Uint64N(n) }

// IntN draws a value in [0, n).
func (s *State) IntN(n int) int { return s.rnd.IntN(n) }

// Float64 draws a value in [0, 1).
func (s *State) Float64() float64 { return s.rnd.Float64() }

// NormFloat64 draws a standard-normal value.
func (s *State) NormFloat64() float64 { return s.rnd.NormFloat64() }

// SeedDraw draws one integer suitable as a seed for a new stream. This is
// the single draw derivation is built on.
func (s *State) SeedDraw() uint64 {
	return s.rnd.Uint64N(seedSpace)
}

// Clone returns an independent copy of the stream at its current position.
func (s *State) Clone() *State {
	buf, err := s.pcg.MarshalBinary()
	if err != nil {
		// PCG marshaling cannot fail; keep the signature draw-free anyway.
		return New(1)
	}
	pcg := &rand.PCG{}
	if err := pcg.UnmarshalBinary(buf); err != nil {
		return New(1)
	}
	return &State{pcg: pcg, rnd: rand.New(pcg)}
}

// Advance performs one throwaway draw. Use it to desynchronize a fresh clone
// from its original before the original is drawn from again.
func (s *State) Advance() {
	_ = s.rnd.Uint64()
}

// Derive fans one stream into n independent child streams. It performs
// exactly one draw on the parent; children are seeded with consecutive
// offsets above that draw, so identical parent state and n always produce
// identical children.
func Derive(s *State, n int) []*State {
	base := s.SeedDraw()
	out := make([]*State, n)
	for i := range out {
		out[i] = New(base + uint64(i))
	}
	return out
}
