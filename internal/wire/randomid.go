package wire

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// RandomID returns a random 64-bit identifier drawn from the OS entropy
// source, for use as a publisher or subscriber ID (spec.md §4.4: "random
// 64-bit values drawn from a per-process RNG seeded from the OS entropy
// source"). It folds a v4 UUID's 16 bytes down to 8 rather than hand-rolling
// a PRNG, since uuid.New already seeds from crypto/rand internally.
func RandomID() uint64 {
	id := uuid.New()
	return binary.LittleEndian.Uint64(id[:8]) ^ binary.LittleEndian.Uint64(id[8:])
}
