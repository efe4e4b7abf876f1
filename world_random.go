package server

import (
	"hash/fnv"
	"math"
	"math/rand"
)

const tau = 2 * math.Pi

// deterministicSeedValue hashes a root seed and a label into an RNG seed.
// The same (root, label) pair always yields the same value, which is what
// makes recycled shards reproduce their decoration layout.
func deterministicSeedValue(rootSeed, label string) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(rootSeed))
	hasher.Write([]byte{0})
	hasher.Write([]byte(label))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

func newDeterministicRNG(rootSeed, label string) *rand.Rand {
	return rand.New(rand.NewSource(deterministicSeedValue(rootSeed, label)))
}
