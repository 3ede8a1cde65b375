// Package clusterhash implements the deterministic, seed-initialized
// 32-bit mixer used by the balancer's sticky routing policy.
//
// The mixer is fixed bit-for-bit: it must reproduce the same output for a
// given (seed, input) pair as the reference implementation it was ported
// from, so that sticky assignments are reproducible across rewrites. It is
// not a general-purpose hash and makes no collision-resistance claim.
package clusterhash

// Hash mixes seed with the bytes of data and returns the resulting 32-bit
// value. All intermediate additions wrap modulo 2^31, not 2^32; only the
// final result is cast to an unsigned 32-bit value. Shifts are logical.
func Hash(seed uint32, data []byte) uint32 {
	const mod = 1 << 31

	h := uint64(seed) % mod
	for _, b := range data {
		h = (h + uint64(b)) % mod
		h = (h + (h << 10)) % mod
		h ^= h >> 6
	}
	h = (h + (h << 3)) % mod
	h ^= h >> 11
	h = (h + (h << 15)) % mod

	return uint32(h)
}
