package rng

import "encoding/hex"

const (
	lcgMultiplier = 1103515245
	lcgIncrement  = 12345
	lcgMask       = 0x7FFFFFFF

	birthHashRounds = 16
)

// BirthHash mixes (seed, timestamp) into a 16-byte fingerprint. The mixing
// is a wire contract: persisted identifiers depend on every conforming
// implementation reproducing it byte-for-byte, so the arithmetic is fixed
// 31-bit linear-congruential steps and must not be changed.
func BirthHash(seed uint32, timestamp int64) [16]byte {
	state := (uint64(seed) + uint64(timestamp)) & lcgMask

	var out [16]byte
	for i := 0; i < birthHashRounds; i++ {
		state = (state*lcgMultiplier + lcgIncrement) & lcgMask
		out[i] = byte(state >> 16)
	}
	return out
}

// BirthHashString renders the fingerprint as 32 lowercase hex characters.
func BirthHashString(seed uint32, timestamp int64) string {
	h := BirthHash(seed, timestamp)
	return hex.EncodeToString(h[:])
}
