package cache

// murmur2 is Austin Appleby's MurmurHash2, with the seed fixed as required
// by spec.md §3. Ported byte-for-byte from the reference C implementation
// in the original nmdb source (nmdb/hash.h) rather than from any Go hashing
// library, because the cache's bucket placement must match the documented
// algorithm exactly — a drop-in hash (xxhash, fnv, …) would be a different,
// incompatible function.
func murmur2(key []byte) uint32 {
	const (
		m    uint32 = 0x5bd1e995
		r           = 24
		seed uint32 = 0x34a4b627
	)

	length := len(key)
	h := seed ^ uint32(length)

	for length >= 4 {
		k := uint32(key[0]) | uint32(key[1])<<8 | uint32(key[2])<<16 | uint32(key[3])<<24
		k *= m
		k ^= k >> r
		k *= m

		h *= m
		h ^= k

		key = key[4:]
		length -= 4
	}

	switch length {
	case 3:
		h ^= uint32(key[2]) << 16
		fallthrough
	case 2:
		h ^= uint32(key[1]) << 8
		fallthrough
	case 1:
		h ^= uint32(key[0])
		h *= m
	}

	h ^= h >> 13
	h *= m
	h ^= h >> 15

	return h
}
