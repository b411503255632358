package value

import "math"

// hashSeed is the golden-ratio mixing constant used throughout this file to
// combine sub-hashes. (vm.Line has no hash method, so no Line-level
// sentinel exists alongside it.)
const hashSeed uint64 = 0x9e3779b97f4a7c15

// Hash returns a structural hash of v, consistent with Equal: two values for
// which Equal reports 1 always produce the same Hash. limit bounds
// recursion into Lists and Maps the same way it bounds Equal, so that cyclic
// or very deep structures still terminate (spec.md §4.1: hash(recursion_limit=16)).
// Compound values that bottom out at the limit fold in a fixed sentinel
// rather than recursing further, so the result remains well-defined even
// though it may then collide with structurally different values; Equal is
// the source of truth and Map.bucket always double-checks it.
func Hash(v Value, limit int) uint64 {
	if limit <= 0 {
		return hashSeed
	}
	switch x := v.(type) {
	case Null:
		return mix(1, 0)
	case Number:
		f := float64(x)
		if f == 0 {
			f = 0 // -0 == 0 under Equal, so both hash as +0
		}
		bits := math.Float64bits(f)
		return mix(2, bits)
	case String:
		return mix(3, hashBytes([]byte(x)))
	case *List:
		h := mix(4, uint64(len(x.elems)))
		for _, e := range x.elems {
			h = mix(h, Hash(e, limit-1))
		}
		return h
	case *Map:
		// Map hashing must not depend on insertion order (two maps with the
		// same entries in different orders are still structurally equal), so
		// sub-hashes are combined with a commutative operator.
		h := mix(5, uint64(x.live))
		for _, e := range x.entries {
			if e.removed {
				continue
			}
			h += Hash(e.key, limit-1) * 31
			h += Hash(e.val, limit-1)
		}
		return h
	default:
		// VM-level operand kinds and host extensions: hash by identity via
		// the interface's own string form, which is at minimum stable across
		// repeated calls on the same value.
		return mix(6, hashBytes([]byte(v.String())))
	}
}

func mix(a, b uint64) uint64 {
	h := a ^ (b + hashSeed + (a << 6) + (a >> 2))
	return h
}

// hashBytes is an FNV-1a 64-bit hash, used for Strings and as a fallback for
// opaque Values.
func hashBytes(b []byte) uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	h := uint64(offset)
	for _, c := range b {
		h ^= uint64(c)
		h *= prime
	}
	return h
}
