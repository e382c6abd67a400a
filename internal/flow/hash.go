// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import "github.com/cespare/xxhash/v2"

// hashKey computes the table hash of a key, including its zero padding.
// The table's seed is mixed in, so tables configured with different seeds
// place the same key independently of each other.
func hashKey(k Key, seed uint64) uint64 {
	b := k.Bytes()
	return hashBytes(b[:], seed)
}

// hashBytes is the keyed hash(bytes, len, seed) primitive behind hashKey,
// backed by xxhash for a well-distributed, non-cryptographic hash.
func hashBytes(b []byte, seed uint64) uint64 {
	d := xxhash.NewWithSeed(seed)
	_, _ = d.Write(b)
	return d.Sum64()
}
