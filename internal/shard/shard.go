// Package shard maps room ids onto the statically configured shard
// partition. Shard assignment must agree across every process in the
// fleet: the resolver both routes clients to the owning process and
// restricts which durable rows a process loads at startup.
package shard

import "hash/fnv"

// Alphabet is the set of characters a room id may start with. Room ids
// are generated from this alphabet, and the startup row filter is
// precomputed over it.
const Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Resolver partitions the room-id keyspace across a fixed number of
// shards. It hashes only the leading character of the id: the durable
// row filter is built per leading character, so the two paths stay
// consistent by construction.
type Resolver struct {
	numShards int
}

// NewResolver returns a Resolver over numShards shards. A value of zero
// (or negative) disables sharding entirely.
func NewResolver(numShards int) *Resolver {
	if numShards < 0 {
		numShards = 0
	}
	return &Resolver{numShards: numShards}
}

// NumShards returns the configured shard count, zero when unsharded.
func (r *Resolver) NumShards() int {
	return r.numShards
}

// Resolve returns the shard owning roomID, in [1, NumShards]. When
// sharding is disabled it returns 0 for every id.
func (r *Resolver) Resolve(roomID string) int {
	if r.numShards == 0 {
		return 0
	}
	lead := roomID
	if len(roomID) > 0 {
		lead = roomID[:1]
	}
	return int(hash32(lead)%uint32(r.numShards)) + 1
}

// PartitionChars returns the leading characters of Alphabet owned by the
// given shard. The union over all shards covers the alphabet with no
// overlap. An unsharded resolver owns the entire alphabet on shard 0.
func (r *Resolver) PartitionChars(shard int) []string {
	var chars []string
	for i := 0; i < len(Alphabet); i++ {
		c := Alphabet[i : i+1]
		if r.Resolve(c) == shard {
			chars = append(chars, c)
		}
	}
	return chars
}

// BatchHash hashes the full room id. The release sweep uses it modulo the
// batch count to pick which tick evaluates a room; unlike Resolve it must
// spread ids with a common leading character across batches, so it hashes
// the whole id.
func BatchHash(roomID string) uint32 {
	return hash32(roomID)
}

func hash32(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
