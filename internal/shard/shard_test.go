package shard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAssignsExactlyOneShardInRange(t *testing.T) {
	r := NewResolver(4)
	ids := []string{"abcde", "axxxx", "zzzzz", "0room", "9wxyz", "m", "default"}
	for _, id := range ids {
		got := r.Resolve(id)
		assert.GreaterOrEqual(t, got, 1, "id %q", id)
		assert.LessOrEqual(t, got, 4, "id %q", id)
		// Deterministic across calls.
		assert.Equal(t, got, r.Resolve(id), "id %q", id)
	}
}

func TestResolveDependsOnlyOnLeadingChar(t *testing.T) {
	r := NewResolver(7)
	assert.Equal(t, r.Resolve("abcde"), r.Resolve("azzzz"))
	assert.Equal(t, r.Resolve("q0000"), r.Resolve("q"))
}

func TestPartitionCharsCoverAlphabetWithoutOverlap(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 10} {
		r := NewResolver(n)
		seen := map[string]int{}
		for s := 1; s <= n; s++ {
			for _, c := range r.PartitionChars(s) {
				seen[c]++
			}
		}
		require.Len(t, seen, len(Alphabet), "numShards=%d", n)
		for c, count := range seen {
			assert.Equal(t, 1, count, "char %q claimed by %d shards (numShards=%d)", c, count, n)
		}
	}
}

func TestPartitionCharsAgreeWithResolve(t *testing.T) {
	r := NewResolver(5)
	for s := 1; s <= 5; s++ {
		for _, c := range r.PartitionChars(s) {
			assert.Equal(t, s, r.Resolve(c+"tail"), "char %q", c)
		}
	}
}

func TestUnshardedResolverReturnsZero(t *testing.T) {
	r := NewResolver(0)
	assert.Equal(t, 0, r.Resolve("abcde"))
	assert.Equal(t, 0, r.NumShards())
	assert.Len(t, r.PartitionChars(0), len(Alphabet))
}

func TestBatchHashSpreadsWithinLeadingChar(t *testing.T) {
	// Ids sharing a leading character must not all land in one batch,
	// otherwise the sweep would revisit a shard's rooms unevenly.
	batches := map[uint32]bool{}
	for _, id := range []string{"aaaaa", "abbbb", "acccc", "addd1", "aeee2", "afff3"} {
		batches[BatchHash(id)%10] = true
	}
	assert.Greater(t, len(batches), 1)
}
