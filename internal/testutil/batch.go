package testutil

import (
	"fmt"
	"math/rand/v2"

	"github.com/perluette/relist/op"
)

// maxRunLength caps the item count of generated structural operations.
// Small runs keep the conflict surface between moves and structural
// operations dense, which is where reordering bugs live.
const maxRunLength = 3

// RandomBatch generates n valid operation records against a list that
// starts at size items, acquiring every record from pool. Positions are
// valid for sequential application: each record is generated against the
// size projected over the records before it. Returns the records and the
// projected final size.
//
// Moves with equal source and destination are skipped during generation;
// the engine treats them as no-ops, which would desynchronize a
// record-for-record oracle.
func RandomBatch(r *rand.Rand, pool *op.Pool, size, n int) ([]*op.Op, int) {
	ops := make([]*op.Op, 0, n)
	for len(ops) < n {
		switch r.IntN(4) {
		case 0:
			start := r.IntN(size + 1)
			count := 1 + r.IntN(maxRunLength)
			ops = append(ops, pool.AcquireAdd(start, count))
			size += count

		case 1:
			if size < 1 {
				continue
			}
			start := r.IntN(size)
			count := 1 + r.IntN(min(maxRunLength, size-start))
			ops = append(ops, pool.AcquireRemove(start, count))
			size -= count

		case 2:
			if size < 1 {
				continue
			}
			start := r.IntN(size)
			count := 1 + r.IntN(min(maxRunLength, size-start))
			ops = append(ops, pool.AcquireUpdate(start, count, fmt.Sprintf("payload-%d", len(ops))))

		case 3:
			if size < 2 {
				continue
			}
			from := r.IntN(size)
			to := r.IntN(size)
			if from == to {
				continue
			}
			ops = append(ops, pool.AcquireMove(from, to))
		}
	}
	return ops, size
}

// Rand returns a deterministic PRNG for the given seed.
func Rand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
