// Package op defines the operation records that describe list mutations and
// the bounded pool that recycles them.
//
// An Op is a value describing one mutation (add, remove, update, move) issued
// against the backing dataset. Ops are immutable from the producer's point of
// view: once handed to the engine, the record belongs to the batch lifecycle
// and is recycled through the Pool after dispatch.
//
// The Pool is a fixed-capacity free list. Acquiring beyond capacity falls
// back to plain allocation and releasing beyond capacity drops the record;
// pooling is a performance optimization, never a correctness dependency.
//
// Nothing in this package is safe for concurrent use. The reconciliation
// engine is single-threaded by contract and the pool inherits that model.
package op
