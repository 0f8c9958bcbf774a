// Package engine implements the incremental update reconciliation engine for
// an ordered list presentation layer.
//
// The engine ingests raw mutation records (add, remove, update, move) issued
// against a backing dataset and turns them into work a two-phase rendering
// pipeline can apply safely: the pending batch is first canonicalized by the
// Reorderer (all moves pushed behind the structural operations they conflict
// with, expressed in a consistent reference frame), then walked exactly once
// by PreProcess, which decides per operation whether its visual effect is
// applied immediately or postponed to the second rendering pass so exit and
// move animations can run.
//
// ARCHITECTURE:
//
// Single-Threaded Batch Lifecycle:
// All issuance, reordering, and both dispatch passes execute on one logical
// thread with no internal suspension points. This ensures:
// - Position references always resolve against one coherent snapshot
// - The postponed queue needs no locking between the two passes
// - Replaying a batch produces an identical trace
//
// Batch Processing Flow:
// 1. AddOperations validates records against the projected dataset size
//    and appends them to the pending queue (issue order is the logical
//    mutation timeline)
// 2. PreProcess canonicalizes the pending queue, then walks it, translating
//    positions through the frame and calling back into the Collaborator
// 3. ConsumePostponedUpdates drains the postponed queue in order at the
//    start of the second pass and recycles every drained record
//
// A mutation arriving while either pass is on the stack is a reentrancy
// violation, reported immediately.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every processed record is stamped with a monotonic seq from Clock.Next().
// NEVER use wall-clock timestamps for ordering.
//
// Deterministic Walk:
// Operations are processed in canonical order, one at a time, to completion.
// No randomness, no concurrency, no non-determinism.
package engine
