package engine

import "github.com/perluette/relist/op"

// ElementHolder is the render layer's live handle for a rendered list item.
// The engine never inspects one; it only carries handles between
// FindElementHolder and RetainForSecondPass.
type ElementHolder = any

// Effect is one immediately-applied mutation, dispatched during the first
// pass. Kind is never op.Move; moves are always postponed.
type Effect struct {
	Kind          op.Kind
	PositionStart int
	ItemCount     int
	Payload       any
}

// Collaborator is the boundary contract to the surrounding rendering layer.
//
// All methods are invoked synchronously from the engine's single logical
// thread and must not re-enter the engine; doing so is a reentrancy
// violation.
type Collaborator interface {
	// FindElementHolder reports the live handle rendered at the given
	// pre-layout position, if any. Used purely for classification and
	// must not mutate render state.
	FindElementHolder(prePos int) (ElementHolder, bool)

	// DispatchImmediate applies an add/remove/update effect to the live
	// render state now.
	DispatchImmediate(e Effect)

	// DispatchSecondPass applies a previously postponed record during the
	// second pass. The record is recycled when the call returns; the
	// collaborator must not retain it.
	DispatchSecondPass(o *op.Op)

	// RetainForSecondPass tags a holder whose item is being removed so it
	// keeps its visual identity alive through the second pass for the
	// exit animation.
	RetainForSecondPass(h ElementHolder)
}

// ProgressReporter is an optional capability on the Collaborator. When
// implemented, OnOperationProcessed is invoked once per processed record,
// after its effects are emitted. For progress reporting only; must not
// mutate engine state.
type ProgressReporter interface {
	OnOperationProcessed()
}
