package op

import "fmt"

// Kind identifies the mutation an Op describes.
type Kind uint8

const (
	// Add inserts ItemCount items starting at PositionStart.
	Add Kind = iota

	// Remove deletes ItemCount items starting at PositionStart.
	Remove

	// Update refreshes ItemCount items starting at PositionStart,
	// carrying an opaque payload to the render layer.
	Update

	// Move relocates the single item at PositionStart to To.
	Move
)

// String returns the lowercase name used in logs, traces, and scenario files.
func (k Kind) String() string {
	switch k {
	case Add:
		return "add"
	case Remove:
		return "remove"
	case Update:
		return "update"
	case Move:
		return "move"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind maps a scenario-file kind name to its Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "add":
		return Add, nil
	case "remove":
		return Remove, nil
	case "update":
		return Update, nil
	case "move":
		return Move, nil
	default:
		return 0, fmt.Errorf("unknown operation kind %q", s)
	}
}

// Op describes one list mutation.
//
// PositionStart indexes the list state as of when the operation is logically
// issued, which is what makes a pending sequence order-sensitive until it is
// canonicalized. ItemCount is always 1 for Move. To is meaningful only for
// Move and holds the destination index. Payload is meaningful only for
// Update and is carried to the collaborator unexamined.
type Op struct {
	Kind          Kind
	PositionStart int
	ItemCount     int
	To            int
	Payload       any
}

// PositionEnd returns the exclusive end of the touched range.
// Meaningless for Move, which touches a single item.
func (o *Op) PositionEnd() int {
	return o.PositionStart + o.ItemCount
}

// String renders the record for logs and error messages.
func (o *Op) String() string {
	if o == nil {
		return "<nil op>"
	}
	if o.Kind == Move {
		return fmt.Sprintf("move(%d->%d)", o.PositionStart, o.To)
	}
	return fmt.Sprintf("%s(%d,%d)", o.Kind, o.PositionStart, o.ItemCount)
}
