package op

// DefaultPoolCapacity is the free-list size used when a capacity of zero or
// less is requested. Batches rarely keep more records in flight than this.
const DefaultPoolCapacity = 30

// Pool is a bounded free list of operation records.
//
// Acquire methods pop a recycled record when one is available and allocate
// otherwise. Release clears the payload reference (so recycled records do not
// retain external data) and pushes the record back unless the free list is
// full, in which case the record is dropped for the garbage collector.
//
// Outstanding tracks acquired-minus-released and is the hook the conservation
// tests use to prove that every record acquired during a batch lifecycle is
// released exactly once.
type Pool struct {
	free        []*Op
	capacity    int
	outstanding int
}

// NewPool creates a pool with the given free-list capacity.
// A capacity of zero or less selects DefaultPoolCapacity.
func NewPool(capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultPoolCapacity
	}
	return &Pool{
		free:     make([]*Op, 0, capacity),
		capacity: capacity,
	}
}

// AcquireAdd returns a record describing an insertion of count items at start.
func (p *Pool) AcquireAdd(start, count int) *Op {
	return p.acquire(Add, start, count, 0, nil)
}

// AcquireRemove returns a record describing a removal of count items at start.
func (p *Pool) AcquireRemove(start, count int) *Op {
	return p.acquire(Remove, start, count, 0, nil)
}

// AcquireUpdate returns a record describing a refresh of count items at start.
// The payload is carried through to the collaborator unexamined.
func (p *Pool) AcquireUpdate(start, count int, payload any) *Op {
	return p.acquire(Update, start, count, 0, payload)
}

// AcquireMove returns a record relocating the item at from to to.
func (p *Pool) AcquireMove(from, to int) *Op {
	return p.acquire(Move, from, 1, to, nil)
}

func (p *Pool) acquire(kind Kind, start, count, to int, payload any) *Op {
	p.outstanding++
	n := len(p.free)
	if n == 0 {
		return &Op{
			Kind:          kind,
			PositionStart: start,
			ItemCount:     count,
			To:            to,
			Payload:       payload,
		}
	}
	o := p.free[n-1]
	p.free[n-1] = nil // release the slot's reference
	p.free = p.free[:n-1]
	o.Kind = kind
	o.PositionStart = start
	o.ItemCount = count
	o.To = to
	o.Payload = payload
	return o
}

// Release returns a record to the free list. Releasing nil is a no-op.
//
// The caller must not touch the record afterwards: the pool owns it and will
// hand it out again from the next acquire.
func (p *Pool) Release(o *Op) {
	if o == nil {
		return
	}
	p.outstanding--
	o.Payload = nil
	if len(p.free) < p.capacity {
		p.free = append(p.free, o)
	}
}

// Outstanding returns the number of acquired records not yet released.
func (p *Pool) Outstanding() int {
	return p.outstanding
}

// Pooled returns the current free-list length. Used by capacity tests.
func (p *Pool) Pooled() int {
	return len(p.free)
}
