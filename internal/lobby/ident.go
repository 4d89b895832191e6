package lobby

// idCycleMax is the largest identifier issued before the allocator wraps
// back to 1. Identifiers are never zero.
const idCycleMax = 999

// idAllocator issues cyclic numeric identifiers in the range 1..999.
// It is owned by the coordinator loop and needs no locking.
type idAllocator struct {
	next int
}

// Next returns the next identifier, wrapping past idCycleMax.
//
// Postcondition: Returns a value in [1, idCycleMax].
func (a *idAllocator) Next() int {
	if a.next < 1 {
		a.next = 1
	}
	v := a.next
	a.next++
	if a.next > idCycleMax {
		a.next = 1
	}
	return v
}
