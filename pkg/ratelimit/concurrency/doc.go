/*
Package concurrency provides the gate that bounds in-flight operations.

A Gate holds a fixed number of slots. Acquire suspends until a slot is free
(or the context ends) and returns a *Slot owned by the caller; Release gives
it back. Release is guarded so that only its first call counts, which makes
the usual pattern safe on every exit path, including panics and
cancellation:

	slot, err := gate.Acquire(ctx)
	if err != nil {
		return err // never admitted, nothing to release
	}
	defer slot.Release()

Acquisition policy:

Waiters are queued in arrival order. A released slot is handed directly to
the oldest live waiter instead of being returned to the pool, so a newcomer
cannot take a slot ahead of the queue. A waiter whose context ends leaves
the queue; if a slot reached it at the same moment, the slot is passed on
to the next waiter rather than leaked.
*/
package concurrency
