package brew

import "sync"

// Flag is a binary event used to hand lifecycle pulses between cooperating
// threads: a data feeder signals "batch ready", a solver consumes it, the
// shutdown path releases everyone still parked on it.
//
// A Flag has three states: unset, set, and disarmed. Set and Reset move
// between the first two and wake all waiters so they can re-evaluate.
// Disarm is terminal: once disarmed a Flag releases every current waiter
// and never blocks a future one.
type Flag struct {
	mu       sync.Mutex
	cond     *sync.Cond
	set      bool
	disarmed bool
}

// NewFlag returns a Flag in the given initial state.
func NewFlag(set bool) *Flag {
	f := &Flag{set: set}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// IsSet reports whether the flag is currently set.
func (f *Flag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

// Disarmed reports whether the flag has been permanently disarmed.
func (f *Flag) Disarmed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disarmed
}

// Set raises the flag and wakes all waiters.
func (f *Flag) Set() {
	f.mu.Lock()
	f.set = true
	f.mu.Unlock()
	f.cond.Broadcast()
}

// Reset lowers the flag and wakes all waiters so they re-evaluate. Waiters
// already released by a previous Set are unaffected; new waiters block
// until the next Set.
func (f *Flag) Reset() {
	f.mu.Lock()
	f.set = false
	f.mu.Unlock()
	f.cond.Broadcast()
}

// Wait blocks until the flag is set or disarmed. It reports true when it
// observed the flag set and false when it was released by Disarm.
func (f *Flag) Wait() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for !f.set && !f.disarmed {
		f.cond.Wait()
	}
	return !f.disarmed
}

// WaitReset blocks until the flag is set, consumes the pulse by resetting
// it, and reports true. When several goroutines block in WaitReset, one
// Set releases exactly one of them; the rest keep waiting for the next
// pulse. If the flag is disarmed, WaitReset returns false without
// touching the flag state.
func (f *Flag) WaitReset() bool {
	f.mu.Lock()
	for !f.set && !f.disarmed {
		f.cond.Wait()
	}
	disarmed := f.disarmed
	if !disarmed {
		f.set = false
	}
	f.mu.Unlock()
	f.cond.Broadcast()
	return !disarmed
}

// Disarm permanently releases all current and future waiters. The flag
// value itself is left as is; only the disarmed state matters from here
// on. Disarm is idempotent and cannot be undone.
func (f *Flag) Disarm() {
	f.mu.Lock()
	f.disarmed = true
	f.mu.Unlock()
	f.cond.Broadcast()
}
