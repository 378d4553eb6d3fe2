package pkg

import "sync/atomic"

type AtomicBool struct {
	b atomic.Bool
}

func NewAtomicBool() *AtomicBool {
	return &AtomicBool{}
}

func (b *AtomicBool) Store(value bool) {
	b.b.Store(value)
}

func (b *AtomicBool) Load() bool {
	return b.b.Load()
}

// CompareAndSwap sets the value to new only if it currently equals old,
// reporting whether the swap happened.
func (b *AtomicBool) CompareAndSwap(old, new bool) bool {
	return b.b.CompareAndSwap(old, new)
}
