package concurrency

// Limiter bounds how many tasks run at once. It replaces a single global
// lock around goroutine launch: callers block in Acquire until a slot
// frees up instead of serializing the work itself.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter returns a Limiter admitting at most n concurrent holders.
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		n = 1
	}
	return &Limiter{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is available.
func (l *Limiter) Acquire() {
	l.slots <- struct{}{}
}

// TryAcquire takes a slot without blocking, reporting whether it succeeded.
func (l *Limiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a previously acquired slot.
func (l *Limiter) Release() {
	<-l.slots
}

// InUse returns the number of currently held slots.
func (l *Limiter) InUse() int {
	return len(l.slots)
}
