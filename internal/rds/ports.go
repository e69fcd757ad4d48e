package rds

import "sync"

// PortAllocator hands out host ports for provisioned instances: lowest free
// port at or above the base. A port returns to the pool only on Release, so
// restarts must Mark every persisted port before the first Acquire.
type PortAllocator struct {
	mu   sync.Mutex
	base int
	busy map[int]bool
}

func NewPortAllocator(base int) *PortAllocator {
	return &PortAllocator{base: base, busy: map[int]bool{}}
}

func (a *PortAllocator) Acquire() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := a.base
	for a.busy[p] {
		p++
	}
	a.busy[p] = true
	return p
}

func (a *PortAllocator) Release(p int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.busy, p)
}

// Mark flags a port busy without allocating it; used to rebuild the set from
// persisted instance records.
func (a *PortAllocator) Mark(p int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p > 0 {
		a.busy[p] = true
	}
}
