// Package ports hands out unique local ports for worker instances.
package ports

import "sync"

// DefaultBasePort is the first port tried when none is configured.
const DefaultBasePort = 8090

// Allocator assigns each session a unique port starting at a base port.
// Allocation is idempotent per session and safe for concurrent use.
type Allocator struct {
	mu       sync.Mutex
	base     int
	inUse    map[int]bool
	sessions map[string]int
}

// NewAllocator creates an allocator that assigns ports starting at base.
// A base of zero or less falls back to DefaultBasePort.
func NewAllocator(base int) *Allocator {
	if base <= 0 {
		base = DefaultBasePort
	}
	return &Allocator{
		base:     base,
		inUse:    make(map[int]bool),
		sessions: make(map[string]int),
	}
}

// Allocate returns the port assigned to sessionID, assigning the smallest
// unused port at or above the base on first call.
func (a *Allocator) Allocate(sessionID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if port, ok := a.sessions[sessionID]; ok {
		return port
	}

	port := a.base
	for a.inUse[port] {
		port++
	}

	a.inUse[port] = true
	a.sessions[sessionID] = port
	return port
}

// Release frees the port assigned to sessionID. Unknown sessions are a no-op.
func (a *Allocator) Release(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	port, ok := a.sessions[sessionID]
	if !ok {
		return
	}
	delete(a.inUse, port)
	delete(a.sessions, sessionID)
}
