package controller

import (
	"sync"

	"github.com/switchboard-io/switchboard/internal/core"
)

// StateUpdate is one kernel's state transition, as delivered to
// StateCache watchers.
type StateUpdate struct {
	KernelID string
	State core.KernelState
}

// StateCache holds the latest core.KernelState per kernel, updated from
// each pool entry's inbound KernelHeartBeat messages, and fans updates
// out to any number of watchers through a registry of per-watcher
// channels, so more than one caller can observe the same kernel's state
// stream.
type StateCache struct {
	mu sync.RWMutex
	states map[string]core.KernelState
	watchers map[int]chan StateUpdate
	nextID int
}

func NewStateCache() *StateCache {
	return &StateCache{
		states: map[string]core.KernelState{},
		watchers: map[int]chan StateUpdate{},
	}
}

// Update records a new state for kernelID and broadcasts it to every
// active watcher. Slow watchers don't block the update: a watcher whose
// channel is full simply misses that particular update (Get always
// reflects the latest).
func (c *StateCache) Update(kernelID string, state core.KernelState) {
	c.mu.Lock()
	c.states[kernelID] = state
	watchers := make([]chan StateUpdate, 0, len(c.watchers))
	for _, ch := range c.watchers {
		watchers = append(watchers, ch)
	}
	c.mu.Unlock()

	update := StateUpdate{KernelID: kernelID, State: state}
	for _, ch := range watchers {
		select {
		case ch <- update:
		default:
		}
	}
}

// Get returns the last known state for kernelID.
func (c *StateCache) Get(kernelID string) (core.KernelState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.states[kernelID]
	return s, ok
}

// Snapshot returns a copy of every kernel's last known state.
func (c *StateCache) Snapshot() map[string]core.KernelState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]core.KernelState, len(c.states))
	for k, v := range c.states {
		out[k] = v
	}
	return out
}

// Watch registers a new subscriber and returns its update channel plus an
// unsubscribe function. The channel is closed by unsubscribe, never by
// StateCache itself.
func (c *StateCache) Watch() (<-chan StateUpdate, func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	ch := make(chan StateUpdate, 16)
	c.watchers[id] = ch
	c.mu.Unlock()

	unsubscribe := func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
		close(ch)
	}
	return ch, unsubscribe
}

// OnStateMessage records a state already taken out of a kernel's
// heartbeat; it is equivalent to Update. It takes a core.KernelState, not
// a channel.Message, so it does not fit Pool.OnState directly; Controller
// does that message filtering in handlePoolMessage.
func (c *StateCache) OnStateMessage(kernelID string, heartbeatState core.KernelState) {
	c.Update(kernelID, heartbeatState)
}
