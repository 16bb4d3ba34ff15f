package resilix

import "sync"

// ConnectivityMonitor tracks the last known online/offline state of the
// process. State changes are pushed in by platform network-change signals
// via SetOnline (edge-triggered; the monitor never polls). Reads are
// synchronous and never block. Safe for concurrent use.
type ConnectivityMonitor struct {
	mu          sync.Mutex
	online      bool
	nextID      int
	subscribers map[int]func(bool)
}

// NewConnectivityMonitor returns a monitor that starts online.
func NewConnectivityMonitor() *ConnectivityMonitor {
	return &ConnectivityMonitor{
		online:      true,
		subscribers: make(map[int]func(bool)),
	}
}

// IsOnline returns the last known connectivity state.
func (m *ConnectivityMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a platform connectivity signal and notifies
// subscribers. Repeated signals with an unchanged state are ignored.
func (m *ConnectivityMonitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	callbacks := make([]func(bool), 0, len(m.subscribers))
	for _, cb := range m.subscribers {
		callbacks = append(callbacks, cb)
	}
	m.mu.Unlock()

	// Callbacks run outside the lock so a subscriber may call back into
	// the monitor.
	for _, cb := range callbacks {
		cb(online)
	}
}

// Subscribe registers a callback invoked on every state change and returns
// its unsubscribe function. Unsubscribing twice is a no-op.
func (m *ConnectivityMonitor) Subscribe(callback func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = callback
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}
