package resilience

import "sync"

// Manager is a registry of named circuit breakers, one per logical
// upstream, created lazily on first lookup.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	settings Settings
}

// NewManager creates a breaker registry. Every breaker it creates shares
// the given settings.
func NewManager(settings Settings) *Manager {
	return &Manager{
		breakers: make(map[string]*Breaker),
		settings: settings,
	}
}

// Get returns the breaker for name, creating it on first use. Concurrent
// first lookups for the same name yield exactly one instance: the read
// path is lock-free for the common case and creation is double-checked
// under the write lock.
func (m *Manager) Get(name string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[name]; ok {
		return b
	}
	b = New(name, m.settings)
	m.breakers[name] = b
	return b
}

// Names returns the names of all breakers created so far.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.breakers))
	for name := range m.breakers {
		names = append(names, name)
	}
	return names
}

// ResetAll forces every registered breaker closed.
func (m *Manager) ResetAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.breakers {
		b.Reset()
	}
}
