package degrade

import "sync"

// refresh is one in-flight fetch for a key. done is closed when the
// fetch resolves, after data/err are set.
type refresh struct {
	done chan struct{}
	data []byte
	err  error
}

// refreshGroup de-duplicates in-flight refreshes per cache key. claim is
// an atomic check-and-set: exactly one caller becomes the leader for a
// key, and only that leader's finish clears the marker.
type refreshGroup struct {
	mu      sync.Mutex
	flights map[string]*refresh
}

func newRefreshGroup() *refreshGroup {
	return &refreshGroup{flights: make(map[string]*refresh)}
}

// claim returns the refresh for key and whether the caller registered it
// (and therefore owns running the fetch and calling finish).
func (g *refreshGroup) claim(key string) (*refresh, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.flights[key]; ok {
		return r, false
	}
	r := &refresh{done: make(chan struct{})}
	g.flights[key] = r
	return r, true
}

// finish records the result, clears the in-flight marker, and wakes all
// waiters. Must be called exactly once, by the leader, on success or
// failure.
func (g *refreshGroup) finish(key string, r *refresh, data []byte, err error) {
	g.mu.Lock()
	delete(g.flights, key)
	g.mu.Unlock()

	r.data = data
	r.err = err
	close(r.done)
}
