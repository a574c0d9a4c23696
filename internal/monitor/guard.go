package monitor

import "sync"

// inFlight tracks which endpoint ids have a check running.
type inFlight struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newInFlight() *inFlight {
	return &inFlight{ids: make(map[string]struct{})}
}

// tryAcquire marks id busy. ok is false if it already was; release must be
// called exactly once when ok is true.
func (g *inFlight) tryAcquire(id string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.ids[id]; busy {
		return nil, false
	}
	g.ids[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.ids, id)
			g.mu.Unlock()
		})
	}, true
}

func (g *inFlight) busy(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.ids[id]
	return ok
}
