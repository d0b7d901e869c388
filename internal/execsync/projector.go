package execsync

import (
	"context"
	"slices"
	"sync"
)

// Projector keeps one Tracker per scene or puzzle. Trackers are created
// on first sight of an entity, so an observer can attach after a run began.
type Projector struct {
	mu       sync.Mutex
	trackers map[string]*Tracker
}

// NewProjector returns an empty projector.
func NewProjector() *Projector {
	return &Projector{trackers: make(map[string]*Tracker)}
}

// Apply routes ev to its entity's tracker.
func (p *Projector) Apply(ev Event) bool {
	if ev == nil {
		return false
	}
	id := ev.EntityID()
	if id == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.trackers[id]
	if !ok {
		t = NewTracker(id)
		p.trackers[id] = t
	}
	return t.Apply(ev)
}

// Snapshot returns the state of id and whether any event for it was seen.
func (p *Projector) Snapshot(id string) (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.trackers[id]
	if !ok {
		return Snapshot{}, false
	}
	return t.Snapshot(), true
}

// Snapshots returns every tracked entity's state ordered by ID.
func (p *Projector) Snapshots() []Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.trackers))
	for id := range p.trackers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.trackers[id].Snapshot())
	}
	return out
}

// Forget drops the tracker for id.
func (p *Projector) Forget(id string) {
	p.mu.Lock()
	delete(p.trackers, id)
	p.mu.Unlock()
}

// Run applies events from sub until ctx is done or the subscription
// closes.
func (p *Projector) Run(ctx context.Context, sub *Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			p.Apply(ev)
		}
	}
}
