package subscription

import (
	"context"
	"sort"
	"sync"
	"time"

	logx "github.com/TERAN-XMD-maker/Helalink2025/pkg/logx"
)

// Store is the durability contract the registry persists through.
//
// Both operations are fail-soft by contract: Load returns an empty map when
// the backing storage is missing, and Save errors are reported but never roll
// back the in-memory state. The registry is the source of truth.
type Store interface {
	Load(ctx context.Context) (map[string]Record, error)
	Save(ctx context.Context, recs map[string]Record) error
}

// Registry is the in-memory subscription map plus best-effort persistence.
//
// All mutation goes through the registry; callers (the scheduler and the
// HTTP supervisor operations) are serialized by the internal mutex, so two
// recipients' failure-pruning in the same instant cannot lose updates.
type Registry struct {
	mu   sync.Mutex
	recs map[string]Record
	byEP map[string]string // endpoint -> id
	seq  uint64            // bumped under mu on every mutation

	// persistMu serializes Save calls; savedSeq drops snapshots that were
	// taken before one that already reached the store.
	persistMu sync.Mutex
	savedSeq  uint64

	store Store // nil means in-memory only
	log   logx.Logger
}

func NewRegistry(store Store, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		recs:  map[string]Record{},
		byEP:  map[string]string{},
		store: store,
		log:   log,
	}
}

// Load replaces the in-memory state with the persisted snapshot.
// A read failure degrades to an empty registry with a logged warning.
func (g *Registry) Load(ctx context.Context) int {
	if g.store == nil {
		return 0
	}
	recs, err := g.store.Load(ctx)
	if err != nil {
		g.log.Warn("subscription load failed; starting empty", logx.Err(err))
		recs = map[string]Record{}
	}
	g.mu.Lock()
	g.recs = recs
	g.byEP = make(map[string]string, len(recs))
	for id, r := range recs {
		if ep := r.Endpoint(); ep != "" {
			g.byEP[ep] = id
		}
	}
	n := len(g.recs)
	g.mu.Unlock()
	return n
}

func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.recs)
}

func (g *Registry) Get(id string) (Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.recs[id]
	return r, ok
}

// ByEndpoint resolves a record by its network identity.
func (g *Registry) ByEndpoint(endpoint string) (Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.byEP[endpoint]
	if !ok {
		return Record{}, false
	}
	r, ok := g.recs[id]
	return r, ok
}

// All returns a snapshot of every record, ordered by creation time.
func (g *Registry) All() []Record {
	g.mu.Lock()
	out := make([]Record, 0, len(g.recs))
	for _, r := range g.recs {
		out = append(out, r)
	}
	g.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Put inserts or replaces a record and persists the snapshot.
func (g *Registry) Put(ctx context.Context, rec Record) {
	g.mu.Lock()
	if old, ok := g.recs[rec.ID]; ok {
		if ep := old.Endpoint(); ep != "" && ep != rec.Endpoint() {
			delete(g.byEP, ep)
		}
	}
	g.recs[rec.ID] = rec
	if ep := rec.Endpoint(); ep != "" {
		g.byEP[ep] = rec.ID
	}
	snap, seq := g.snapshotLocked()
	g.mu.Unlock()
	g.persist(ctx, snap, seq)
}

// Upsert inserts rec, deduping by endpoint inside one critical section: when
// the endpoint is already registered, rec adopts that record's id and
// CreatedAt and replaces it in place, so two racing inserts for the same
// endpoint can never mint two ids. It returns the stored record and whether
// an existing endpoint record was updated.
func (g *Registry) Upsert(ctx context.Context, rec Record) (Record, bool) {
	g.mu.Lock()
	updated := false
	if ep := rec.Endpoint(); ep != "" {
		if id, ok := g.byEP[ep]; ok {
			if prev, ok := g.recs[id]; ok {
				rec.ID = prev.ID
				rec.CreatedAt = prev.CreatedAt
				updated = true
			}
		}
	}
	if old, ok := g.recs[rec.ID]; ok {
		if ep := old.Endpoint(); ep != "" && ep != rec.Endpoint() {
			delete(g.byEP, ep)
		}
	}
	g.recs[rec.ID] = rec
	if ep := rec.Endpoint(); ep != "" {
		g.byEP[ep] = rec.ID
	}
	snap, seq := g.snapshotLocked()
	g.mu.Unlock()
	g.persist(ctx, snap, seq)
	return rec, updated
}

// Delete removes a record and persists. It reports whether the id existed.
func (g *Registry) Delete(ctx context.Context, id string) bool {
	g.mu.Lock()
	r, ok := g.recs[id]
	if ok {
		delete(g.recs, id)
		if ep := r.Endpoint(); ep != "" && g.byEP[ep] == id {
			delete(g.byEP, ep)
		}
	}
	var (
		snap map[string]Record
		seq  uint64
	)
	if ok {
		snap, seq = g.snapshotLocked()
	}
	g.mu.Unlock()
	if ok {
		g.persist(ctx, snap, seq)
	}
	return ok
}

// TouchLastSent records a successful dispatch. Advisory only.
func (g *Registry) TouchLastSent(ctx context.Context, id string, at time.Time) {
	g.mu.Lock()
	r, ok := g.recs[id]
	if ok {
		r.LastSentAt = at
		g.recs[id] = r
	}
	var (
		snap map[string]Record
		seq  uint64
	)
	if ok {
		snap, seq = g.snapshotLocked()
	}
	g.mu.Unlock()
	if ok {
		g.persist(ctx, snap, seq)
	}
}

// snapshotLocked copies the map and stamps it with a fresh sequence number.
func (g *Registry) snapshotLocked() (map[string]Record, uint64) {
	g.seq++
	snap := make(map[string]Record, len(g.recs))
	for id, r := range g.recs {
		snap[id] = r
	}
	return snap, g.seq
}

// persist is best-effort: a write failure keeps the registry authoritative and
// only logs a warning. Saves are serialized, and a snapshot older than one
// already written is dropped so concurrent mutations cannot reorder on disk.
func (g *Registry) persist(ctx context.Context, snap map[string]Record, seq uint64) {
	if g.store == nil || snap == nil {
		return
	}
	g.persistMu.Lock()
	defer g.persistMu.Unlock()
	if seq <= g.savedSeq {
		return
	}
	if err := g.store.Save(ctx, snap); err != nil {
		g.log.Warn("subscription save failed; continuing in-memory", logx.Err(err), logx.Int("records", len(snap)))
		return
	}
	g.savedSeq = seq
}
