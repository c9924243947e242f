package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/TERAN-XMD-maker/Helalink2025/internal/dispatch"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/subscription"
	logx "github.com/TERAN-XMD-maker/Helalink2025/pkg/logx"
)

type fakeStore struct {
	recs    map[string]subscription.Record
	loadErr error
	saves   int
}

func (f *fakeStore) Load(ctx context.Context) (map[string]subscription.Record, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make(map[string]subscription.Record, len(f.recs))
	for id, r := range f.recs {
		out[id] = r
	}
	return out, nil
}

func (f *fakeStore) Save(ctx context.Context, recs map[string]subscription.Record) error {
	f.saves++
	f.recs = recs
	return nil
}

func newTestCore(t *testing.T, store subscription.Store, defaults Defaults) (*Supervisor, *Scheduler, *subscription.Registry) {
	t.Helper()
	reg := subscription.NewRegistry(store, logx.Nop())
	s := NewScheduler(Planner{}, reg, &fakeDispatcher{}, Messages{}, logx.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() { s.Stop(context.Background()) })
	return NewSupervisor(reg, s, defaults, logx.Nop(), nil), s, reg
}

func sub(endpoint string) webpush.Subscription {
	return webpush.Subscription{
		Endpoint: endpoint,
		Keys:     webpush.Keys{P256dh: "p", Auth: "a"},
	}
}

func TestBootstrapRearmsPersistedRecords(t *testing.T) {
	r1 := testRecord("2999-01-02 15:04", []string{"09:00"}, "")
	r2 := testRecord("", []string{"07:00", "19:00", "bogus"}, "")
	store := &fakeStore{recs: map[string]subscription.Record{r1.ID: r1, r2.ID: r2}}

	core, s, reg := newTestCore(t, store, Defaults{})
	if n := core.Bootstrap(context.Background()); n != 2 {
		t.Fatalf("Bootstrap scheduled %d, want 2", n)
	}
	if reg.Len() != 2 {
		t.Fatalf("registry has %d records, want 2", reg.Len())
	}

	st1, _ := s.Armed(r1.ID)
	if !st1.Launch || st1.Daily != 1 {
		t.Fatalf("r1 armed = %+v", st1)
	}
	// The malformed daily entry is skipped; the rest of the plan survives.
	st2, _ := s.Armed(r2.ID)
	if st2.Launch || st2.Daily != 2 {
		t.Fatalf("r2 armed = %+v, want 2 daily and no launch", st2)
	}
}

func TestBootstrapSurvivesLoadFailure(t *testing.T) {
	core, _, reg := newTestCore(t, &fakeStore{loadErr: errors.New("disk on fire")}, Defaults{})
	if n := core.Bootstrap(context.Background()); n != 0 {
		t.Fatalf("Bootstrap = %d, want 0", n)
	}
	if reg.Len() != 0 {
		t.Fatalf("registry not empty after failed load")
	}

	// The process stays usable: new subscriptions still work.
	if _, err := core.Add(context.Background(), sub("https://push.example.org/n1"), "", []string{"09:00"}, ""); err != nil {
		t.Fatalf("Add after failed load: %v", err)
	}
}

func TestAddAppliesDefaults(t *testing.T) {
	core, s, _ := newTestCore(t, nil, Defaults{
		LaunchTime: "2999-01-02 15:04",
		DailyTimes: []string{"08:00", "20:00"},
	})
	rec, err := core.Add(context.Background(), sub("https://push.example.org/n1"), "", nil, "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	st, _ := s.Armed(rec.ID)
	if !st.Launch || st.Daily != 2 {
		t.Fatalf("armed = %+v, want defaults applied", st)
	}
}

func TestAddDedupesByEndpoint(t *testing.T) {
	core, s, reg := newTestCore(t, nil, Defaults{})

	first, err := core.Add(context.Background(), sub("https://push.example.org/same"), "", []string{"09:00"}, "")
	if err != nil {
		t.Fatalf("first Add: %v", err)
	}
	second, err := core.Add(context.Background(), sub("https://push.example.org/same"), "", []string{"10:00", "22:00"}, "")
	if err != nil {
		t.Fatalf("second Add: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("re-subscribe minted a new id: %s vs %s", first.ID, second.ID)
	}
	if reg.Len() != 1 {
		t.Fatalf("registry has %d records, want 1", reg.Len())
	}
	st, _ := s.Armed(first.ID)
	if st.Daily != 2 {
		t.Fatalf("armed = %+v, want the updated schedule (2 daily)", st)
	}
	if len(s.ArmedAll()) != 1 {
		t.Fatal("duplicate schedules armed for one endpoint")
	}
}

func TestConcurrentAddSameEndpoint(t *testing.T) {
	core, s, reg := newTestCore(t, nil, Defaults{DailyTimes: []string{"09:00"}})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := core.Add(context.Background(), sub("https://push.example.org/shared"), "", nil, ""); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	// Racing subscribes for one physical endpoint must collapse to one record
	// and one armed schedule.
	if reg.Len() != 1 {
		t.Fatalf("registry has %d records, want 1", reg.Len())
	}
	if len(s.ArmedAll()) != 1 {
		t.Fatalf("%d schedules armed, want 1", len(s.ArmedAll()))
	}
}

func TestApplySwapsDefaults(t *testing.T) {
	core, s, _ := newTestCore(t, nil, Defaults{DailyTimes: []string{"08:00"}})
	core.Apply(Defaults{DailyTimes: []string{"07:00", "12:00", "21:00"}})

	rec, err := core.Add(context.Background(), sub("https://push.example.org/late"), "", nil, "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	st, _ := s.Armed(rec.ID)
	if st.Daily != 3 {
		t.Fatalf("armed = %+v, want the swapped defaults (3 daily)", st)
	}
}

func TestAddRejectsMissingKeys(t *testing.T) {
	core, _, _ := newTestCore(t, nil, Defaults{})
	_, err := core.Add(context.Background(), webpush.Subscription{Endpoint: "https://push.example.org/x"}, "", nil, "")
	if err == nil {
		t.Fatal("expected validation error for missing keys")
	}
}

func TestRemoveByIDUnknownIsNoop(t *testing.T) {
	core, _, _ := newTestCore(t, nil, Defaults{})
	if core.RemoveByID(context.Background(), "ghost") {
		t.Fatal("removing an unknown id must report false, not fail")
	}
}

func TestRemoveByEndpoint(t *testing.T) {
	core, s, reg := newTestCore(t, nil, Defaults{})
	rec, err := core.Add(context.Background(), sub("https://push.example.org/gone"), "", []string{"09:00"}, "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !core.RemoveByEndpoint(context.Background(), "https://push.example.org/gone") {
		t.Fatal("expected removal")
	}
	if reg.Len() != 0 {
		t.Fatal("record still in registry")
	}
	if _, ok := s.Armed(rec.ID); ok {
		t.Fatal("triggers still armed after removal")
	}
}

func TestSendAllCountsEnqueued(t *testing.T) {
	core, _, _ := newTestCore(t, nil, Defaults{})
	for _, ep := range []string{"https://p/1", "https://p/2", "https://p/3"} {
		if _, err := core.Add(context.Background(), sub(ep), "", nil, ""); err != nil {
			t.Fatalf("Add %s: %v", ep, err)
		}
	}
	if n := core.SendAll(context.Background(), dispatch.Payload{Title: "hey"}); n != 3 {
		t.Fatalf("SendAll = %d, want 3", n)
	}
}

func TestPersistenceOnMutation(t *testing.T) {
	store := &fakeStore{}
	core, _, _ := newTestCore(t, store, Defaults{})

	rec, err := core.Add(context.Background(), sub("https://push.example.org/p"), "", nil, "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if store.saves == 0 {
		t.Fatal("Add did not persist")
	}
	if _, ok := store.recs[rec.ID]; !ok {
		t.Fatal("persisted snapshot missing the new record")
	}

	before := store.saves
	core.RemoveByID(context.Background(), rec.ID)
	if store.saves == before {
		t.Fatal("Remove did not persist")
	}
	if len(store.recs) != 0 {
		t.Fatal("persisted snapshot still holds the removed record")
	}
}
