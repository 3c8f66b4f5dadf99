package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stock-streamer/src/logger"
	"stock-streamer/src/models"
	"stock-streamer/src/snapshot"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeFetcher struct {
	calls atomic.Int32
	fn    func(n int32) (*models.MSnapshot, error)
}

func (f *fakeFetcher) FetchAll() (*models.MSnapshot, error) {
	return f.fn(f.calls.Add(1))
}

type captureBroadcaster struct {
	mu        sync.Mutex
	published [][]models.MStockRecord
}

func (b *captureBroadcaster) PublishUpdates(updates []models.MStockRecord) {
	b.mu.Lock()
	b.published = append(b.published, updates)
	b.mu.Unlock()
}

func (b *captureBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

type fakeCache struct {
	saves atomic.Int32
}

func (c *fakeCache) Initialize() error { return nil }
func (c *fakeCache) SaveSnapshot(*models.MSnapshot) error {
	c.saves.Add(1)
	return nil
}
func (c *fakeCache) LoadSnapshot() (*models.MSnapshot, error) { return nil, nil }
func (c *fakeCache) Close() error                             { return nil }

type closedMarket struct{}

func (closedMarket) MarketOpen() bool { return false }

// -----------------------------------------------------------------------------

func testSnapshot(codes ...string) *models.MSnapshot {
	records := make([]models.MStockRecord, 0, len(codes))
	for i, code := range codes {
		r := models.MStockRecord{
			TradingCode:   code,
			LastPrice:     float64(10 + i),
			Change:        1,
			ChangePercent: 0.5,
		}
		r.DeriveIndicator()
		records = append(records, r)
	}
	return models.NewSnapshot(records, time.Now())
}

func newTestScheduler(cfg models.MPollConfig, fetcher Fetcher, hub Broadcaster) *PollScheduler {
	return New(cfg, fetcher, snapshot.NewStore(), hub, logger.NewLogger("PollScheduler-test"))
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestScheduler_ColdStartFiresOnce(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(int32) (*models.MSnapshot, error) {
		return testSnapshot("AAA", "BBB"), nil
	}}
	hub := &captureBroadcaster{}

	s := newTestScheduler(models.MPollConfig{
		IntervalSeconds:  3600, // keep the ticker out of the way
		ColdStartDelayMs: 10,
	}, fetcher, hub)

	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, func() bool { return fetcher.calls.Load() == 1 }, "cold-start cycle never ran")

	time.Sleep(50 * time.Millisecond)
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (cold start fires once)", got)
	}
	if hub.count() != 1 {
		t.Errorf("broadcasts = %d, want 1 (first diff is the full set)", hub.count())
	}
}

func TestScheduler_BusyFlagSkipsOverlappingCycles(t *testing.T) {
	release := make(chan struct{})
	fetcher := &fakeFetcher{fn: func(int32) (*models.MSnapshot, error) {
		<-release
		return testSnapshot("AAA"), nil
	}}
	hub := &captureBroadcaster{}

	s := newTestScheduler(models.MPollConfig{IntervalSeconds: 3600, ColdStartDelayMs: 60000}, fetcher, hub)
	s.Start(context.Background())

	s.TriggerNow()
	waitFor(t, func() bool { return fetcher.calls.Load() == 1 }, "first cycle never started")

	// These fire while the first cycle is blocked inside the fetcher.
	s.TriggerNow()
	s.TriggerNow()
	time.Sleep(30 * time.Millisecond)
	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("fetch calls = %d, want 1 (overlapping cycles skipped, not queued)", got)
	}

	close(release)
	waitFor(t, func() bool { return hub.count() == 1 && !s.busy.Load() }, "first cycle never finished")

	// The flag clears once the cycle ends; the next trigger proceeds.
	s.TriggerNow()
	waitFor(t, func() bool { return fetcher.calls.Load() == 2 }, "post-cycle trigger never ran")

	s.Stop()
}

func TestScheduler_FailedCycleBroadcastsNothing(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(n int32) (*models.MSnapshot, error) {
		if n == 1 {
			return nil, errors.New("upstream unavailable")
		}
		return testSnapshot("AAA"), nil
	}}
	hub := &captureBroadcaster{}

	s := newTestScheduler(models.MPollConfig{IntervalSeconds: 3600, ColdStartDelayMs: 60000}, fetcher, hub)
	s.Start(context.Background())
	defer s.Stop()

	s.TriggerNow()
	waitFor(t, func() bool { return fetcher.calls.Load() == 1 && !s.busy.Load() }, "failing cycle never ran")

	time.Sleep(20 * time.Millisecond)
	if hub.count() != 0 {
		t.Fatalf("broadcasts = %d, want 0 after failed cycle", hub.count())
	}
	if s.Store.Current() != nil {
		t.Fatal("failed cycle must not install a snapshot")
	}

	// The scheduler keeps going; the next cycle succeeds normally.
	s.TriggerNow()
	waitFor(t, func() bool { return hub.count() == 1 }, "recovery cycle never broadcast")
}

func TestScheduler_EmptyDiffNotBroadcast(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(int32) (*models.MSnapshot, error) {
		return testSnapshot("AAA"), nil
	}}
	hub := &captureBroadcaster{}
	cache := &fakeCache{}

	s := newTestScheduler(models.MPollConfig{IntervalSeconds: 3600, ColdStartDelayMs: 60000}, fetcher, hub)
	s.Cache = cache
	s.Start(context.Background())
	defer s.Stop()

	s.TriggerNow()
	waitFor(t, func() bool { return hub.count() == 1 && !s.busy.Load() }, "first cycle never broadcast")

	// Identical data on the second cycle produces no broadcast, but the
	// snapshot is still persisted.
	s.TriggerNow()
	waitFor(t, func() bool { return fetcher.calls.Load() == 2 && !s.busy.Load() }, "second cycle never ran")

	if hub.count() != 1 {
		t.Errorf("broadcasts = %d, want 1 (no-change cycle is silent)", hub.count())
	}
	if got := cache.saves.Load(); got != 2 {
		t.Errorf("cache saves = %d, want 2 (every successful cycle persists)", got)
	}
}

func TestScheduler_MarketGateSuppressesTicks(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(int32) (*models.MSnapshot, error) {
		return testSnapshot("AAA"), nil
	}}
	hub := &captureBroadcaster{}

	s := newTestScheduler(models.MPollConfig{
		IntervalSeconds:  1,
		ColdStartDelayMs: 60000,
		MarketHoursOnly:  true,
	}, fetcher, hub)
	s.Market = closedMarket{}
	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(1200 * time.Millisecond)
	if got := fetcher.calls.Load(); got != 0 {
		t.Errorf("fetch calls = %d, want 0 while the market is closed", got)
	}

	// Manual refresh bypasses the gate.
	s.TriggerNow()
	waitFor(t, func() bool { return fetcher.calls.Load() == 1 }, "manual trigger never ran")
}
