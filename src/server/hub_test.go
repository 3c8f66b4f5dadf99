package server

import (
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

// fakeConn records everything sent to one subscriber.
type fakeConn struct {
	mu       sync.Mutex
	messages []interface{}

	fail   atomic.Bool
	closed atomic.Int32
}

func (c *fakeConn) Send(message interface{}) error {
	if c.fail.Load() {
		return errors.New("send failed")
	}
	c.mu.Lock()
	c.messages = append(c.messages, message)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.closed.Add(1)
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *fakeConn) message(i int) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages[i]
}

// -----------------------------------------------------------------------------

func makeRecord(code string, price, change float64) models.MStockRecord {
	r := models.MStockRecord{TradingCode: code, LastPrice: price, Change: change}
	r.DeriveIndicator()
	return r
}

func newTestHub(t *testing.T) (*Hub, *snapshot.Store) {
	t.Helper()
	store := snapshot.NewStore()
	hub := NewHub(store, logger.NewLogger("Hub-test"))
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub, store
}

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

func TestHub_SubscribeDeliversStatusThenFullThenUpdates(t *testing.T) {
	hub, store := newTestHub(t)
	hub.TokenPresent = func() bool { return true }

	baseline := models.NewSnapshot([]models.MStockRecord{
		makeRecord("AAA", 10, 1),
		makeRecord("BBB", 5, -1),
	}, time.Now())
	store.Replace(baseline)

	conn := &fakeConn{}
	hub.Subscribe(conn)

	waitFor(t, func() bool { return conn.count() == 2 }, "status and full snapshot never arrived")

	status, ok := conn.message(0).(models.MConnectionStatus)
	if !ok {
		t.Fatalf("first message = %T, want MConnectionStatus", conn.message(0))
	}
	if !status.TokenPresent || status.TotalRecords != 2 {
		t.Errorf("connection status = %+v", status)
	}

	full, ok := conn.message(1).(models.MStreamMessage)
	if !ok || full.Type != models.MessageTypeFull {
		t.Fatalf("second message = %#v, want a full snapshot", conn.message(1))
	}
	if len(full.Data) != 2 {
		t.Errorf("full snapshot has %d records, want 2", len(full.Data))
	}

	hub.PublishUpdates([]models.MStockRecord{makeRecord("BBB", 5.5, 0.5)})
	waitFor(t, func() bool { return conn.count() == 3 }, "incremental update never arrived")

	update, ok := conn.message(2).(models.MStreamMessage)
	if !ok || update.Type != models.MessageTypeUpdate {
		t.Fatalf("third message = %#v, want an update", conn.message(2))
	}
	if len(update.Data) != 1 || update.Data[0].TradingCode != "BBB" {
		t.Errorf("update payload = %v", update.Data)
	}
}

func TestHub_EarlySubscriberGetsFullBeforeIncrementals(t *testing.T) {
	hub, store := newTestHub(t)

	var cycleRequests atomic.Int32
	hub.RequestCycle = func() { cycleRequests.Add(1) }

	conn := &fakeConn{}
	hub.Subscribe(conn)

	// Before any snapshot exists: connection status only, plus a poke at
	// the scheduler for an out-of-band cycle.
	waitFor(t, func() bool { return conn.count() == 1 }, "connection status never arrived")
	waitFor(t, func() bool { return cycleRequests.Load() == 1 }, "hub never requested a baseline cycle")

	// The requested cycle lands: snapshot installed, diff broadcast.
	store.Replace(models.NewSnapshot([]models.MStockRecord{
		makeRecord("AAA", 10, 1),
		makeRecord("BBB", 5, -1),
	}, time.Now()))
	hub.PublishUpdates([]models.MStockRecord{makeRecord("AAA", 10, 1), makeRecord("BBB", 5, -1)})

	waitFor(t, func() bool { return conn.count() == 2 }, "baseline delivery never arrived")

	// The first delivery is promoted to a full snapshot, never a diff.
	full, ok := conn.message(1).(models.MStreamMessage)
	if !ok || full.Type != models.MessageTypeFull {
		t.Fatalf("first delivery = %#v, want a full snapshot", conn.message(1))
	}

	// Subsequent cycles flow as ordinary updates.
	hub.PublishUpdates([]models.MStockRecord{makeRecord("AAA", 11, 2)})
	waitFor(t, func() bool { return conn.count() == 3 }, "follow-up update never arrived")
	if msg := conn.message(2).(models.MStreamMessage); msg.Type != models.MessageTypeUpdate {
		t.Errorf("follow-up type = %s, want update", msg.Type)
	}
}

func TestHub_FailingSubscriberIsRemovedOthersUnaffected(t *testing.T) {
	hub, store := newTestHub(t)

	store.Replace(models.NewSnapshot([]models.MStockRecord{makeRecord("AAA", 10, 1)}, time.Now()))

	healthy := &fakeConn{}
	broken := &fakeConn{}
	hub.Subscribe(healthy)
	hub.Subscribe(broken)

	waitFor(t, func() bool { return hub.Connections() == 2 }, "subscribers never registered")
	waitFor(t, func() bool { return healthy.count() == 2 && broken.count() == 2 }, "baselines never arrived")

	broken.fail.Store(true)
	hub.PublishUpdates([]models.MStockRecord{makeRecord("AAA", 11, 2)})

	waitFor(t, func() bool { return hub.Connections() == 1 }, "broken subscriber never removed")
	waitFor(t, func() bool { return healthy.count() == 3 }, "healthy subscriber missed the update")

	if broken.closed.Load() != 1 {
		t.Errorf("broken conn closed %d times, want 1", broken.closed.Load())
	}

	// Later broadcasts keep flowing to the survivor.
	hub.PublishUpdates([]models.MStockRecord{makeRecord("AAA", 12, 3)})
	waitFor(t, func() bool { return healthy.count() == 4 }, "survivor missed the next update")
}

func TestHub_UnsubscribeIdempotent(t *testing.T) {
	hub, store := newTestHub(t)
	store.Replace(models.NewSnapshot([]models.MStockRecord{makeRecord("AAA", 10, 1)}, time.Now()))

	conn := &fakeConn{}
	id := hub.Subscribe(conn)
	waitFor(t, func() bool { return hub.Connections() == 1 }, "subscriber never registered")

	hub.Unsubscribe(id)
	waitFor(t, func() bool { return hub.Connections() == 0 }, "subscriber never removed")

	hub.Unsubscribe(id)
	time.Sleep(20 * time.Millisecond)
	if got := conn.closed.Load(); got != 1 {
		t.Errorf("conn closed %d times, want 1", got)
	}
}

func TestHub_AuthStatusFanOut(t *testing.T) {
	hub, store := newTestHub(t)
	store.Replace(models.NewSnapshot([]models.MStockRecord{makeRecord("AAA", 10, 1)}, time.Now()))

	conn := &fakeConn{}
	hub.Subscribe(conn)
	waitFor(t, func() bool { return conn.count() == 2 }, "baseline never arrived")

	hub.NotifyAuthStatus(models.MAuthStatus{Status: "error", Error: "all credential formats rejected"})
	waitFor(t, func() bool { return conn.count() == 3 }, "auth notice never arrived")

	notice, ok := conn.message(2).(models.MAuthStatus)
	if !ok || notice.Status != "error" || notice.Error == "" {
		t.Errorf("auth notice = %#v", conn.message(2))
	}
}
