package server

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"stock-streamer/src/interfaces"
	"stock-streamer/src/logger"
	"stock-streamer/src/models"
	"stock-streamer/src/snapshot"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// Subscriber is one registered connection, owned exclusively by the
// hub's registry. Removal is idempotent and terminal.
type Subscriber struct {
	ID       uuid.UUID
	Conn     interfaces.ISubscriberConn
	JoinedAt time.Time

	// baselineSent flips once the subscriber has received a full
	// snapshot. Until then every broadcast reaching this subscriber is
	// delivered as a full-snapshot message, which keeps the
	// full-before-incremental ordering guarantee even for subscribers
	// that joined before the first baseline existed.
	baselineSent bool
}

// -----------------------------------------------------------------------------

// Hub is the registry of subscriber connections. A single goroutine
// owns the registry and serializes registration, removal and fan-out,
// so full-snapshot-on-subscribe always happens before any incremental
// delivery to the same subscriber.
type Hub struct {
	Logger *logger.Logger
	Store  *snapshot.Store

	// TokenPresent reports auth status for the connection-status payload.
	TokenPresent func() bool

	// RequestCycle is poked when a subscriber connects while no baseline
	// snapshot exists yet, so one becomes available.
	RequestCycle func()

	register    chan *Subscriber
	unregister  chan uuid.UUID
	updates     chan []models.MStockRecord
	authNotices chan models.MAuthStatus
	done        chan struct{}

	subscribers map[uuid.UUID]*Subscriber
	connCount   atomic.Int64
}

// -----------------------------------------------------------------------------

// NewHub creates a hub over the given snapshot store.
func NewHub(store *snapshot.Store, log *logger.Logger) *Hub {
	return &Hub{
		Logger: log,
		Store:  store,
		// Buffered queue so producers never block on a busy hub loop
		register:    make(chan *Subscriber),
		unregister:  make(chan uuid.UUID),
		updates:     make(chan []models.MStockRecord, 256),
		authNotices: make(chan models.MAuthStatus, 16),
		done:        make(chan struct{}),
		subscribers: make(map[uuid.UUID]*Subscriber),
	}
}

// -----------------------------------------------------------------------------

// Run is the main hub loop. Start it in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.register:
			h.handleRegister(sub)

		case id := <-h.unregister:
			h.remove(id)

		case updates := <-h.updates:
			h.fanOut(updates)

		case status := <-h.authNotices:
			h.fanOutAuthStatus(status)

		case <-h.done:
			return
		}
	}
}

// -----------------------------------------------------------------------------

// Stop terminates the hub loop and closes every subscriber connection.
func (h *Hub) Stop() {
	close(h.done)
}

// -----------------------------------------------------------------------------
// Public API (safe from any goroutine)
// -----------------------------------------------------------------------------

// Subscribe registers a connection and returns its subscriber ID.
func (h *Hub) Subscribe(conn interfaces.ISubscriberConn) uuid.UUID {
	sub := &Subscriber{
		ID:       uuid.New(),
		Conn:     conn,
		JoinedAt: time.Now(),
	}
	select {
	case h.register <- sub:
	case <-h.done:
	}
	return sub.ID
}

// -----------------------------------------------------------------------------

// Unsubscribe removes a subscriber. Repeated calls are a no-op.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	select {
	case h.unregister <- id:
	case <-h.done:
	}
}

// -----------------------------------------------------------------------------

// PublishUpdates queues an incremental diff for fan-out. Called by the
// poll scheduler once per cycle with a non-empty changed subset.
func (h *Hub) PublishUpdates(updates []models.MStockRecord) {
	if len(updates) == 0 {
		return
	}
	select {
	case h.updates <- updates:
	case <-h.done:
	}
}

// -----------------------------------------------------------------------------

// NotifyAuthStatus queues an auth-state-changed notification. Wired as
// the session manager's Notify callback.
func (h *Hub) NotifyAuthStatus(status models.MAuthStatus) {
	select {
	case h.authNotices <- status:
	case <-h.done:
	}
}

// -----------------------------------------------------------------------------

// Connections returns the number of registered subscribers.
func (h *Hub) Connections() int {
	return int(h.connCount.Load())
}

// -----------------------------------------------------------------------------
// Loop internals (hub goroutine only)
// -----------------------------------------------------------------------------

func (h *Hub) handleRegister(sub *Subscriber) {
	h.subscribers[sub.ID] = sub
	h.connCount.Store(int64(len(h.subscribers)))

	status := models.MConnectionStatus{
		TotalRecords: h.Store.TotalRecords(),
	}
	if h.TokenPresent != nil {
		status.TokenPresent = h.TokenPresent()
	}
	if t := h.Store.LastFetchTime(); !t.IsZero() {
		status.LastFetchTime = t.Unix()
	}
	if err := sub.Conn.Send(status); err != nil {
		h.remove(sub.ID)
		return
	}

	current := h.Store.Current()
	if current == nil {
		// No baseline yet: ask the scheduler for an out-of-band cycle.
		// The subscriber gets its full snapshot when that cycle lands.
		if h.RequestCycle != nil {
			h.RequestCycle()
		}
		h.Logger.Info("Subscriber %s connected before first snapshot", sub.ID)
		return
	}

	if err := h.sendFull(sub, current); err != nil {
		h.remove(sub.ID)
	}
}

// -----------------------------------------------------------------------------

func (h *Hub) sendFull(sub *Subscriber, snap *models.MSnapshot) error {
	msg := models.MStreamMessage{
		Type:      models.MessageTypeFull,
		Data:      snap.List(),
		Timestamp: snap.CapturedAt.Unix(),
	}
	if err := sub.Conn.Send(msg); err != nil {
		return err
	}
	sub.baselineSent = true
	return nil
}

// -----------------------------------------------------------------------------

// fanOut delivers one cycle's diff to every subscriber. Delivery is
// best-effort: a send failure removes only the offending subscriber.
func (h *Hub) fanOut(updates []models.MStockRecord) {
	msg := models.MStreamMessage{
		Type:      models.MessageTypeUpdate,
		Data:      updates,
		Timestamp: time.Now().Unix(),
	}
	current := h.Store.Current()

	for id, sub := range h.subscribers {
		if !sub.baselineSent {
			// This subscriber never saw a baseline; promote its first
			// delivery to a full snapshot.
			if current == nil || h.sendFull(sub, current) != nil {
				h.remove(id)
			}
			continue
		}
		if err := sub.Conn.Send(msg); err != nil {
			h.Logger.Info("Send failed for subscriber %s, removing: %v", id, err)
			h.remove(id)
		}
	}
}

// -----------------------------------------------------------------------------

func (h *Hub) fanOutAuthStatus(status models.MAuthStatus) {
	for id, sub := range h.subscribers {
		if err := sub.Conn.Send(status); err != nil {
			h.remove(id)
		}
	}
}

// -----------------------------------------------------------------------------

func (h *Hub) remove(id uuid.UUID) {
	sub, ok := h.subscribers[id]
	if !ok {
		return
	}
	delete(h.subscribers, id)
	h.connCount.Store(int64(len(h.subscribers)))
	sub.Conn.Close()
}
