package interfaces

// -----------------------------------------------------------------------------
// ISubscriberConn is the transport handle held by the broadcast hub for
// one subscriber. The concrete transport (WebSocket pumps) lives in the
// server package; the hub only needs send/close semantics.
// -----------------------------------------------------------------------------

type ISubscriberConn interface {

	// Send enqueues a message for delivery. It must not block: a full
	// outbound buffer or a closed connection returns an error, which the
	// hub treats as a send failure and removes the subscriber.
	Send(message interface{}) error

	// -----------------------------------------------------------------------------

	// Close tears the connection down. Repeated calls are a no-op.
	Close() error
}
