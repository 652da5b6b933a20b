package domain

// DuplexStream is the transport the feed runs on: a persistent duplex
// connection delivering text frames in order per connection, accepting
// small control messages, and surfacing connection-level failures.
type DuplexStream interface {
	Connect() error
	// Frames delivers inbound text frames. The channel closes on teardown.
	Frames() <-chan []byte
	// Errs surfaces receive failures. The connection may recover after one.
	Errs() <-chan error
	SendJSON(v interface{}) error
	Close()
}
