package live

import "errors"

// Delivery failure kinds.
var (
	// ErrSlowConsumer is returned by Conn.Send when the outbound buffer is full.
	ErrSlowConsumer = errors.New("slow consumer")
	// ErrConnClosed is returned by Conn.Send after Close.
	ErrConnClosed = errors.New("connection closed")
	// ErrBrokerClosed is returned for new connections after Close.
	ErrBrokerClosed = errors.New("broker closed")
)
