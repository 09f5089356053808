package wire

import "errors"

// Sentinel errors surfaced by this package. The root rmi package maps
// these onto its own exported sentinels (see rmi/errors.go); wire itself
// cannot import rmi without creating an import cycle.
var (
	// ErrStreamCorrupted signals an illegal tag or encoding was read.
	// It terminates only the channel, never the session.
	ErrStreamCorrupted = errors.New("wire: stream corrupted")
	// ErrTimeout signals a read or write deadline was exceeded.
	ErrTimeout = errors.New("wire: timeout")
	// ErrClosed is returned by an in-flight read/write when the channel
	// is closed concurrently, and by any operation after Close.
	ErrClosed = errors.New("wire: channel closed")
)
