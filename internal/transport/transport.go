// Package transport supplies the concrete net.Conn/net.Listener pairs a
// Broker multiplexes invocation channels over: TCP, AF_VSOCK, and the
// Unconnected placeholder whose every operation fails.
package transport

import (
	"context"
	"net"
)

// Transport dials and listens for the raw connections a broker pools
// invocation channels over. Implementations are safe for concurrent use.
type Transport interface {
	// Dial opens a single new connection to the transport's configured
	// peer, honoring ctx's deadline/cancellation.
	Dial(ctx context.Context) (net.Conn, error)
	// Listen starts accepting inbound connections. The returned
	// net.Listener's Accept method yields one net.Conn per call.
	Listen() (net.Listener, error)
	// Name identifies the transport kind for logging and metrics
	// labels ("tcp", "vsock", "unconnected").
	Name() string
}
