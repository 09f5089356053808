package transport

import (
	"context"
	"net"
	"time"
)

// PeerTCP is a TCP transport for a genuinely bidirectional session: it
// listens on ListenAddr for the peer's inbound invocations and dials
// DialAddr for outbound ones. transport.TCP conflates both into one
// Addr, which works for a conventional client-server pair (the client
// never listens) but not for two sessions that each export and import
// objects from the other, which need distinct local and remote
// addresses at the same time.
type PeerTCP struct {
	ListenAddr  string
	DialAddr    string
	DialTimeout time.Duration
	Tune        func(*net.TCPConn) error
}

// NewPeerTCP returns a Transport that listens on listenAddr and dials
// dialAddr.
func NewPeerTCP(listenAddr, dialAddr string) *PeerTCP {
	return &PeerTCP{ListenAddr: listenAddr, DialAddr: dialAddr}
}

func (t *PeerTCP) Name() string { return "tcp" }

func (t *PeerTCP) Dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: t.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.DialAddr)
	if err != nil {
		return nil, err
	}
	if t.Tune != nil {
		if tc, ok := conn.(*net.TCPConn); ok {
			if err := t.Tune(tc); err != nil {
				conn.Close()
				return nil, err
			}
		}
	}
	return conn, nil
}

func (t *PeerTCP) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", t.ListenAddr)
	if err != nil {
		return nil, err
	}
	if t.Tune == nil {
		return ln, nil
	}
	return &tuningListener{Listener: ln, tune: t.Tune}, nil
}
