package transport

import (
	"context"
	"net"
	"time"
)

// TCP dials and listens on a plain TCP address. DialTimeout bounds Dial;
// zero means net.Dialer's default (no timeout beyond ctx).
type TCP struct {
	Addr        string
	DialTimeout time.Duration

	// Tune, when set, is applied to every dialed and accepted
	// connection before it is handed to the broker, via tcp_unix.go's
	// setsockopt-based tuning. Nil disables tuning.
	Tune func(*net.TCPConn) error
}

// NewTCP returns a Transport bound to addr with no socket tuning.
func NewTCP(addr string) *TCP {
	return &TCP{Addr: addr}
}

func (t *TCP) Name() string { return "tcp" }

func (t *TCP) Dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: t.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.Addr)
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

func (t *TCP) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", t.Addr)
	if err != nil {
		return nil, err
	}
	if t.Tune == nil {
		return ln, nil
	}
	return &tuningListener{Listener: ln, tune: t.Tune}, nil
}

// tuningListener applies Tune to every accepted connection before
// returning it, mirroring what Dial does on the client side.
type tuningListener struct {
	net.Listener
	tune func(*net.TCPConn) error
}

func (l *tuningListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := l.tune(tc); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}
