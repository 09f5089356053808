package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/mdlayher/vsock"
)

// VSock connects a guest and host across the AF_VSOCK address family —
// the same channel a Firecracker or QEMU guest uses to reach its host
// without a network device. ContextID/Port identify the peer to Dial;
// ListenPort is the port this side accepts on.
type VSock struct {
	ContextID  uint32
	Port       uint32
	ListenPort uint32
}

// NewVSockClient returns a Transport that dials (contextID, port).
func NewVSockClient(contextID, port uint32) *VSock {
	return &VSock{ContextID: contextID, Port: port}
}

// NewVSockServer returns a Transport that listens on listenPort,
// accepting connections from any context ID.
func NewVSockServer(listenPort uint32) *VSock {
	return &VSock{ListenPort: listenPort}
}

func (v *VSock) Name() string { return "vsock" }

func (v *VSock) Dial(ctx context.Context) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := vsock.Dial(v.ContextID, v.Port, nil)
		ch <- result{conn, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("vsock: dial cid=%d port=%d: %w", v.ContextID, v.Port, r.err)
		}
		return r.conn, nil
	}
}

func (v *VSock) Listen() (net.Listener, error) {
	ln, err := vsock.Listen(v.ListenPort, nil)
	if err != nil {
		return nil, fmt.Errorf("vsock: listen port=%d: %w", v.ListenPort, err)
	}
	return ln, nil
}
