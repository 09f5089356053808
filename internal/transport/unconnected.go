package transport

import (
	"context"
	"errors"
	"net"
)

// ErrUnconnected is returned by every Unconnected method.
var ErrUnconnected = errors.New("transport: session has no transport configured")

// Unconnected is a placeholder Transport whose every method fails with
// ErrUnconnected: an explicit value rather than a nil Transport field
// every call site would need to guard against.
type Unconnected struct{}

func (Unconnected) Name() string { return "unconnected" }

func (Unconnected) Dial(context.Context) (net.Conn, error) { return nil, ErrUnconnected }

func (Unconnected) Listen() (net.Listener, error) { return nil, ErrUnconnected }
