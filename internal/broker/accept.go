package broker

import (
	"errors"
	"net"

	"github.com/oriys/novarmi/internal/wire"
)

// Listen starts accepting inbound connections on t's listener,
// wrapping each as an InvocationChannel and delivering it to Accepted.
// It returns once the listener is bound; accepting runs on a
// background goroutine until Close.
func (b *Broker) Listen() error {
	ln, err := b.transport.Listen()
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.listener = ln
	b.mu.Unlock()

	go b.acceptLoop(ln)
	return nil
}

// Accepted delivers every inbound InvocationChannel. It is closed when
// the broker is closed and the accept loop has drained.
func (b *Broker) Accepted() <-chan *wire.Channel { return b.accepted }

func (b *Broker) acceptLoop(ln net.Listener) {
	defer close(b.accepted)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-b.ctx.Done():
				return
			default:
				continue
			}
		}
		b.mu.Lock()
		b.totalChannels++
		b.mu.Unlock()
		ch := wire.NewChannel(conn, b.codec)
		select {
		case b.accepted <- ch:
		case <-b.ctx.Done():
			ch.Close()
			return
		}
	}
}
