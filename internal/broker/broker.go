// Package broker pools InvocationChannels over a single transport
// connection, or a handful of them, handing out warm channels to
// outbound invocations and recycling them once a reply has been read.
//
// # Design rationale
//
// Dialing a fresh TCP (or vsock) connection per invocation would make
// every remote call pay a handshake's worth of latency. Instead the
// broker keeps a small idle pool of already-connected channels; an
// invocation borrows one, uses it for exactly one request/reply pair,
// and returns it via Recycle. A channel that fails mid-invocation is
// discarded rather than recycled, since its framing state is no longer
// trustworthy.
//
// # Concurrency model
//
// idle and totalChannels are guarded by mu; cond (bound to mu) wakes a
// Connect call that is waiting for either an idle channel or room under
// maxChannels. The idle reaper runs on its own ticker goroutine and
// takes the same lock to evict channels that have sat idle past
// idleTTL.
//
// # Invariants
//
//   - totalChannels always equals len(idle) plus the number of channels
//     currently lent out to a caller.
//   - A channel is never in idle while also lent out.
//   - Once closed is set (via Close), Connect returns ErrBrokerClosed and
//     no new channel is ever dialed.
package broker

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/oriys/novarmi/internal/transport"
	"github.com/oriys/novarmi/internal/wire"
)

// ErrBrokerClosed is returned by Connect after Close.
var ErrBrokerClosed = errors.New("broker: closed")

const (
	DefaultIdleTTL         = 60 * time.Second
	DefaultCleanupInterval = 10 * time.Second
)

// Config holds broker pool tuning. Zero values fall back to the
// defaults above; MaxChannels of 0 means unlimited.
type Config struct {
	IdleTTL         time.Duration
	CleanupInterval time.Duration
	MaxChannels     int
}

type idleChannel struct {
	ch         *wire.Channel
	returnedAt time.Time
}

// Broker is the central channel pool for one transport. It is safe for
// concurrent use by multiple goroutines. The zero value is not usable;
// always construct via New.
type Broker struct {
	transport transport.Transport
	codec     wire.Codec

	mu            sync.Mutex
	cond          *sync.Cond
	idle          []*idleChannel
	totalChannels int
	maxChannels   int
	closed        bool

	idleTTL         time.Duration
	cleanupInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	listener net.Listener
	accepted chan *wire.Channel
}

// New creates a Broker over t and starts its idle-channel reaper. The
// caller must call Close to stop the reaper and release pooled
// channels when the broker is no longer needed.
func New(t transport.Transport, codec wire.Codec, cfg Config) *Broker {
	if cfg.IdleTTL == 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Broker{
		transport:       t,
		codec:           codec,
		maxChannels:     cfg.MaxChannels,
		idleTTL:         cfg.IdleTTL,
		cleanupInterval: cfg.CleanupInterval,
		ctx:             ctx,
		cancel:          cancel,
		accepted:        make(chan *wire.Channel, 16),
	}
	b.cond = sync.NewCond(&b.mu)
	go b.cleanupLoop()
	return b
}

// Connect returns a warm channel from the idle pool, or dials a new one
// via the transport if none is idle and maxChannels has not been
// reached. It blocks until a channel is available, ctx is done, or the
// broker is closed.
func (b *Broker) Connect(ctx context.Context) (*wire.Channel, error) {
	b.mu.Lock()
	for {
		if b.closed {
			b.mu.Unlock()
			return nil, ErrBrokerClosed
		}
		if n := len(b.idle); n > 0 {
			ic := b.idle[n-1]
			b.idle = b.idle[:n-1]
			b.mu.Unlock()
			return ic.ch, nil
		}
		if b.maxChannels == 0 || b.totalChannels < b.maxChannels {
			b.totalChannels++
			b.mu.Unlock()
			conn, err := b.transport.Dial(ctx)
			if err != nil {
				b.mu.Lock()
				b.totalChannels--
				b.mu.Unlock()
				return nil, err
			}
			return wire.NewChannel(conn, b.codec), nil
		}
		waitDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				b.mu.Lock()
				b.cond.Broadcast()
				b.mu.Unlock()
			case <-waitDone:
			}
		}()
		b.cond.Wait()
		close(waitDone)
		if err := ctx.Err(); err != nil {
			b.mu.Unlock()
			return nil, err
		}
	}
}

// Recycle resets ch and returns it to the idle pool, unless the broker
// is closed or err indicates the channel's framing state is no longer
// trustworthy, in which case it is closed and its slot released.
func (b *Broker) Recycle(ch *wire.Channel, err error) {
	if err != nil {
		b.discard(ch)
		return
	}
	ch.Reset()
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		ch.Close()
		b.mu.Lock()
		b.totalChannels--
		b.mu.Unlock()
		return
	}
	b.idle = append(b.idle, &idleChannel{ch: ch, returnedAt: time.Now()})
	b.cond.Signal()
	b.mu.Unlock()
}

func (b *Broker) discard(ch *wire.Channel) {
	ch.Close()
	b.mu.Lock()
	b.totalChannels--
	b.cond.Signal()
	b.mu.Unlock()
}

// Addr returns the bound listener's address, or nil if Listen has not
// been called (or has not yet completed).
func (b *Broker) Addr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return nil
	}
	return b.listener.Addr()
}

// Stats reports a point-in-time snapshot of pool occupancy.
type Stats struct {
	Idle  int
	Total int
}

func (b *Broker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Idle: len(b.idle), Total: b.totalChannels}
}

// Close stops the idle reaper, the accept loop if running, and closes
// every idle channel. Channels currently lent out are closed by their
// holder via Recycle's closed-broker path.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	idle := b.idle
	b.idle = nil
	listener := b.listener
	b.cond.Broadcast()
	b.mu.Unlock()

	b.cancel()
	for _, ic := range idle {
		ic.ch.Close()
	}
	if listener != nil {
		return listener.Close()
	}
	return nil
}
