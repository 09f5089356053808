package dgc

import (
	"context"

	"github.com/oriys/novarmi/internal/broker"
	"github.com/oriys/novarmi/internal/wire"
)

// WireExchanger implements Exchanger over an ordinary pooled
// InvocationChannel borrowed from a Broker: a DGC round looks just
// like a very small invocation that writes a var-uint count followed
// by that many identifiers, then reads the peer's reply in the same
// shape.
type WireExchanger struct {
	broker *broker.Broker
}

// NewWireExchanger returns an Exchanger that borrows channels from b.
func NewWireExchanger(b *broker.Broker) *WireExchanger {
	return &WireExchanger{broker: b}
}

func (e *WireExchanger) Exchange(ctx context.Context, localImported []uint64) ([]uint64, error) {
	ch, err := e.broker.Connect(ctx)
	if err != nil {
		return nil, err
	}

	if err := writeIDSet(ch, localImported); err != nil {
		e.broker.Recycle(ch, err)
		return nil, err
	}
	peerLive, err := readIDSet(ch)
	if err != nil {
		e.broker.Recycle(ch, err)
		return nil, err
	}
	e.broker.Recycle(ch, nil)
	return peerLive, nil
}

func writeIDSet(ch *wire.Channel, ids []uint64) error {
	w := ch.Writer()
	if err := w.WriteVarUint(uint32(len(ids))); err != nil {
		return err
	}
	for _, id := range ids {
		if err := w.WriteLong(int64(id)); err != nil {
			return err
		}
	}
	return w.Flush()
}

func readIDSet(ch *wire.Channel) ([]uint64, error) {
	r := ch.Reader()
	n, err := r.ReadVarUint()
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := r.ReadLong()
		if err != nil {
			return nil, err
		}
		ids = append(ids, uint64(v))
	}
	return ids, nil
}
