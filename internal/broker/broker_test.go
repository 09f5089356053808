package broker

import (
	"context"
	"encoding/gob"
	"io"
	"testing"
	"time"

	"github.com/oriys/novarmi/internal/transport"
	"github.com/oriys/novarmi/internal/wire"
)

type nopCodec struct{}

func (nopCodec) NewScope() wire.Scope { return nil }
func (nopCodec) EncodeShared(_ wire.Scope, v interface{}, w io.Writer) error {
	return gob.NewEncoder(w).Encode(&v)
}
func (nopCodec) DecodeShared(_ wire.Scope, r io.Reader) (interface{}, error) {
	var v interface{}
	err := gob.NewDecoder(r).Decode(&v)
	return v, err
}
func (c nopCodec) EncodeUnshared(v interface{}, w io.Writer) error { return c.EncodeShared(nil, v, w) }
func (c nopCodec) DecodeUnshared(r io.Reader) (interface{}, error) { return c.DecodeShared(nil, r) }

func TestBroker_ConnectServeRecycle(t *testing.T) {
	tr := transport.NewTCP("127.0.0.1:0")
	b := New(tr, nopCodec{}, Config{})
	defer b.Close()

	if err := b.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	client := transport.NewTCP(b.Addr().String())

	go func() {
		ch := <-b.Accepted()
		ch.Writer().WriteInt(7)
		ch.Writer().Flush()
		b.Recycle(ch, nil)
	}()

	outbound := New(client, nopCodec{}, Config{})
	defer outbound.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch, err := outbound.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	n, err := ch.Reader().ReadInt()
	if err != nil {
		t.Fatalf("ReadInt failed: %v", err)
	}
	if n != 7 {
		t.Fatalf("ReadInt = %d, want 7", n)
	}
	outbound.Recycle(ch, nil)

	if stats := outbound.Stats(); stats.Idle != 1 || stats.Total != 1 {
		t.Fatalf("Stats = %+v, want Idle=1 Total=1", stats)
	}
}

func TestBroker_ConnectAfterCloseFails(t *testing.T) {
	tr := transport.NewTCP("127.0.0.1:0")
	b := New(tr, nopCodec{}, Config{})
	b.Close()

	_, err := b.Connect(context.Background())
	if err != ErrBrokerClosed {
		t.Fatalf("Connect after Close = %v, want ErrBrokerClosed", err)
	}
}

func TestBroker_RecycleReusesIdleChannel(t *testing.T) {
	tr := transport.NewTCP("127.0.0.1:0")
	b := New(tr, nopCodec{}, Config{})
	defer b.Close()
	if err := b.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	go func() {
		for ch := range b.Accepted() {
			b.Recycle(ch, nil)
		}
	}()

	client := New(transport.NewTCP(b.Addr().String()), nopCodec{}, Config{})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch1, err := client.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	client.Recycle(ch1, nil)

	ch2, err := client.Connect(ctx)
	if err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
	if ch2 != ch1 {
		t.Fatal("expected the second Connect to reuse the recycled channel")
	}
}
