package wire

import (
	"encoding/gob"
	"io"
	"net"
	"testing"
	"time"
)

// fakeScope and fakeCodec are a minimal gob-based Codec used only to
// exercise Channel/Input/Output plumbing; the root package's real
// codec is tested in its own package.
type fakeScope struct{ seen map[interface{}]bool }

type fakeCodec struct{}

func (fakeCodec) NewScope() Scope { return &fakeScope{seen: map[interface{}]bool{}} }

func (fakeCodec) EncodeShared(_ Scope, v interface{}, w io.Writer) error {
	return gob.NewEncoder(w).Encode(&v)
}

func (fakeCodec) DecodeShared(_ Scope, r io.Reader) (interface{}, error) {
	var v interface{}
	if err := gob.NewDecoder(r).Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func (c fakeCodec) EncodeUnshared(v interface{}, w io.Writer) error {
	return c.EncodeShared(nil, v, w)
}

func (c fakeCodec) DecodeUnshared(r io.Reader) (interface{}, error) {
	return c.DecodeShared(nil, r)
}

func TestChannel_PrimitiveRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sch := NewChannel(server, fakeCodec{})
	cch := NewChannel(client, fakeCodec{})

	done := make(chan error, 1)
	go func() {
		w := sch.Writer()
		if err := w.WriteInt(42); err != nil {
			done <- err
			return
		}
		if err := w.WriteBoolean(true); err != nil {
			done <- err
			return
		}
		s := "hello"
		if err := w.WriteString(&s); err != nil {
			done <- err
			return
		}
		done <- w.Flush()
	}()

	r := cch.Reader()
	n, err := r.ReadInt()
	if err != nil {
		t.Fatalf("ReadInt failed: %v", err)
	}
	if n != 42 {
		t.Fatalf("ReadInt = %d, want 42", n)
	}
	b, err := r.ReadBoolean()
	if err != nil {
		t.Fatalf("ReadBoolean failed: %v", err)
	}
	if !b {
		t.Fatal("ReadBoolean = false, want true")
	}
	s, err := r.ReadString()
	if err != nil {
		t.Fatalf("ReadString failed: %v", err)
	}
	if s == nil || *s != "hello" {
		t.Fatalf("ReadString = %v, want \"hello\"", s)
	}
	if err := <-done; err != nil {
		t.Fatalf("writer goroutine failed: %v", err)
	}
}

func TestChannel_OkMarkers(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sch := NewChannel(server, fakeCodec{})
	cch := NewChannel(client, fakeCodec{})

	go func() {
		w := sch.Writer()
		w.WriteOk(true)
		w.Flush()
	}()
	result, ok, err := cch.Reader().ReadOk()
	if err != nil {
		t.Fatalf("ReadOk failed: %v", err)
	}
	if !ok || !result {
		t.Fatalf("ReadOk = (%v, %v), want (true, true)", result, ok)
	}

	go func() {
		w := sch.Writer()
		w.WriteNotOk()
		w.Flush()
	}()
	_, ok, err = cch.Reader().ReadOk()
	if err != nil {
		t.Fatalf("ReadOk failed: %v", err)
	}
	if ok {
		t.Fatal("ReadOk reported ok=true after WriteNotOk")
	}
}

func TestChannel_CloseIsIdempotentAndUnblocksReaders(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	sch := NewChannel(server, fakeCodec{})
	if err := sch.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := sch.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	_, err := sch.Reader().ReadByte()
	if err == nil {
		t.Fatal("expected an error reading from a closed channel")
	}
}

func TestChannel_ReadTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sch := NewChannel(server, fakeCodec{})
	sch.SetReadTimeout(10 * time.Millisecond)

	_, err := sch.Reader().ReadByte()
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestChannel_ObjectRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sch := NewChannel(server, fakeCodec{})
	cch := NewChannel(client, fakeCodec{})

	type payload struct{ N int }
	gob.Register(payload{})

	go func() {
		w := sch.Writer()
		scope := w.NewScope()
		w.WriteObject(scope, payload{N: 7})
		w.Flush()
	}()

	r := cch.Reader()
	scope := r.NewScope()
	v, err := r.ReadObject(scope)
	if err != nil {
		t.Fatalf("ReadObject failed: %v", err)
	}
	got, ok := v.(payload)
	if !ok || got.N != 7 {
		t.Fatalf("ReadObject = %#v, want payload{N: 7}", v)
	}
}
