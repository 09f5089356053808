package rmi

import (
	"bytes"
	"encoding/gob"
	"testing"
)

type widget struct {
	Name  string
	Count int
}

func init() {
	gob.Register(&widget{})
}

func TestGobCodec_EncodeUnshared_NilRoundTrip(t *testing.T) {
	codec := NewGobCodec()
	var buf bytes.Buffer
	if err := codec.EncodeUnshared(nil, &buf); err != nil {
		t.Fatalf("EncodeUnshared(nil) failed: %v", err)
	}
	got, err := codec.DecodeUnshared(&buf)
	if err != nil {
		t.Fatalf("DecodeUnshared failed: %v", err)
	}
	if got != nil {
		t.Fatalf("got %#v, want nil", got)
	}
}

func TestGobCodec_EncodeUnshared_ValueRoundTrip(t *testing.T) {
	codec := NewGobCodec()
	var buf bytes.Buffer
	want := &widget{Name: "gizmo", Count: 3}
	if err := codec.EncodeUnshared(want, &buf); err != nil {
		t.Fatalf("EncodeUnshared failed: %v", err)
	}
	got, err := codec.DecodeUnshared(&buf)
	if err != nil {
		t.Fatalf("DecodeUnshared failed: %v", err)
	}
	w, ok := got.(*widget)
	if !ok {
		t.Fatalf("got %T, want *widget", got)
	}
	if *w != *want {
		t.Fatalf("got %+v, want %+v", *w, *want)
	}
}

func TestGobCodec_EncodeShared_SamePointerBackReferences(t *testing.T) {
	codec := NewGobCodec()
	scope := codec.NewScope()

	shared := &widget{Name: "shared", Count: 1}
	var buf bytes.Buffer
	if err := codec.EncodeShared(scope, shared, &buf); err != nil {
		t.Fatalf("first EncodeShared failed: %v", err)
	}
	if err := codec.EncodeShared(scope, shared, &buf); err != nil {
		t.Fatalf("second EncodeShared failed: %v", err)
	}

	decodeScope := codec.NewScope()
	first, err := codec.DecodeShared(decodeScope, &buf)
	if err != nil {
		t.Fatalf("first DecodeShared failed: %v", err)
	}
	second, err := codec.DecodeShared(decodeScope, &buf)
	if err != nil {
		t.Fatalf("second DecodeShared failed: %v", err)
	}
	if first != second {
		t.Fatalf("expected the back-referenced decode to return the identical value, got %#v and %#v", first, second)
	}
}

func TestGobCodec_EncodeShared_DifferentScopesDoNotShareIdentity(t *testing.T) {
	codec := NewGobCodec()
	v := &widget{Name: "isolated", Count: 9}

	var buf1, buf2 bytes.Buffer
	if err := codec.EncodeShared(codec.NewScope(), v, &buf1); err != nil {
		t.Fatal(err)
	}
	if err := codec.EncodeShared(codec.NewScope(), v, &buf2); err != nil {
		t.Fatal(err)
	}

	got1, err := codec.DecodeShared(codec.NewScope(), &buf1)
	if err != nil {
		t.Fatal(err)
	}
	got2, err := codec.DecodeShared(codec.NewScope(), &buf2)
	if err != nil {
		t.Fatal(err)
	}
	w1, w2 := got1.(*widget), got2.(*widget)
	if *w1 != *v || *w2 != *v {
		t.Fatalf("round-tripped values diverged: %+v, %+v, want %+v", w1, w2, v)
	}
}
