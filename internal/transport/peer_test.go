package transport

import (
	"context"
	"testing"
	"time"
)

func TestPeerTCP_DialListenRoundTrip(t *testing.T) {
	server := NewPeerTCP("127.0.0.1:0", "")
	ln, err := server.Listen()
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer ln.Close()

	accepted := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			accepted <- err
			return
		}
		defer conn.Close()
		buf := make([]byte, 4)
		if _, err := conn.Read(buf); err != nil {
			accepted <- err
			return
		}
		if string(buf) != "ping" {
			accepted <- errTestPayload
			return
		}
		accepted <- nil
	}()

	client := NewPeerTCP("", ln.Addr().String())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := client.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if err := <-accepted; err != nil {
		t.Fatalf("server side failed: %v", err)
	}
}

func TestPeerTCP_ListenAndDialAreIndependentAddresses(t *testing.T) {
	pt := NewPeerTCP("127.0.0.1:0", "127.0.0.1:9")
	ln, err := pt.Listen()
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer ln.Close()
	if ln.Addr().String() == pt.DialAddr {
		t.Fatal("Listen bound the configured DialAddr instead of ListenAddr")
	}
}
