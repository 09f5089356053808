package audit

import (
	"context"
	"testing"
)

func TestOpen_RejectsEmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), "")
	if err == nil {
		t.Fatal("expected an error for an empty DSN")
	}
}

func TestStore_PingRejectsUninitialized(t *testing.T) {
	var s Store
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected Ping on a zero-value Store to fail")
	}
}

func TestStore_CloseIsSafeOnZeroValue(t *testing.T) {
	var s Store
	if err := s.Close(); err != nil {
		t.Fatalf("Close on a zero-value Store returned error: %v", err)
	}
}
