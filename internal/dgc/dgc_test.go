package dgc

import (
	"context"
	"errors"
	"testing"

	"github.com/oriys/novarmi/internal/registry"
)

type fakeExchanger struct {
	peerLive []uint64
	err      error
	calls    int
}

func (f *fakeExchanger) Exchange(_ context.Context, _ []uint64) ([]uint64, error) {
	f.calls++
	return f.peerLive, f.err
}

func TestGC_RunOnceReclaimsUnreportedExports(t *testing.T) {
	reg := registry.New()
	reg.Export(1, "a", "string")
	reg.Export(2, "b", "string")
	reg.Export(3, "c", "string")

	ex := &fakeExchanger{peerLive: []uint64{2}}
	g := New(reg, ex, 0)

	var reclaimed []uint64
	g.OnReclaim = func(id uint64) { reclaimed = append(reclaimed, id) }

	got, err := g.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("reclaimed %v, want 2 identifiers", got)
	}
	if len(reclaimed) != 2 {
		t.Fatalf("OnReclaim fired %d times, want 2", len(reclaimed))
	}
	if _, ok := reg.Lookup(2); !ok {
		t.Fatal("export 2 should survive: the peer still reports it live")
	}
	if _, ok := reg.Lookup(1); ok {
		t.Fatal("export 1 should have been reclaimed")
	}
	if _, ok := reg.Lookup(3); ok {
		t.Fatal("export 3 should have been reclaimed")
	}
}

func TestGC_RunOnceSurfacesExchangeError(t *testing.T) {
	reg := registry.New()
	reg.Export(1, "a", "string")

	wantErr := errors.New("peer unreachable")
	ex := &fakeExchanger{err: wantErr}
	g := New(reg, ex, 0)

	_, err := g.RunOnce(context.Background())
	if err != wantErr {
		t.Fatalf("RunOnce error = %v, want %v", err, wantErr)
	}
	if _, ok := reg.Lookup(1); !ok {
		t.Fatal("export 1 should survive a failed exchange round")
	}
}

func TestGC_CloseStopsLoop(t *testing.T) {
	reg := registry.New()
	ex := &fakeExchanger{}
	g := New(reg, ex, 0)
	g.Run()
	g.Close()
	// Close is idempotent-by-contract via context cancellation; calling
	// it twice must not panic.
	g.Close()
}
