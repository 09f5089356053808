// Package dgc implements distributed garbage collection for exported
// remote objects: each side periodically tells its peer which imported
// identifiers it still holds stub references to, and each side
// reclaims any of its own exports the peer's report no longer
// mentions.
//
// # Design rationale
//
// A session cannot tell, from the exporting side alone, when every
// stub pointing at one of its exports has become unreachable on the
// importing side — Go's GC runs independently in each process.
// Instead of trying to observe that directly, the importing side keeps
// an explicit reference count (internal/registry.ImportedRef) and
// reports its live set on a fixed interval; a live set that stops
// mentioning an identifier is the exporting side's signal to reclaim
// it.
//
// # Concurrency model
//
// Run drives one ticker loop per GC; RunOnce is safe to call
// concurrently with the loop (e.g. a manual flush before shutdown)
// since all shared state lives in the registry, which is already safe
// for concurrent use.
package dgc

import (
	"context"
	"time"

	"github.com/oriys/novarmi/internal/registry"
)

const DefaultInterval = 30 * time.Second

// Exchanger carries one round trip of the live-set protocol: send the
// local imported-id set to the peer, and receive the peer's reciprocal
// imported-id set in reply.
type Exchanger interface {
	Exchange(ctx context.Context, localImported []uint64) (peerImported []uint64, err error)
}

// GC runs the periodic live-set exchange for one session's registry.
type GC struct {
	registry  *registry.Registry
	exchanger Exchanger
	interval  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// OnReclaim, if set, is called with every identifier reclaimed by a
	// round, after the registry has already dropped it.
	OnReclaim func(id uint64)
	// OnError, if set, is called when a round's Exchange fails. The
	// round is retried on the next tick; RunOnce is not otherwise
	// affected by a prior round's failure.
	OnError func(err error)
}

// New returns a GC that exchanges live sets via exchanger every
// interval (DefaultInterval if zero).
func New(reg *registry.Registry, exchanger Exchanger, interval time.Duration) *GC {
	if interval == 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GC{
		registry:  reg,
		exchanger: exchanger,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Run starts the periodic exchange loop on a background goroutine. It
// returns immediately.
func (g *GC) Run() {
	go g.loop()
}

func (g *GC) loop() {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			if _, err := g.RunOnce(g.ctx); err != nil && g.OnError != nil {
				g.OnError(err)
			}
		}
	}
}

// RunOnce performs one live-set exchange and reclaims any local export
// the peer's reply no longer lists, returning the reclaimed
// identifiers.
func (g *GC) RunOnce(ctx context.Context) ([]uint64, error) {
	local := g.registry.ImportedIDs()
	peerLive, err := g.exchanger.Exchange(ctx, local)
	if err != nil {
		return nil, err
	}

	live := make(map[uint64]struct{}, len(peerLive))
	for _, id := range peerLive {
		live[id] = struct{}{}
	}

	var reclaimed []uint64
	for _, snap := range g.registry.LiveExportSnapshots() {
		if _, ok := live[snap.ID]; ok {
			continue
		}
		// Guard against a re-export racing this round: if LocalVersion
		// moved on since the snapshot, the object was handed out again
		// and this round's absence from the peer's live set is stale.
		if g.registry.DropExportIfVersion(snap.ID, snap.LocalVersion) {
			reclaimed = append(reclaimed, snap.ID)
			if g.OnReclaim != nil {
				g.OnReclaim(snap.ID)
			}
		}
	}
	return reclaimed, nil
}

// Close stops the periodic loop. It does not close the underlying
// exchanger.
func (g *GC) Close() { g.cancel() }
