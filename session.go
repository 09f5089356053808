package rmi

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/novarmi/internal/audit"
	"github.com/oriys/novarmi/internal/broker"
	"github.com/oriys/novarmi/internal/dgc"
	"github.com/oriys/novarmi/internal/logging"
	"github.com/oriys/novarmi/internal/metrics"
	"github.com/oriys/novarmi/internal/registry"
	"github.com/oriys/novarmi/internal/telemetry"
	"github.com/oriys/novarmi/internal/transport"
	"github.com/oriys/novarmi/internal/wire"
)

// SessionConfig bundles everything a Session needs. Transport is the
// only required field; every other field falls back to a usable
// default (a no-op telemetry provider, a fresh unregistered metrics
// namespace, a console-only logger, no audit trail, no periodic DGC).
type SessionConfig struct {
	Transport    transport.Transport
	DGCTransport transport.Transport // nil disables periodic distributed GC
	Codec        wire.Codec
	Broker       broker.Config
	DGCInterval  time.Duration
	Metrics      *metrics.Metrics
	Telemetry    *telemetry.Provider
	Audit        *audit.Store
	Logger       *logging.Logger

	// LogFormat and LogLevel configure the process-wide operational
	// logger (lifecycle, accept-loop, and distributed-GC messages), as
	// opposed to Logger, which only ever receives per-invocation
	// entries. Leaving both empty keeps whatever the operational logger
	// was already set to. LogFormat is "text" or "json"; LogLevel is
	// "debug", "info", "warn", or "error".
	LogFormat string
	LogLevel  string
}

// Session owns one peer connection's broker, registry, and distributed
// garbage collector, plus the ambient observability stack (metrics,
// tracing, audit, logging) every invocation flows through. The zero
// value is not usable; always construct via NewSession.
type Session struct {
	// ID uniquely names this session for logging and audit correlation;
	// it has no wire significance and is never sent to the peer.
	ID string

	transport    transport.Transport
	dgcTransport transport.Transport

	broker    *broker.Broker
	dgcBroker *broker.Broker
	registry  *registry.Registry
	gc        *dgc.GC
	codec     wire.Codec

	metrics   *metrics.Metrics
	telemetry *telemetry.Provider
	audit     *audit.Store
	logger    *logging.Logger

	mu            sync.Mutex
	typeTables    map[Identifier]*dispatchTable
	typeInfoCache map[Identifier]*RemoteInfo
	sentTypes     map[Identifier]bool

	onAsyncError func(error)

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSession builds a Session over cfg.Transport, ready to Export,
// Import, and Serve.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("rmi: SessionConfig.Transport is required")
	}
	codec := cfg.Codec
	if codec == nil {
		codec = NewGobCodec()
	}
	tel := cfg.Telemetry
	if tel == nil {
		tel = telemetry.NewNoop()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New("novarmi")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.LogFormat != "" || cfg.LogLevel != "" {
		logging.InitStructured(cfg.LogFormat, cfg.LogLevel)
	}

	s := &Session{
		ID:            uuid.NewString(),
		transport:     cfg.Transport,
		dgcTransport:  cfg.DGCTransport,
		broker:        broker.New(cfg.Transport, codec, cfg.Broker),
		codec:         codec,
		registry:      registry.New(),
		metrics:       m,
		telemetry:     tel,
		audit:         cfg.Audit,
		logger:        logger,
		typeTables:    make(map[Identifier]*dispatchTable),
		typeInfoCache: make(map[Identifier]*RemoteInfo),
		sentTypes:     make(map[Identifier]bool),
	}

	if cfg.DGCTransport != nil {
		s.dgcBroker = broker.New(cfg.DGCTransport, codec, broker.Config{})
		s.gc = dgc.New(s.registry, dgc.NewWireExchanger(s.dgcBroker), cfg.DGCInterval)
		s.gc.OnReclaim = func(id uint64) {
			s.metrics.SetRegistryStats(len(s.registry.LiveExports()), len(s.registry.ImportedIDs()))
			logging.Op().Debug("distributed gc reclaimed export", "session", s.ID, "object_id", fmt.Sprintf("%016x", id))
		}
		s.gc.OnError = func(err error) {
			logging.Op().Warn("distributed gc round failed", "session", s.ID, "error", err)
		}
	}

	return s, nil
}

// OnAsyncError registers the sink an asynchronous method's dispatch
// failure is reported to, since it cannot be returned to a stub that
// has already stopped waiting for a reply. Only one sink is kept; a
// later call replaces the earlier one.
func (s *Session) OnAsyncError(fn func(error)) { s.onAsyncError = fn }

// Serve starts accepting inbound connections on the invocation
// transport, and on the DGC transport if one was configured, each on
// its own goroutine. It returns once both listeners are bound, or the
// first error either Listen call produces.
func (s *Session) Serve() error {
	ln, err := s.transport.Listen()
	if err != nil {
		return fmt.Errorf("rmi: listen: %w", err)
	}
	logging.Op().Info("accepting invocations", "session", s.ID, "transport", s.transport.Name())
	s.wg.Add(1)
	go s.acceptLoop(ln)

	if s.dgcTransport != nil {
		dln, err := s.dgcTransport.Listen()
		if err != nil {
			return fmt.Errorf("rmi: dgc listen: %w", err)
		}
		logging.Op().Info("accepting distributed gc rounds", "session", s.ID, "transport", s.dgcTransport.Name())
		s.wg.Add(1)
		go s.acceptDGCLoop(dln)
		s.gc.Run()
	}
	return nil
}

// acceptLoop accepts inbound connections on ln and runs the skeleton
// dispatch loop on each, until ln.Accept fails (normally because Close
// closed the listener).
func (s *Session) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			logging.Op().Debug("invocation listener stopped accepting", "session", s.ID, "error", err)
			return
		}
		ch := wire.NewChannel(conn, s.codec)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveChannel(ch)
		}()
	}
}

// acceptDGCLoop accepts inbound connections on the DGC transport's
// listener and answers each distributed-GC live-set exchange round the
// peer initiates, mirroring dgc.WireExchanger's wire format: a var-uint
// count followed by that many identifiers, in both directions. A
// dedicated listener (rather than multiplexing onto the application
// transport) avoids needing a frame-kind discriminator byte ahead of
// every ordinary invocation.
func (s *Session) acceptDGCLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		ch := wire.NewChannel(conn, s.codec)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveDGCChannel(ch)
		}()
	}
}

func (s *Session) serveDGCChannel(ch *wire.Channel) {
	defer ch.Close()
	for {
		if err := s.dispatchDGCRound(ch); err != nil {
			return
		}
	}
}

// dispatchDGCRound answers one inbound live-set exchange: read the
// peer's imported-id set, reclaim any of this session's exports it no
// longer lists, and reply with this session's own imported-id set so
// the peer can do the same reclamation in the other direction.
func (s *Session) dispatchDGCRound(ch *wire.Channel) error {
	in := ch.Reader()
	n, err := in.ReadVarUint()
	if err != nil {
		return err
	}
	peerImported := make(map[uint64]struct{}, n)
	for i := uint32(0); i < n; i++ {
		id, err := in.ReadLong()
		if err != nil {
			return err
		}
		peerImported[uint64(id)] = struct{}{}
	}

	reclaimed := 0
	for _, snap := range s.registry.LiveExportSnapshots() {
		if _, ok := peerImported[snap.ID]; ok {
			continue
		}
		// Guard the drop against a concurrent re-export: if the object
		// was exported again since LiveExportSnapshots observed it, its
		// LocalVersion has moved on and this round's decision is stale.
		if s.registry.DropExportIfVersion(snap.ID, snap.LocalVersion) {
			reclaimed++
		}
	}
	s.metrics.RecordDGCRound(reclaimed, nil)
	if s.audit != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.audit.LogDGCRound(ctx, reclaimed, nil)
		}()
	}

	local := s.registry.ImportedIDs()
	out := ch.Writer()
	if err := out.WriteVarUint(uint32(len(local))); err != nil {
		return err
	}
	for _, id := range local {
		if err := out.WriteLong(int64(id)); err != nil {
			return err
		}
	}
	return out.Flush()
}

// Close stops the accept loops, the periodic GC, and the channel pools.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		logging.Op().Info("session closing", "session", s.ID)
		if s.gc != nil {
			s.gc.Close()
		}
		err = s.broker.Close()
		if s.dgcBroker != nil {
			if derr := s.dgcBroker.Close(); derr != nil && err == nil {
				err = derr
			}
		}
		if s.audit != nil {
			if aerr := s.audit.Close(); aerr != nil && err == nil {
				err = aerr
			}
		}
	})
	s.wg.Wait()
	return err
}

// Stats is the admin/observability snapshot exposed alongside the
// Prometheus collectors in internal/metrics: open channels, pool
// occupancy, and export/import counts.
type Stats struct {
	ChannelsIdle  int
	ChannelsTotal int
	ExportsActive int
	ImportsActive int
}

// Stats reports a point-in-time snapshot of session occupancy.
func (s *Session) Stats() Stats {
	bs := s.broker.Stats()
	st := Stats{
		ChannelsIdle:  bs.Idle,
		ChannelsTotal: bs.Total,
		ExportsActive: len(s.registry.LiveExports()),
		ImportsActive: len(s.registry.ImportedIDs()),
	}
	s.metrics.SetChannelStats(st.ChannelsIdle, st.ChannelsTotal)
	s.metrics.SetRegistryStats(st.ExportsActive, st.ImportsActive)
	return st
}

// Export registers obj under a freshly minted identifier, described by
// info, and returns the identifier a peer uses (via ImportByID, learned
// out of band) to obtain a Stub pointing back at it.
func (s *Session) Export(obj interface{}, info *RemoteInfo) (Identifier, error) {
	id, err := NewIdentifier()
	if err != nil {
		return 0, err
	}
	table := s.dispatchTableFor(info)
	s.registry.Export(uint64(id), &exportBinding{value: obj, table: table}, info.TypeName)
	return id, nil
}

// ImportByID builds a Stub for an object already known, by identifier
// and type, to live on the peer. Discovering that identifier in the
// first place (a root-object bootstrap) is left to the caller; novarmi
// does not prescribe one.
func (s *Session) ImportByID(id Identifier, info *RemoteInfo) *Stub {
	table := s.dispatchTableFor(info)
	s.registry.ImportRef(uint64(id), info.TypeName)
	return newStub(s, VersionedIdentifier{ID: id, LocalVersion: 1}, table)
}

func (s *Session) dispatchTableFor(info *RemoteInfo) *dispatchTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.typeTables[info.TypeID]; ok {
		return t
	}
	t := newDispatchTable(info)
	s.typeTables[info.TypeID] = t
	s.typeInfoCache[info.TypeID] = info
	return t
}

// marshalRemote converts a local Stub reference into the wire form
// carried as a Remote-kind parameter or return value, attaching the
// type's RemoteInfo only the first time this session mentions TypeID to
// its peer.
func (s *Session) marshalRemote(stub *Stub) *MarshalledRemote {
	info := stub.table.info
	s.mu.Lock()
	first := !s.sentTypes[info.TypeID]
	s.sentTypes[info.TypeID] = true
	s.mu.Unlock()

	var sent *RemoteInfo
	if first {
		sent = info
	}
	return &MarshalledRemote{
		ObjectID: stub.objectID,
		TypeID:   VersionedIdentifier{ID: info.TypeID, LocalVersion: 1},
		TypeName: info.TypeName,
		Info:     sent,
	}
}

// resolveRemote is marshalRemote's mirror: it turns a decoded
// MarshalledRemote back into a local Stub, caching its RemoteInfo on
// first sight so later references carrying only the TypeID still
// resolve.
func (s *Session) resolveRemote(mr *MarshalledRemote) (*Stub, error) {
	s.mu.Lock()
	if mr.Info != nil {
		s.typeInfoCache[mr.TypeID.ID] = mr.Info
	}
	info, ok := s.typeInfoCache[mr.TypeID.ID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("rmi: unknown remote type %s: peer sent no RemoteInfo on first reference", mr.TypeID.ID)
	}

	table := s.dispatchTableFor(info)
	s.registry.ImportRef(uint64(mr.ObjectID.ID), mr.TypeName)
	return newStub(s, mr.ObjectID, table), nil
}

func (s *Session) recordClientInvocation(method string, dur time.Duration, success bool) {
	s.metrics.RecordInvocation(method, dur.Milliseconds(), success)
}

func (s *Session) recordServerInvocation(ctx context.Context, objectID uint64, typeName, method, failureClassName string, start time.Time, async, success bool, callErr error) {
	dur := time.Since(start)
	s.metrics.RecordInvocation(method, dur.Milliseconds(), success)

	entry := &logging.InvocationLog{
		InvocationID: uuid.NewString(),
		SessionID:    s.ID,
		TraceID:      telemetry.TraceID(ctx),
		Method:       method,
		ObjectID:     objectID,
		TypeName:     typeName,
		DurationMs:   dur.Milliseconds(),
		Async:        async,
		Success:      success,
	}
	if callErr != nil {
		entry.Error = callErr.Error()
		logging.OpWithTrace(entry.TraceID, "").Warn("invocation failed",
			"session", s.ID, "method", method, "object_id", fmt.Sprintf("%016x", objectID), "error", callErr)
	}
	s.logger.Log(entry)

	if s.audit != nil {
		rec := audit.InvocationRecord{
			ID:         fmt.Sprintf("%016x-%d", objectID, start.UnixNano()),
			ObjectID:   objectID,
			TypeName:   typeName,
			Method:     method,
			DurationMs: dur.Milliseconds(),
			Async:      async,
			Success:    success,
		}
		if callErr != nil {
			rec.ErrorMessage = callErr.Error()
			rec.FailureClass = failureClassName
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.audit.Log(ctx, rec)
		}()
	}
}
