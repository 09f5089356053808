// Package registry tracks this session's exported objects (server side)
// and imported stub references (client side), keyed by the wire
// identifier's raw uint64 form. The root rmi package owns the
// Identifier type itself; registry stays one layer below it so rmi can
// import registry without a cycle.
//
// # Design rationale
//
// Every remote object a session exports needs a stable home that a
// skeleton can look up by identifier on each inbound invocation, and
// every stub a session imports needs a reference count so the
// distributed garbage collector knows when it is safe to tell the
// exporting side the object is no longer reachable from here.
//
// # Concurrency model
//
// mu guards both exported and imported; lookups and mutations both take
// it, since neither map is read-heavy enough on its own to justify a
// separate RWMutex discipline per map.
//
// # Invariants
//
//   - An ID present in exported is never also present in imported within
//     the same Registry (a session does not import its own export).
//   - ImportedRef.RefCount never drops below zero; ReleaseRef past zero
//     is a caller bug and is reported via the returned bool.
package registry

import (
	"sync"
	"time"
)


// ExportedObject is a server-side export: the concrete object plus the
// DGC version counters assigned to it.
type ExportedObject struct {
	ID            uint64
	Object        interface{}
	TypeName      string
	LocalVersion  uint32
	RemoteVersion uint32
	exportedAt    time.Time
	lastSeenAt    time.Time
}

// ImportedRef is a client-side stub reference: how many local stubs
// point at the same remote object, and the last version numbers seen
// in a DGC round-trip.
type ImportedRef struct {
	ID            uint64
	TypeName      string
	RefCount      int
	LocalVersion  uint32
	RemoteVersion uint32
}

// Registry is safe for concurrent use. Create one with New: the zero
// value's maps are nil, so it cannot record exports or imports.
type Registry struct {
	mu       sync.Mutex
	exported map[uint64]*ExportedObject
	imported map[uint64]*ImportedRef
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		exported: make(map[uint64]*ExportedObject),
		imported: make(map[uint64]*ImportedRef),
	}
}

// Export registers obj under id, or returns the existing registration
// if id was already exported (re-exporting bumps LocalVersion and
// replaces the stored object, the DGC reclaim-then-re-export scenario).
func (r *Registry) Export(id uint64, obj interface{}, typeName string) *ExportedObject {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.exported[id]; ok {
		existing.LocalVersion++
		existing.Object = obj
		existing.lastSeenAt = time.Now()
		return existing
	}
	eo := &ExportedObject{
		ID:           id,
		Object:       obj,
		TypeName:     typeName,
		LocalVersion: 1,
		exportedAt:   time.Now(),
		lastSeenAt:   time.Now(),
	}
	r.exported[id] = eo
	return eo
}

// Lookup returns the export registered under id, if any.
func (r *Registry) Lookup(id uint64) (*ExportedObject, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	eo, ok := r.exported[id]
	if ok {
		eo.lastSeenAt = time.Now()
	}
	return eo, ok
}

// DropExport removes id from the export table. It is idempotent.
func (r *Registry) DropExport(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.exported, id)
}

// DropExportIfVersion removes id only if its LocalVersion still equals
// version, reporting whether it dropped the export. A DGC round captures
// an export's LocalVersion when it decides the peer no longer lists the
// object, then commits the drop through this method; if the object was
// re-exported (bumping LocalVersion) in the meantime, the stale decision
// is discarded instead of reclaiming a reference the caller just revived.
func (r *Registry) DropExportIfVersion(id uint64, version uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	eo, ok := r.exported[id]
	if !ok || eo.LocalVersion != version {
		return false
	}
	delete(r.exported, id)
	return true
}

// ExportSnapshot is a point-in-time (id, LocalVersion) pair, the shape a
// DGC round needs to later commit a version-guarded drop.
type ExportSnapshot struct {
	ID           uint64
	LocalVersion uint32
}

// LiveExports returns every currently exported identifier, the live
// set a DGC round exchanges with the peer.
func (r *Registry) LiveExports() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint64, 0, len(r.exported))
	for id := range r.exported {
		ids = append(ids, id)
	}
	return ids
}

// LiveExportSnapshots returns every currently exported identifier
// alongside its current LocalVersion, for a DGC round that must guard
// its eventual drop against a concurrent re-export.
func (r *Registry) LiveExportSnapshots() []ExportSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snaps := make([]ExportSnapshot, 0, len(r.exported))
	for id, eo := range r.exported {
		snaps = append(snaps, ExportSnapshot{ID: id, LocalVersion: eo.LocalVersion})
	}
	return snaps
}

// SweepStale drops exports that have not been looked up (i.e.
// invoked) in longer than maxAge, returning the identifiers dropped.
// It is an age-based substitute for a true weak reference (see
// DESIGN.md's Open Question resolution); nothing in this module calls it
// on a schedule.
func (r *Registry) SweepStale(maxAge time.Duration) []uint64 {
	cutoff := time.Now().Add(-maxAge)
	r.mu.Lock()
	defer r.mu.Unlock()
	var dropped []uint64
	for id, eo := range r.exported {
		if eo.lastSeenAt.Before(cutoff) {
			dropped = append(dropped, id)
			delete(r.exported, id)
		}
	}
	return dropped
}

// ImportRef records a new local stub for id, incrementing its
// reference count and creating the entry on first import.
func (r *Registry) ImportRef(id uint64, typeName string) *ImportedRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.imported[id]
	if !ok {
		ref = &ImportedRef{ID: id, TypeName: typeName}
		r.imported[id] = ref
	}
	ref.RefCount++
	return ref
}

// ReleaseRef decrements id's reference count, removing the entry and
// reporting collectible=true once it reaches zero. ok is false if id
// was not imported or its count was already zero, indicating a caller
// bug rather than a normal release.
func (r *Registry) ReleaseRef(id uint64) (collectible bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, present := r.imported[id]
	if !present || ref.RefCount <= 0 {
		return false, false
	}
	ref.RefCount--
	if ref.RefCount == 0 {
		delete(r.imported, id)
		return true, true
	}
	return false, true
}

// ImportedIDs returns every identifier currently imported, for the DGC
// round's diff against the peer's live set.
func (r *Registry) ImportedIDs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint64, 0, len(r.imported))
	for id := range r.imported {
		ids = append(ids, id)
	}
	return ids
}

// UpdateImportedVersions records the version pair most recently seen
// for an imported reference, used to detect staleness per
// VersionedIdentifier.Stale.
func (r *Registry) UpdateImportedVersions(id uint64, local, remote uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ref, ok := r.imported[id]; ok {
		ref.LocalVersion = local
		ref.RemoteVersion = remote
	}
}
