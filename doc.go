// Package rmi implements a bidirectional remote-method-invocation
// runtime: two processes expose typed remote objects to one another over
// a single connection-oriented transport and invoke each other's methods
// as though they were local.
//
// # Design rationale
//
// Either side of a Session may simultaneously act as client and server.
// Invocations are synchronous (request/reply, possibly an exception) or
// asynchronous (fire-and-forget, no reply read). A method that declares a
// Pipe parameter is described (RemoteMethod.Pipe) but not dispatched: the
// skeleton rejects it with ErrUnimplementedMethod and closes the
// connection, and no stream is opened.
//
// The three load-bearing pieces are a pool of full-duplex InvocationChannels
// multiplexed over one transport (package internal/broker), a per-session
// Registry mapping identifiers to local objects and imported stubs
// (package internal/registry), and a dispatch-table-driven stub/skeleton
// pair generated once per remote type at export/import time (stub.go,
// skeleton.go in this package). Distributed garbage collection
// (internal/dgc) reclaims server-side exports once no peer still
// references them.
//
// # Concurrency model
//
// The runtime assumes true parallelism: the accept loop is one goroutine,
// each accepted invocation dispatches onto its own goroutine, and stub
// calls run on the caller's goroutine. Every blocking operation accepts a
// context.Context for cancellation.
//
// # Non-goals
//
// Transport authentication, TLS, flow control, and firewall traversal are
// left to the configured internal/transport implementation. Object
// serialization format is delegated to a pluggable ObjectCodec; the
// default uses encoding/gob.
package rmi
