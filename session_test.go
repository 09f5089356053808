package rmi

import (
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/oriys/novarmi/internal/transport"
)

// echoService and counterService are the two small interfaces exercised
// end-to-end over a real pair of Sessions wired through PeerTCP. Both
// declare their Remote-kind members as *Stub, the concrete type
// describeParameter recognizes.
type echoService interface {
	Echo(ctx context.Context, s string) (string, error)
	Boom(ctx context.Context) error
	Notify(ctx context.Context, s string)
}

type counterService interface {
	Increment(ctx context.Context) (int32, error)
}

type factoryService interface {
	NewCounter(ctx context.Context) (*Stub, error)
}

type echoImpl struct {
	notified chan string
}

func (e *echoImpl) Echo(ctx context.Context, s string) (string, error) {
	return "echo:" + s, nil
}

func (e *echoImpl) Boom(ctx context.Context) error {
	return errors.New("boom failed spectacularly")
}

func (e *echoImpl) Notify(ctx context.Context, s string) {
	if s == "boom" {
		panic("notify panicked: " + s)
	}
	e.notified <- s
}

type counterImpl struct {
	n int32
}

func (c *counterImpl) Increment(ctx context.Context) (int32, error) {
	c.n++
	return c.n, nil
}

type factoryImpl struct {
	session     *Session
	counterInfo *RemoteInfo
}

func (f *factoryImpl) NewCounter(ctx context.Context) (*Stub, error) {
	id, err := f.session.Export(&counterImpl{}, f.counterInfo)
	if err != nil {
		return nil, err
	}
	table := f.session.dispatchTableFor(f.counterInfo)
	return newStub(f.session, VersionedIdentifier{ID: id, LocalVersion: 1}, table), nil
}

// registeredFailure is gob-registered, so it round-trips through the
// terminal-throwable slot intact instead of falling back to the
// surrogate reconstruction an unregistered type (like echoImpl.Boom's
// plain errors.New) forces.
type registeredFailure struct {
	Code int
}

func (e *registeredFailure) Error() string { return fmt.Sprintf("registered failure code %d", e.Code) }

func init() { gob.Register(&registeredFailure{}) }

type faultyService interface {
	Explode(ctx context.Context) error
}

type faultyImpl struct{}

func (faultyImpl) Explode(ctx context.Context) error {
	return &registeredFailure{Code: 42}
}

// freeAddr reserves and immediately releases a loopback TCP port, for
// use as a PeerTCP address before the owning Session has bound it.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// newPeerSessions builds two Sessions wired to dial each other's
// invocation listener, plus DGC listeners if withDGC is set, and
// registers cleanup to close both.
func newPeerSessions(t *testing.T, withDGC bool) (*Session, *Session) {
	t.Helper()
	addrA := freeAddr(t)
	addrB := freeAddr(t)

	cfgA := SessionConfig{Transport: transport.NewPeerTCP(addrA, addrB)}
	cfgB := SessionConfig{Transport: transport.NewPeerTCP(addrB, addrA)}

	if withDGC {
		dgcA := freeAddr(t)
		dgcB := freeAddr(t)
		cfgA.DGCTransport = transport.NewPeerTCP(dgcA, dgcB)
		cfgB.DGCTransport = transport.NewPeerTCP(dgcB, dgcA)
	}

	a, err := NewSession(cfgA)
	if err != nil {
		t.Fatalf("NewSession(a): %v", err)
	}
	b, err := NewSession(cfgB)
	if err != nil {
		t.Fatalf("NewSession(b): %v", err)
	}
	if err := a.Serve(); err != nil {
		t.Fatalf("a.Serve: %v", err)
	}
	if err := b.Serve(); err != nil {
		t.Fatalf("b.Serve: %v", err)
	}
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func echoInfo(t *testing.T) *RemoteInfo {
	t.Helper()
	info, err := DescribeType("EchoService", reflect.TypeOf((*echoService)(nil)).Elem())
	if err != nil {
		t.Fatalf("DescribeType(echoService): %v", err)
	}
	return info
}

func TestSession_SyncEcho(t *testing.T) {
	a, b := newPeerSessions(t, false)
	info := echoInfo(t)

	id, err := a.Export(&echoImpl{notified: make(chan string, 1)}, info)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	stub := b.ImportByID(id, info)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := stub.Invoke(ctx, "Echo", "hello")
	if err != nil {
		t.Fatalf("Invoke(Echo): %v", err)
	}
	if result != "echo:hello" {
		t.Fatalf("Echo result = %q, want %q", result, "echo:hello")
	}
}

func TestSession_RemoteFailureStitchesChain(t *testing.T) {
	a, b := newPeerSessions(t, false)
	info := echoInfo(t)

	id, err := a.Export(&echoImpl{notified: make(chan string, 1)}, info)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	stub := b.ImportByID(id, info)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = stub.Invoke(ctx, "Boom")
	if err == nil {
		t.Fatal("Invoke(Boom) succeeded, want a RemoteFailure")
	}
	var rf *RemoteFailure
	if !errors.As(err, &rf) {
		t.Fatalf("error is %T, want *RemoteFailure", err)
	}
	if rf.Message != "boom failed spectacularly" {
		t.Fatalf("RemoteFailure.Message = %q", rf.Message)
	}
	if len(rf.Chain) == 0 || len(rf.Chain[len(rf.Chain)-1].StackTrace) == 0 {
		t.Fatal("expected the deepest frame to carry a stitched local stack")
	}
	var reg *registeredFailure
	if errors.As(err, &reg) {
		t.Fatal("errors.New is not gob-registered, so errors.As should not reach a *registeredFailure")
	}
}

func TestSession_RemoteFailureSurvivesThrowableRoundTrip(t *testing.T) {
	a, b := newPeerSessions(t, false)

	info, err := DescribeType("FaultyService", reflect.TypeOf((*faultyService)(nil)).Elem())
	if err != nil {
		t.Fatalf("DescribeType(faultyService): %v", err)
	}
	id, err := a.Export(faultyImpl{}, info)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	stub := b.ImportByID(id, info)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = stub.Invoke(ctx, "Explode")
	if err == nil {
		t.Fatal("Invoke(Explode) succeeded, want a RemoteFailure")
	}

	var rf *RemoteFailure
	if !errors.As(err, &rf) {
		t.Fatalf("error is %T, want *RemoteFailure", err)
	}
	var reg *registeredFailure
	if !errors.As(err, &reg) {
		t.Fatal("expected errors.As to reach the original *registeredFailure through RemoteFailure.Unwrap")
	}
	if reg.Code != 42 {
		t.Fatalf("registeredFailure.Code = %d, want 42", reg.Code)
	}
}

func TestSession_AsyncNotifyNoReply(t *testing.T) {
	a, b := newPeerSessions(t, false)
	info := echoInfo(t)

	notified := make(chan string, 1)
	id, err := a.Export(&echoImpl{notified: notified}, info)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	stub := b.ImportByID(id, info)

	asyncErrs := make(chan error, 1)
	a.OnAsyncError(func(err error) { asyncErrs <- err })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ret, err := stub.Invoke(ctx, "Notify", "hi")
	if err != nil || ret != nil {
		t.Fatalf("Invoke(Notify) = %v, %v, want nil, nil", ret, err)
	}
	select {
	case got := <-notified:
		if got != "hi" {
			t.Fatalf("notified = %q, want %q", got, "hi")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for async delivery")
	}

	if _, err := stub.Invoke(ctx, "Notify", "boom"); err != nil {
		t.Fatalf("Invoke(Notify, boom): %v", err)
	}
	select {
	case err := <-asyncErrs:
		var aie *AsynchronousInvocationError
		if !errors.As(err, &aie) {
			t.Fatalf("async error is %T, want *AsynchronousInvocationError", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnAsyncError")
	}
}

func TestSession_ChannelReuseAtScale(t *testing.T) {
	addrA := freeAddr(t)
	addrB := freeAddr(t)

	a, err := NewSession(SessionConfig{Transport: transport.NewPeerTCP(addrA, addrB)})
	if err != nil {
		t.Fatalf("NewSession(a): %v", err)
	}
	cfgB := SessionConfig{Transport: transport.NewPeerTCP(addrB, addrA)}
	cfgB.Broker.MaxChannels = 8
	b, err := NewSession(cfgB)
	if err != nil {
		t.Fatalf("NewSession(b): %v", err)
	}
	if err := a.Serve(); err != nil {
		t.Fatalf("a.Serve: %v", err)
	}
	if err := b.Serve(); err != nil {
		t.Fatalf("b.Serve: %v", err)
	}
	t.Cleanup(func() { a.Close(); b.Close() })

	info := echoInfo(t)
	id, err := a.Export(&echoImpl{notified: make(chan string, 1)}, info)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	stub := b.ImportByID(id, info)

	const n = 1000
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for i := 0; i < n; i++ {
		if _, err := stub.Invoke(ctx, "Echo", "x"); err != nil {
			t.Fatalf("Invoke #%d: %v", i, err)
		}
	}

	st := b.Stats()
	if st.ChannelsTotal > 8 {
		t.Fatalf("ChannelsTotal = %d, want <= 8 with MaxChannels=8", st.ChannelsTotal)
	}
}

func TestSession_RemoteReferenceParamAndReturn(t *testing.T) {
	a, b := newPeerSessions(t, false)

	counterInfo, err := DescribeType("CounterService", reflect.TypeOf((*counterService)(nil)).Elem())
	if err != nil {
		t.Fatalf("DescribeType(counterService): %v", err)
	}
	factoryInfo, err := DescribeType("FactoryService", reflect.TypeOf((*factoryService)(nil)).Elem())
	if err != nil {
		t.Fatalf("DescribeType(factoryService): %v", err)
	}

	factory := &factoryImpl{session: a, counterInfo: counterInfo}
	id, err := a.Export(factory, factoryInfo)
	if err != nil {
		t.Fatalf("Export(factory): %v", err)
	}
	factoryStub := b.ImportByID(id, factoryInfo)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ret, err := factoryStub.Invoke(ctx, "NewCounter")
	if err != nil {
		t.Fatalf("Invoke(NewCounter): %v", err)
	}
	counterStub, ok := ret.(*Stub)
	if !ok {
		t.Fatalf("NewCounter returned %T, want *Stub", ret)
	}

	for want := int32(1); want <= 3; want++ {
		got, err := counterStub.Invoke(ctx, "Increment")
		if err != nil {
			t.Fatalf("Invoke(Increment): %v", err)
		}
		if got != want {
			t.Fatalf("Increment = %v, want %d", got, want)
		}
	}
}

func TestSession_DGCReclaimsAfterRelease(t *testing.T) {
	a, b := newPeerSessions(t, true)

	info, err := DescribeType("CounterService", reflect.TypeOf((*counterService)(nil)).Elem())
	if err != nil {
		t.Fatalf("DescribeType(counterService): %v", err)
	}
	id, err := a.Export(&counterImpl{}, info)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	stub := b.ImportByID(id, info)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reclaimed, err := a.gc.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce (before release): %v", err)
	}
	if len(reclaimed) != 0 {
		t.Fatalf("reclaimed %v before the importer released its ref", reclaimed)
	}
	if _, found := a.registry.Lookup(uint64(id)); !found {
		t.Fatal("export was reclaimed while still imported by the peer")
	}

	stub.Release()

	reclaimed, err = a.gc.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce (after release): %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0] != uint64(id) {
		t.Fatalf("reclaimed = %v, want [%d]", reclaimed, id)
	}
	if _, found := a.registry.Lookup(uint64(id)); found {
		t.Fatal("export still present after being reclaimed")
	}
}

func TestSession_MalformedStreamClosesConnection(t *testing.T) {
	addrA := freeAddr(t)
	a, err := NewSession(SessionConfig{Transport: transport.NewPeerTCP(addrA, "")})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := a.Serve(); err != nil {
		t.Fatalf("a.Serve: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	info := echoInfo(t)
	var echoMethodID Identifier
	for _, m := range info.Methods {
		if m.Name == "Echo" {
			echoMethodID = m.MethodID
		}
	}
	id, err := a.Export(&echoImpl{notified: make(chan string, 1)}, info)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	conn, err := net.DialTimeout("tcp", addrA, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// A legitimate object/method identifier pair addressed at a real
	// export, followed by a compact-encoded string parameter whose length
	// is 1 and whose only character unit starts with the illegal 0xF8 tag,
	// exercises the skeleton's reaction to a corrupted request body: it
	// tears the connection down rather than hanging or desyncing the next
	// invocation on the same channel.
	var hdr [16]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint64(hdr[8:16], uint64(echoMethodID))
	if _, err := conn.Write(hdr[:]); err != nil {
		t.Fatalf("Write header: %v", err)
	}
	if _, err := conn.Write([]byte{0x01, 0xf8}); err != nil {
		t.Fatalf("Write garbage: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	if err == nil {
		t.Fatal("expected the skeleton to close the connection on malformed input")
	}
}
