package rmi

import "sync/atomic"

// dispatchTable is the reference-counted method-ordinal table shared by
// every Stub and every inbound dispatch of one exported object for a
// single remote-capable type. Go has no bytecode-generation analogue to
// synthesize a dedicated stub/skeleton pair per interface the way a
// compile-time RMI code generator would, so one generic Stub type and
// one generic dispatch loop serve every remote type; the table is a
// factory-held strong reference (every instance of a type shares one
// table, retained for as long as any stub or export referencing it is
// alive) without any codegen step.
type dispatchTable struct {
	refCount int32
	info     *RemoteInfo
	byName   map[string]*RemoteMethod
	byID     map[Identifier]*RemoteMethod
}

func newDispatchTable(info *RemoteInfo) *dispatchTable {
	t := &dispatchTable{
		info:   info,
		byName: make(map[string]*RemoteMethod, len(info.Methods)),
		byID:   make(map[Identifier]*RemoteMethod, len(info.Methods)),
	}
	for i := range info.Methods {
		m := &info.Methods[i]
		t.byName[m.Name] = m
		t.byID[m.MethodID] = m
	}
	return t
}

func (t *dispatchTable) retain() { atomic.AddInt32(&t.refCount, 1) }

// release returns the table's reference count after decrementing it.
// Stub.Release discards the result; the session keeps every table in its
// type cache whatever the count.
func (t *dispatchTable) release() int32 { return atomic.AddInt32(&t.refCount, -1) }
