package failure

import (
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/oriys/novarmi/internal/wire"
)

// passthroughCodec is unused by these tests (the chain never carries
// an arbitrary object) but is required to construct a wire.Channel.
type passthroughCodec struct{}

func (passthroughCodec) NewScope() wire.Scope { return nil }
func (passthroughCodec) EncodeShared(_ wire.Scope, v interface{}, w io.Writer) error {
	return fmt.Errorf("not used")
}
func (passthroughCodec) DecodeShared(_ wire.Scope, r io.Reader) (interface{}, error) {
	return nil, fmt.Errorf("not used")
}
func (passthroughCodec) EncodeUnshared(v interface{}, w io.Writer) error {
	return fmt.Errorf("not used")
}
func (passthroughCodec) DecodeUnshared(r io.Reader) (interface{}, error) {
	return nil, fmt.Errorf("not used")
}

func pipeChannels() (*wire.Channel, *wire.Channel, func()) {
	server, client := net.Pipe()
	sch := wire.NewChannel(server, passthroughCodec{})
	cch := wire.NewChannel(client, passthroughCodec{})
	return sch, cch, func() { server.Close(); client.Close() }
}

func TestCapture_WalksUnwrapChain(t *testing.T) {
	root := errors.New("connection reset")
	wrapped := fmt.Errorf("invoking Widget.Render: %w", root)

	frames := Capture(wrapped, 0)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].Message != wrapped.Error() {
		t.Fatalf("frames[0].Message = %q, want %q", frames[0].Message, wrapped.Error())
	}
	if frames[1].Message != root.Error() {
		t.Fatalf("frames[1].Message = %q, want %q", frames[1].Message, root.Error())
	}
	if len(frames[1].Stack) == 0 {
		t.Fatal("expected the deepest frame to carry a captured stack")
	}
	if len(frames[0].Stack) != 0 {
		t.Fatal("expected only the deepest frame to carry a stack")
	}
}

func TestChain_WriteReadRoundTrip(t *testing.T) {
	sch, cch, closeAll := pipeChannels()
	defer closeAll()

	frames := Capture(fmt.Errorf("outer: %w", errors.New("inner failure")), 0)

	done := make(chan error, 1)
	go func() {
		done <- WriteChain(sch.Writer(), frames)
		sch.Writer().Flush()
	}()

	got, err := ReadChain(cch.Reader())
	if err != nil {
		t.Fatalf("ReadChain failed: %v", err)
	}
	if writeErr := <-done; writeErr != nil {
		t.Fatalf("WriteChain failed: %v", writeErr)
	}

	if len(got) != len(frames) {
		t.Fatalf("got %d frames, want %d", len(got), len(frames))
	}
	for i := range frames {
		if got[i].ClassName != frames[i].ClassName {
			t.Fatalf("frame %d ClassName = %q, want %q", i, got[i].ClassName, frames[i].ClassName)
		}
		if got[i].Message != frames[i].Message {
			t.Fatalf("frame %d Message = %q, want %q", i, got[i].Message, frames[i].Message)
		}
		if len(got[i].Stack) != len(frames[i].Stack) {
			t.Fatalf("frame %d stack depth = %d, want %d", i, len(got[i].Stack), len(frames[i].Stack))
		}
	}
}

func TestReadChain_TruncatedStreamYieldsSurrogateFrame(t *testing.T) {
	sch, cch, closeAll := pipeChannels()
	defer closeAll()

	go func() {
		w := sch.Writer()
		w.WriteVarUint(2) // announces two frames but only one follows
		className := "widget.RenderError"
		message := "boom"
		w.WriteString(&className)
		w.WriteString(&message)
		w.WriteVarUint(0)
		w.Flush()
		sch.Close()
	}()

	got, err := ReadChain(cch.Reader())
	if err != nil {
		t.Fatalf("ReadChain should recover from truncation, got error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2 (1 real + 1 surrogate)", len(got))
	}
	if got[0].ClassName != "widget.RenderError" {
		t.Fatalf("got[0].ClassName = %q, want \"widget.RenderError\"", got[0].ClassName)
	}
	if got[1].ClassName != SurrogateClassName {
		t.Fatalf("got[1].ClassName = %q, want %q", got[1].ClassName, SurrogateClassName)
	}
}
