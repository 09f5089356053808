// Package failure serializes and reconstructs the throwable chain a
// skeleton sends back when an invocation fails: the exception's type
// name and message at every level of its cause chain, plus a captured
// stack trace, so a caller on the other side of the wire sees
// something closer to "here is what actually broke and where" than a
// single flattened error string.
//
// # Design rationale
//
// Go errors don't carry a class hierarchy or a per-error stack trace
// the way the reference implementation's throwables do. Frame.ClassName
// is populated from the dynamic type of each error in the Unwrap
// chain (via %T), and the stack is captured once, at the point the
// skeleton catches the panic or error, with runtime.Callers — the
// closest stdlib equivalent to a thrown exception's captured trace.
//
// # Failure behaviour
//
// If reconstruction on the receiving side hits a decoding error
// partway through a chain (a truncated frame, an illegal string), the
// frames already decoded are kept and a trailing Frame whose ClassName
// is SurrogateClassName, describing the decode failure, is appended,
// rather than discarding the whole chain — a caller still sees as much
// of the original failure as survived the wire.
package failure

import (
	"fmt"
	"runtime"

	"github.com/oriys/novarmi/internal/wire"
)

// StackElement is one stack frame captured at the point of failure.
type StackElement struct {
	ClassName  string
	MethodName string
	FileName   string
	LineNumber int32
}

// Frame is one level of the cause chain: a type name, a message, and
// the stack captured at the deepest (originating) frame only;
// intermediate wrapping frames do not repeat the full stack.
type Frame struct {
	ClassName string
	Message   string
	Stack     []StackElement
}

// SurrogateClassName marks a Frame synthesized locally because the
// wire chain could not be fully decoded.
const SurrogateClassName = "novarmi.SurrogateThrowable"

// Capture builds the cause chain for err: err itself, then each
// successive result of errors.Unwrap, deepest cause last. The deepest
// frame carries a stack trace captured via runtime.Callers starting
// skip frames above Capture's own caller.
func Capture(err error, skip int) []Frame {
	var frames []Frame
	for err != nil {
		frames = append(frames, Frame{
			ClassName: fmt.Sprintf("%T", err),
			Message:   err.Error(),
		})
		err = unwrap(err)
	}
	if len(frames) > 0 {
		frames[len(frames)-1].Stack = captureStack(skip + 1)
	}
	return frames
}

func unwrap(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}

func captureStack(skip int) []StackElement {
	const maxFrames = 32
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	var elements []StackElement
	for {
		f, more := frames.Next()
		elements = append(elements, StackElement{
			MethodName: f.Function,
			FileName:   f.File,
			LineNumber: int32(f.Line),
		})
		if !more {
			break
		}
	}
	return elements
}

// WriteChain writes frames to w as a var-uint count followed by each
// frame's class name, message, and stack.
func WriteChain(w *wire.Output, frames []Frame) error {
	if err := w.WriteVarUint(uint32(len(frames))); err != nil {
		return err
	}
	for _, f := range frames {
		if err := w.WriteString(&f.ClassName); err != nil {
			return err
		}
		if err := w.WriteString(&f.Message); err != nil {
			return err
		}
		if err := w.WriteVarUint(uint32(len(f.Stack))); err != nil {
			return err
		}
		for _, se := range f.Stack {
			if err := writeStackElement(w, se); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeStackElement(w *wire.Output, se StackElement) error {
	if err := w.WriteString(&se.ClassName); err != nil {
		return err
	}
	if err := w.WriteString(&se.MethodName); err != nil {
		return err
	}
	if err := w.WriteString(&se.FileName); err != nil {
		return err
	}
	return w.WriteInt(se.LineNumber)
}

// ReadChain reads a chain written by WriteChain. On a decode error
// partway through, it returns the frames already read plus a trailing
// SurrogateClassName frame describing the failure, with a nil error —
// see the package doc's Failure behaviour. Only a failure to read the
// frame count itself is returned as an error.
func ReadChain(r *wire.Input) ([]Frame, error) {
	count, err := r.ReadVarUint()
	if err != nil {
		return nil, err
	}
	frames := make([]Frame, 0, count)
	for i := uint32(0); i < count; i++ {
		f, err := readFrame(r)
		if err != nil {
			frames = append(frames, Frame{
				ClassName: SurrogateClassName,
				Message:   fmt.Sprintf("chain truncated after %d of %d frames: %v", i, count, err),
			})
			return frames, nil
		}
		frames = append(frames, f)
	}
	return frames, nil
}

func readFrame(r *wire.Input) (Frame, error) {
	className, err := r.ReadString()
	if err != nil {
		return Frame{}, err
	}
	message, err := r.ReadString()
	if err != nil {
		return Frame{}, err
	}
	depth, err := r.ReadVarUint()
	if err != nil {
		return Frame{}, err
	}
	stack := make([]StackElement, 0, depth)
	for i := uint32(0); i < depth; i++ {
		se, err := readStackElement(r)
		if err != nil {
			return Frame{}, err
		}
		stack = append(stack, se)
	}
	return Frame{ClassName: deref(className), Message: deref(message), Stack: stack}, nil
}

func readStackElement(r *wire.Input) (StackElement, error) {
	className, err := r.ReadString()
	if err != nil {
		return StackElement{}, err
	}
	methodName, err := r.ReadString()
	if err != nil {
		return StackElement{}, err
	}
	fileName, err := r.ReadString()
	if err != nil {
		return StackElement{}, err
	}
	line, err := r.ReadInt()
	if err != nil {
		return StackElement{}, err
	}
	return StackElement{
		ClassName:  deref(className),
		MethodName: deref(methodName),
		FileName:   deref(fileName),
		LineNumber: line,
	}, nil
}

// WriteThrowable writes the terminal throwable itself, following the
// chain WriteChain already wrote. Not every error's concrete type
// survives the codec's encoding (an unregistered type, most commonly);
// when it doesn't, the receiver falls back to the chain's class names
// and messages alone.
func WriteThrowable(w *wire.Output, err error) error {
	return w.TryWriteUnshared(err)
}

// ReadThrowable reads a value written by WriteThrowable. A nil return
// with a nil error means the sender could not marshal the original
// error, or this side could not decode its concrete type; the caller
// then relies on the chain already read by ReadChain instead. A
// non-nil error means the stream itself could not be trusted further.
func ReadThrowable(r *wire.Input) (error, error) {
	v, ok, err := r.TryReadUnshared()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if e, isErr := v.(error); isErr {
		return e, nil
	}
	return nil, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
