package pipeline

import "context"

// Slot identifies one position in the fixed stage order every view follows.
type Slot int

const (
	SlotPre Slot = iota
	SlotInit
	SlotFetch
	SlotTransform
	SlotDecorate
	SlotRender
	SlotResponse
	SlotPost

	NumSlots
)

var slotNames = [NumSlots]string{
	"pre", "init", "fetch", "transform", "decorate", "render", "response", "post",
}

func (s Slot) String() string {
	if s < 0 || s >= NumSlots {
		return "invalid"
	}
	return slotNames[s]
}

// Recording reports whether the slot stores its stage's return value into the
// context under the slot name. The pre, decorate, response, and post slots
// are procedural: they act through side effects on the context only.
func (s Slot) Recording() bool {
	switch s {
	case SlotPre, SlotDecorate, SlotResponse, SlotPost:
		return false
	default:
		return true
	}
}

// Stage is one step of a view's processing order. It reads prior slots from
// the request context and returns either a value to continue with or a
// ready-made response that terminates the run.
type Stage func(ctx context.Context, rc *Context) (Result, error)

// Result is the discriminated outcome of a stage: continue with a value, or
// short-circuit with a response. The engine inspects the tag; stages never
// signal early exit through errors.
type Result struct {
	value any
	halt  *Response
}

// Continue resumes the pipeline with the stage's value.
func Continue(v any) Result {
	return Result{value: v}
}

// Halt terminates the pipeline with a ready-made response. The remaining
// stages do not run and no error is surfaced.
func Halt(resp *Response) Result {
	return Result{halt: resp}
}

// Halted reports whether the result short-circuits, and with what.
func (r Result) Halted() (*Response, bool) {
	return r.halt, r.halt != nil
}

// Value returns the continue value.
func (r Result) Value() any {
	return r.value
}
