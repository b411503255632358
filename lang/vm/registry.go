package vm

import "github.com/mna/miniscript/lang/value"

// IntrinsicResult is what an intrinsic body returns: either a final Value
// (Done true) or a placeholder signalling the Evaluator to stash it as the
// owning Context's PartialResult and re-run the same Line next step
// (spec.md §4.4/§4.7/§5 — used by `wait` and similar multi-tick
// operations; `yield` completes at once and only sets Machine.Yielded).
type IntrinsicResult struct {
	Value value.Value
	Done  bool
}

// Done wraps v as a completed IntrinsicResult, the common case.
func Done(v value.Value) IntrinsicResult { return IntrinsicResult{Value: v, Done: true} }

// Pending returns a not-yet-complete result carrying arbitrary state the
// body itself is responsible for interpreting on the next call (typically
// by storing it in the value it returns, e.g. a wrapped deadline).
func Pending(state value.Value) IntrinsicResult { return IntrinsicResult{Value: state, Done: false} }

// Body is the resumable signature every intrinsic implements (spec.md
// §4.7): given the calling Context, the call's arguments (already popped
// from the Context and default-filled by the Machine) and any partial
// state stashed by a prior incomplete call, produce a Result.
type Body func(m *Machine, c *Context, args []value.Value, partial *IntrinsicResult) (IntrinsicResult, error)

// Intrinsic is one registered entry: a stable numeric ID assigned in
// registration order, its script-visible name, its declared parameters
// (for default-filling the same way user Functions are), and its Body.
type Intrinsic struct {
	ID     int
	Name   string
	Params []Param
	Fn     Body
}

// Registry is the set of intrinsics a Machine knows how to call, indexed
// both by name (for GetVar's final fallback and for funcRef) and by ID
// (for CallIntrinsicA, whose rhsA operand is the numeric ID). Grounded on
// the teacher's lang/machine.Universe, generalized from a flat
// already-built value map into an ID-addressed, resumable-body registry
// since intrinsics here have their own call/resume protocol.
type Registry struct {
	byID   []*Intrinsic
	byName map[string]*Intrinsic
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Intrinsic)}
}

// Register adds name as a new intrinsic, assigning it the next ID in
// registration order, and returns the new *Intrinsic entry. Lookup is
// what wraps an entry as a callable IntrinsicFunc value.
func (r *Registry) Register(name string, params []Param, fn Body) *Intrinsic {
	in := &Intrinsic{ID: len(r.byID), Name: name, Params: params, Fn: fn}
	r.byID = append(r.byID, in)
	r.byName[name] = in
	return in
}

// ByID returns the intrinsic registered with the given ID.
func (r *Registry) ByID(id int) (*Intrinsic, bool) {
	if id < 0 || id >= len(r.byID) {
		return nil, false
	}
	return r.byID[id], true
}

// ByName returns the intrinsic registered under name.
func (r *Registry) ByName(name string) (*Intrinsic, bool) {
	in, ok := r.byName[name]
	return in, ok
}

// Lookup is GetVar's final fallback step: it resolves name to a callable
// Function value wrapping the intrinsic, or false if no such intrinsic is
// registered.
func (r *Registry) Lookup(name string) (value.Value, bool) {
	in, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return &IntrinsicFunc{Intrinsic: in}, true
}

// IntrinsicFunc is the Function-shaped Value wrapping a registered
// Intrinsic so it can flow through CallFunctionA-style dispatch and be
// stored as a map value (e.g. bound into a per-type prototype map) just
// like a user-defined Function.
type IntrinsicFunc struct {
	Intrinsic *Intrinsic
}

func (*IntrinsicFunc) Kind() value.Kind  { return value.KindFunction }
func (*IntrinsicFunc) Truth() bool       { return true }
func (f *IntrinsicFunc) String() string  { return "function: " + f.Intrinsic.Name }
