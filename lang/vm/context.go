package vm

import "github.com/mna/miniscript/lang/value"

// MaxPendingArguments is the limit on arguments staged by PushParam before
// a call consumes them (spec.md §4.3).
const MaxPendingArguments = 255

// Context is one call frame (spec.md §4.3, component C3): the temp vector,
// the local variable map, any captured outer-scope map, and the bookkeeping
// a Machine needs to drive and resume it. Grounded on the teacher's
// lang/machine.Frame/Thread split, collapsed into a single struct because
// MiniScript has no separate operand stack to track.
type Context struct {
	// Name identifies the frame for error locations (the function's name,
	// or "main" for the global frame).
	Name string

	// Code is the Line list this frame executes; PC indexes into it.
	Code []Line
	PC   int

	Temps  []value.Value
	Locals *value.Map

	// Outer is the variable map captured by BindAssignA when this frame's
	// function was created as a closure; nil for the global frame and for
	// functions that never captured anything.
	Outer *value.Map

	Self  value.Value
	Super value.Value

	// Parent is the global frame for every call frame (NextCallContext and
	// ManuallyPushCall set it so), used for the "globals" shortcut and nil
	// only for the global frame itself.
	Parent *Context

	// Fn is the Function this context is executing, used to fill in
	// default parameter values and the name shown in error locations.
	Fn *Function

	pendingArgs []value.Value

	// ResultStorage is where the Machine stores this frame's return value
	// once it completes, resolved against the calling frame (the one below
	// this frame on the Machine's stack).
	ResultStorage value.Value

	// PartialResult stashes an in-progress CallIntrinsicA result across
	// steps (spec.md §4.4/§5): non-nil means the Line at PC must be
	// re-executed with this partial state instead of starting over.
	PartialResult *IntrinsicResult

	// partialArgs holds the arguments resolved for a still-pending
	// intrinsic call, so resuming it on the next step does not re-pop
	// pendingArgs (which would already be empty).
	partialArgs []value.Value

	// Registry backs the final step of GetVar's resolution order and is
	// shared by every Context in a Machine's stack.
	Registry *Registry
}

// NewGlobalContext creates the root frame for a Machine: no parent, no
// outer capture, self bound to null.
func NewGlobalContext(name string, code []Line, registry *Registry) *Context {
	return &Context{
		Name:     name,
		Code:     code,
		Locals:   value.NewMap(0),
		Self:     value.Nil,
		Registry: registry,
	}
}

// SetTemp grows the temp vector as needed before writing index i.
func (c *Context) SetTemp(i int, v value.Value) {
	if i >= len(c.Temps) {
		grown := make([]value.Value, i+1)
		copy(grown, c.Temps)
		for j := len(c.Temps); j < len(grown); j++ {
			grown[j] = value.Nil
		}
		c.Temps = grown
	}
	c.Temps[i] = v
}

// GetTemp returns temp i, or null if it has never been written.
func (c *Context) GetTemp(i int) value.Value {
	if i < 0 || i >= len(c.Temps) {
		return value.Nil
	}
	return c.Temps[i]
}

// globalFrame walks Parent to the root context, used by the "globals"
// shortcut and by GetVar's final-parent-frame lookup.
func (c *Context) globalFrame() *Context {
	fr := c
	for fr.Parent != nil {
		fr = fr.Parent
	}
	return fr
}

// GetVar resolves name following spec.md §4.3's order: self, the locals/
// globals/outer shortcuts, the local map, the captured outer map, the
// global frame's locals (only when this frame has a parent), then the
// intrinsic registry. It fails with UndefinedIdentifier if none match.
func (c *Context) GetVar(name string) (value.Value, error) {
	switch name {
	case "self":
		return c.Self, nil
	case "locals":
		return c.Locals, nil
	case "globals":
		return c.globalFrame().Locals, nil
	case "outer":
		if c.Outer != nil {
			return c.Outer, nil
		}
		return c.Locals, nil
	}

	if v, ok := c.Locals.Get(value.String(name)); ok {
		return v, nil
	}
	if c.Outer != nil {
		if v, ok := c.Outer.Get(value.String(name)); ok {
			return v, nil
		}
	}
	if c.Parent != nil {
		if v, ok := c.globalFrame().Locals.Get(value.String(name)); ok {
			return v, nil
		}
	}
	if c.Registry != nil {
		if fn, ok := c.Registry.Lookup(name); ok {
			return fn, nil
		}
	}
	return nil, value.NewError(value.UndefinedIdentifier, "%s is not defined", name)
}

// SetVar assigns name := v in the local scope, rejecting the reserved
// shortcut names "globals" and "locals"; writing "self" also updates the
// context's Self slot (spec.md §4.3).
func (c *Context) SetVar(name string, v value.Value) error {
	switch name {
	case "globals", "locals":
		return value.NewError(value.RuntimeError, "cannot assign to %q", name)
	case "self":
		c.Self = v
		return nil
	}
	return c.Locals.Set(value.String(name), v)
}

// PushParamArgument stages v as the next call argument, enforcing the
// pending-argument cap (spec.md §4.3).
func (c *Context) PushParamArgument(v value.Value) error {
	if len(c.pendingArgs) >= MaxPendingArguments {
		return value.NewError(value.RuntimeError, "too many pending call arguments (max %d)", MaxPendingArguments)
	}
	c.pendingArgs = append(c.pendingArgs, v)
	return nil
}

// popPendingArgs pops the last argCount staged arguments and returns them
// in original call order (PushParam stages them left-to-right, so the
// popped tail is already first-to-last; it is copied out because later
// PushParam calls reuse the backing array).
func (c *Context) popPendingArgs(argCount int) ([]value.Value, error) {
	if argCount > len(c.pendingArgs) {
		return nil, value.NewError(value.RuntimeError, "call requested %d arguments but only %d are staged", argCount, len(c.pendingArgs))
	}
	start := len(c.pendingArgs) - argCount
	args := c.pendingArgs[start:]
	c.pendingArgs = c.pendingArgs[:start]

	ordered := make([]value.Value, len(args))
	copy(ordered, args)
	return ordered, nil
}

// NextCallContext pops argCount staged arguments into a fresh frame's
// locals, honoring gotSelf's "first parameter named self is skipped when
// invoked via dot" rule and filling any unspecified trailing parameters
// with fn's default values (spec.md §4.3).
func (c *Context) NextCallContext(fn *Function, argCount int, gotSelf bool, resultStorage value.Value) (*Context, error) {
	ordered, err := c.popPendingArgs(argCount)
	if err != nil {
		return nil, err
	}

	params := fn.Params
	if gotSelf && len(params) > 0 && params[0].Name == "self" {
		params = params[1:]
	}

	nf := &Context{
		Name:          fn.Name,
		Code:          fn.Code,
		Locals:        value.NewMap(len(params)),
		Fn:            fn,
		Parent:        c.globalFrame(),
		Outer:         fn.OuterVars,
		ResultStorage: resultStorage,
		Registry:      c.Registry,
		Self:          value.Nil,
	}
	if gotSelf {
		nf.Self = c.Self
	}

	for i, p := range params {
		var v value.Value
		switch {
		case i < len(ordered):
			v = ordered[i]
		case p.Default != nil:
			v = p.Default
		default:
			v = value.Nil
		}
		if err := nf.Locals.Set(value.String(p.Name), v); err != nil {
			return nil, err
		}
	}
	return nf, nil
}

// StoreValue dispatches on lvalue's concrete operand kind: TempRef writes
// a temp slot, VarRef writes a named variable, SeqElem index-assigns into
// its resolved target (spec.md §4.3). m resolves a SeqElem's Target/Index,
// which the parser leaves as TempRef/VarRef/SeqElem placeholders rather
// than already-resolved values (mirrors resolveOperand's SeqElem case on
// the read path).
func (c *Context) StoreValue(m *Machine, lvalue value.Value, v value.Value) error {
	switch lv := lvalue.(type) {
	case TempRef:
		c.SetTemp(lv.Index, v)
		return nil
	case VarRef:
		return c.SetVar(lv.Name, v)
	case SeqElem:
		return storeSeqElem(m, c, lv, v)
	case nil:
		return nil
	default:
		return value.NewError(value.RuntimeError, "invalid assignment target %v", lvalue)
	}
}

func storeSeqElem(m *Machine, c *Context, lv SeqElem, v value.Value) error {
	target, err := resolveOperand(m, c, lv.Target)
	if err != nil {
		return err
	}
	index, err := resolveOperand(m, c, lv.Index)
	if err != nil {
		return err
	}

	if target == nil || target.Kind() == value.KindNull {
		return value.NewError(value.TypeError, "cannot index into null")
	}
	switch t := target.(type) {
	case *value.List:
		idx, ok := index.(value.Number)
		if !ok {
			return value.NewError(value.TypeError, "list index must be a number")
		}
		i, err := value.ResolveIndex(t.Len(), float64(idx))
		if err != nil {
			return err
		}
		t.Set(i, v)
		return nil
	case *value.Map:
		return t.Set(index, v)
	default:
		return value.NewError(value.TypeError, "%s is not indexable", target.Kind())
	}
}
