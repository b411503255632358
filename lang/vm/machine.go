package vm

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mna/miniscript/lang/value"
)

// discardLogger is the low-cost default for Machine.Log: a host that
// never sets it pays only the handler's Debug-level check per would-be log
// call, since the text handler's default level is Info.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Machine drives a stack of Contexts to completion, one Line per Step
// call (spec.md §4.5, component C5; §5 "single-threaded cooperative").
// Grounded on the teacher's lang/machine.Thread (step counting,
// cancellation context, Stdout sink), adapted from a per-function
// stack-bytecode loop to a Context-stack, Line-at-a-time interpreter.
type Machine struct {
	Stack    []*Context
	Registry *Registry
	Stdout   io.Writer

	// Per-type prototype maps, lazily materialized on first access by the
	// intrinsic registry and thereafter shared by every value of that type
	// via __isa (spec.md §4.7/§5).
	NumberProto, StringProto, ListProto, MapProto, FunctionProto *value.Map

	// Yielded is set by the `yield` intrinsic; the host loop is expected
	// to observe and clear it between Step calls (spec.md §5).
	Yielded bool

	Started time.Time

	// Log receives step-tracing diagnostics (one record per executed Line)
	// at Debug level (spec.md §3's ambient logging addition). Defaults to a
	// no-op logger; an embedding host sets it to opt into tracing.
	Log *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	steps    uint64
	MaxSteps uint64
}

// NewMachine builds a Machine with a fresh global frame executing code.
func NewMachine(ctx context.Context, code []Line, registry *Registry) *Machine {
	ctx, cancel := context.WithCancel(ctx)
	m := &Machine{
		Registry: registry,
		Stdout:   os.Stdout,
		Started:  time.Now(),
		Log:      discardLogger(),
		ctx:      ctx,
		cancel:   cancel,
	}
	m.Stack = []*Context{NewGlobalContext("main", code, registry)}
	return m
}

func (m *Machine) topIsAtEnd() bool {
	top := m.Stack[len(m.Stack)-1]
	return top.PC >= len(top.Code)
}

// Done reports whether only the global frame remains and it has run off
// the end of its code (spec.md §4.5).
func (m *Machine) Done() bool {
	return len(m.Stack) == 1 && m.topIsAtEnd()
}

// Step pops any frames whose pc has reached end-of-code, then executes one
// Line of the (new) top frame. Errors without a source location are
// annotated with the nearest one by walking the stack (spec.md §4.5).
func (m *Machine) Step() error {
	if err := m.ctx.Err(); err != nil {
		return value.NewError(value.RuntimeError, "execution cancelled: %v", err)
	}
	for len(m.Stack) > 1 && m.topIsAtEnd() {
		m.popFrame(value.Nil)
	}
	if m.Done() {
		return nil
	}

	top := m.Stack[len(m.Stack)-1]
	ln := &top.Code[top.PC]
	m.steps++
	if m.MaxSteps > 0 && m.steps > m.MaxSteps {
		return value.NewError(value.RuntimeError, "step limit exceeded")
	}
	if m.Log != nil {
		m.Log.Debug("step", "pc", top.PC, "op", ln.Op, "frame", len(m.Stack))
	}

	var err error
	switch ln.Op {
	case CallFunctionA:
		err = m.execCallFunction(top, ln)
	case ReturnA:
		err = m.execReturn(top, ln)
	default:
		var jumped bool
		jumped, err = Evaluate(m, top, ln)
		if err == nil && !jumped {
			top.PC++
		}
	}

	if err != nil {
		if verr, ok := err.(*value.Error); ok && verr.Location == nil {
			err = m.annotateLocation(err)
			_ = verr
		}
		return err
	}
	return nil
}

// annotateLocation attaches the nearest source location to err by walking
// the Context stack from the top down, per spec.md §4.5.
func (m *Machine) annotateLocation(err error) error {
	for i := len(m.Stack) - 1; i >= 0; i-- {
		fr := m.Stack[i]
		if fr.PC < len(fr.Code) {
			loc := fr.Code[fr.PC].Location
			return value.WithLocation(err, value.SourceLocation{ContextName: loc.ContextName, LineNum: loc.LineNum})
		}
	}
	return err
}

// popFrame removes the top frame, storing result into its caller via
// ResultStorage, unless the top frame is the global frame, in which case
// it is simply marked finished.
func (m *Machine) popFrame(result value.Value) error {
	if len(m.Stack) == 1 {
		top := m.Stack[0]
		top.PC = len(top.Code)
		return nil
	}
	callee := m.Stack[len(m.Stack)-1]
	m.Stack = m.Stack[:len(m.Stack)-1]
	caller := m.Stack[len(m.Stack)-1]
	return caller.StoreValue(m, callee.ResultStorage, result)
}

func (m *Machine) execReturn(c *Context, ln *Line) error {
	v, err := resolveFullLiteral(m, c, ln.RhsA, value.DefaultRecursionLimit)
	if err != nil {
		return err
	}
	return m.popFrame(v)
}

// execCallFunction implements CallFunctionA (spec.md §4.5): resolving
// self/super when the callee was reached through a dot chain, handling
// non-function callees, and dispatching to either a new bytecode Context
// (user Function) or a direct native call (intrinsic).
func (m *Machine) execCallFunction(c *Context, ln *Line) error {
	countVal, err := resolveOperand(m, c, ln.RhsB)
	if err != nil {
		return err
	}
	argCountN, _ := countVal.(value.Number)
	argCount := int(argCountN)

	var (
		callee   value.Value
		gotSelf  bool
		newSelf  value.Value = value.Nil
		superVal value.Value = value.Nil
	)

	if seq, ok := ln.RhsA.(SeqElem); ok {
		target, err := resolveOperand(m, c, seq.Target)
		if err != nil {
			return err
		}
		index, err := resolveOperand(m, c, seq.Index)
		if err != nil {
			return err
		}
		callee, err = elemOf(m, target, index)
		if err != nil {
			return err
		}
		gotSelf = true
		if vr, ok := seq.Target.(VarRef); ok && vr.Name == "super" {
			newSelf = c.Self
		} else {
			newSelf = target
		}
		if mp, ok := target.(*value.Map); ok {
			if parent, ok2 := mp.Isa(); ok2 {
				superVal = parent
			}
		}
	} else {
		callee, err = resolveOperand(m, c, ln.RhsA)
		if err != nil {
			return err
		}
	}

	switch fn := callee.(type) {
	case *Function:
		nf, err := c.NextCallContext(fn, argCount, gotSelf, ln.Lhs)
		if err != nil {
			return err
		}
		if gotSelf {
			nf.Self = newSelf
		}
		nf.Super = superVal
		c.PC++
		m.Stack = append(m.Stack, nf)
		return nil
	case *IntrinsicFunc:
		// An intrinsic reached through a dot chain whose first parameter is
		// named self receives the receiver as that first argument. On a
		// resumed pending call the arguments were already captured.
		params := fn.Intrinsic.Params
		if gotSelf && c.PartialResult == nil && len(params) > 0 && params[0].Name == "self" && argCount <= len(c.pendingArgs) {
			at := len(c.pendingArgs) - argCount
			rest := append([]value.Value{newSelf}, c.pendingArgs[at:]...)
			c.pendingArgs = append(c.pendingArgs[:at], rest...)
			argCount++
		}
		settled, err := m.callIntrinsic(c, fn.Intrinsic, argCount, ln.Lhs)
		if err != nil {
			return err
		}
		if settled {
			c.PC++
		}
		return nil
	default:
		if argCount > 0 {
			return value.NewError(value.TooManyArguments, "cannot call non-function value %s with arguments", callee.Kind())
		}
		if err := c.StoreValue(m, ln.Lhs, callee); err != nil {
			return err
		}
		c.PC++
		return nil
	}
}

// callIntrinsic runs in's Body, popping argCount staged arguments on first
// invocation and reusing them across resumptions of a still-pending call
// (spec.md §4.4/§4.7). It returns settled=true once the result is stored.
func (m *Machine) callIntrinsic(c *Context, in *Intrinsic, argCount int, lhs value.Value) (bool, error) {
	var args []value.Value
	if c.PartialResult != nil {
		args = c.partialArgs
	} else {
		a, err := c.popPendingArgs(argCount)
		if err != nil {
			return false, err
		}
		args = fillDefaults(in.Params, a)
	}

	res, err := in.Fn(m, c, args, c.PartialResult)
	if err != nil {
		c.PartialResult = nil
		c.partialArgs = nil
		return false, err
	}
	if !res.Done {
		rcopy := res
		c.PartialResult = &rcopy
		c.partialArgs = args
		return false, nil
	}
	c.PartialResult = nil
	c.partialArgs = nil
	return true, c.StoreValue(m, lhs, res.Value)
}

func fillDefaults(params []Param, args []value.Value) []value.Value {
	if len(args) >= len(params) {
		return args
	}
	out := make([]value.Value, len(params))
	copy(out, args)
	for i := len(args); i < len(params); i++ {
		if params[i].Default != nil {
			out[i] = params[i].Default
		} else {
			out[i] = value.Nil
		}
	}
	return out
}

// ManuallyPushCall lets the host inject a call from outside any running
// script: a fresh frame with no arguments and no self (spec.md §4.5).
func (m *Machine) ManuallyPushCall(fn *Function, resultStorage value.Value) error {
	nf := &Context{
		Name:          fn.Name,
		Code:          fn.Code,
		Locals:        value.NewMap(len(fn.Params)),
		Fn:            fn,
		Parent:        m.Stack[0],
		Outer:         fn.OuterVars,
		ResultStorage: resultStorage,
		Registry:      m.Registry,
		Self:          value.Nil,
	}
	for _, p := range fn.Params {
		v := value.Nil
		if p.Default != nil {
			v = p.Default
		}
		if err := nf.Locals.Set(value.String(p.Name), v); err != nil {
			return err
		}
	}
	m.Stack = append(m.Stack, nf)
	return nil
}

// Stop forces the current script to completion: collapses the stack to
// the global frame and advances its pc to end-of-code (spec.md §4.5/§5).
func (m *Machine) Stop() {
	global := m.Stack[0]
	m.Stack = m.Stack[:1]
	global.PC = len(global.Code)
}

// Reset collapses the stack and rewinds the global frame to its start.
func (m *Machine) Reset() {
	global := m.Stack[0]
	m.Stack = m.Stack[:1]
	global.PC = 0
}

// Cancel stops execution and releases the Machine's context, used by the
// host to enforce wall-clock deadlines across repeated Step calls.
func (m *Machine) Cancel() {
	m.cancel()
}

// IsA implements `isa`: for primitives, true iff typeValue is exactly the
// matching prototype map; for maps, it walks the __isa chain up to
// MaxIsaChain links (spec.md §4.1).
func (m *Machine) IsA(v, typeValue value.Value) (bool, error) {
	mp, isMap := v.(*value.Map)
	if !isMap {
		return m.primitiveProto(v) == typeValue, nil
	}
	tp, ok := typeValue.(*value.Map)
	if !ok {
		return false, nil
	}
	cur := mp
	for i := 0; i < value.MaxIsaChain; i++ {
		if cur == tp {
			return true, nil
		}
		parent, ok := cur.Isa()
		if !ok {
			return false, nil
		}
		cur = parent
	}
	return false, value.NewError(value.KeyError, "__isa chain exceeds maximum length of %d", value.MaxIsaChain)
}

func (m *Machine) primitiveProto(v value.Value) value.Value {
	switch v.(type) {
	case value.Number:
		return m.NumberProto
	case value.String:
		return m.StringProto
	case *value.List:
		return m.ListProto
	case *Function, *IntrinsicFunc:
		return m.FunctionProto
	default:
		return nil
	}
}

// LookupMember implements ElemBofA's string-index prototype lookup
// (spec.md §4.4): a map's own entries take priority, then its __isa
// chain, up to MaxIsaChain links; primitives consult only the own entries
// of their per-type prototype map (its __isa, if any, is not followed).
func (m *Machine) LookupMember(target value.Value, name string) (value.Value, error) {
	key := value.String(name)
	if mp, ok := target.(*value.Map); ok {
		cur := mp
		for i := 0; i < value.MaxIsaChain; i++ {
			if v, found := cur.Get(key); found {
				return v, nil
			}
			parent, ok := cur.Isa()
			if !ok {
				return nil, value.NewError(value.KeyError, "map has no key %q", name)
			}
			cur = parent
		}
		return nil, value.NewError(value.KeyError, "__isa chain exceeds maximum length of %d", value.MaxIsaChain)
	}

	proto := m.primitiveProto(target)
	pm, ok := proto.(*value.Map)
	if !ok {
		return nil, value.NewError(value.KeyError, "%s has no key %q", target.Kind(), name)
	}
	if v, found := pm.Get(key); found {
		return v, nil
	}
	return nil, value.NewError(value.KeyError, "%s has no key %q", target.Kind(), name)
}

// elemOf implements ElemBofA's general indexing contract: a string index
// is a member/prototype lookup regardless of target kind; otherwise the
// target's own numeric indexing rule applies (spec.md §4.4).
func elemOf(m *Machine, target, index value.Value) (value.Value, error) {
	if s, ok := index.(value.String); ok {
		if m == nil {
			return nil, value.NewError(value.RuntimeError, "member lookup unavailable in this context")
		}
		return m.LookupMember(target, string(s))
	}

	if mp, ok := target.(*value.Map); ok {
		return elemOfMap(m, mp, index)
	}
	return elemOfOther(target, index)
}

// elemOfMap walks a map's own entry then its __isa chain for a non-string
// index, bounded to MaxIsaChain links like LookupMember's string-index walk
// (spec.md §4.4, §8: a self-referential __isa chain fails with a key error
// rather than looping forever).
func elemOfMap(m *Machine, mp *value.Map, index value.Value) (value.Value, error) {
	cur := mp
	for i := 0; i < value.MaxIsaChain; i++ {
		if v, ok := cur.Get(index); ok {
			return v, nil
		}
		parent, ok := cur.Isa()
		if !ok {
			return nil, value.NewError(value.KeyError, "map has no matching key")
		}
		cur = parent
	}
	return nil, value.NewError(value.KeyError, "__isa chain exceeds maximum length of %d", value.MaxIsaChain)
}

func elemOfOther(target, index value.Value) (value.Value, error) {
	switch t := target.(type) {
	case *value.List:
		n, ok := index.(value.Number)
		if !ok {
			return nil, value.NewError(value.TypeError, "list index must be a number")
		}
		i, err := value.ResolveIndex(t.Len(), float64(n))
		if err != nil {
			return nil, err
		}
		return t.At(i), nil
	case value.String:
		n, ok := index.(value.Number)
		if !ok {
			return nil, value.NewError(value.TypeError, "string index must be a number")
		}
		runes := t.Runes()
		i, err := value.ResolveIndex(len(runes), float64(n))
		if err != nil {
			return nil, err
		}
		return value.String(runes[i]), nil
	case value.Null:
		return nil, value.NewError(value.TypeError, "cannot index into null")
	default:
		return nil, value.NewError(value.TypeError, "%s is not indexable", target.Kind())
	}
}
