package vm

import "github.com/mna/miniscript/lang/value"

// Param is one formal parameter of a Function: a name and an optional
// default value, already evaluated in the enclosing scope at parse time
// (spec.md §4.6 "Function literal").
type Param struct {
	Name    string
	Default value.Value
}

// Function is a MiniScript function literal: its code, its parameter
// list, and (once closed over by BindAssignA) the outer variable map it
// captured. Grounded on the teacher's lang/machine.Function/Funcode split,
// collapsed into one type since there is no separate "compiled code
// object vs. bound closure" distinction here: BindAssignA simply returns a
// shallow copy with OuterVars set.
type Function struct {
	Name   string
	Params []Param
	Code   []Line

	// OuterVars is the enclosing frame's variable map, shared by reference
	// per spec.md §9: mutations visible to the closure after capture are
	// visible to the capturing scope too, and vice versa. Nil until bound.
	OuterVars *value.Map
}

func (*Function) Kind() value.Kind   { return value.KindFunction }
func (*Function) Truth() bool        { return true }
func (f *Function) String() string {
	if f.Name != "" {
		return "function: " + f.Name
	}
	return "function"
}

// Bind returns a copy of f closing over vars, the effect of BindAssignA
// (spec.md §4.4). It is a no-op copy, not a deep clone: Code and Params
// are shared, only OuterVars changes. `super` is resolved separately, at
// call time, from the __isa parent of the map the callee was found in
// (spec.md §4.5) rather than baked into the Function here.
func (f *Function) Bind(vars *value.Map) *Function {
	cp := *f
	cp.OuterVars = vars
	return &cp
}
