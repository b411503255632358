package vm

import (
	"strconv"

	"github.com/mna/miniscript/lang/value"
)

// TempRef is an L-value/R-value operand naming a slot in the current
// Context's temp vector (spec.md §4.3: "temp 0 conventionally holds the
// return value").
type TempRef struct {
	Index int
}

func (TempRef) Kind() value.Kind   { return value.KindTempRef }
func (TempRef) Truth() bool        { return true }
func (t TempRef) String() string   { return "@temp" + strconv.Itoa(t.Index) }

// VarRef is an L-value/R-value operand naming a variable by identifier,
// resolved through Context.GetVar's lookup chain (spec.md §4.3). NoInvoke
// is set by the parser's `@` address-of operator so that a later
// CallFunctionA-equivalent evaluation step does not auto-invoke the
// resolved function (spec.md §4.6).
type VarRef struct {
	Name     string
	NoInvoke bool
}

func (VarRef) Kind() value.Kind   { return value.KindVarRef }
func (VarRef) Truth() bool        { return true }
func (v VarRef) String() string   { return v.Name }

// SeqElem is an L-value/R-value operand naming an index or key access into
// a target sequence (list, map, or string), left unresolved by the parser
// in statement-start position so the enclosing assignment can rewrite it
// into an indexed store rather than eagerly loading it (spec.md §4.6
// "Call-expression tail"). NoInvoke mirrors VarRef's.
type SeqElem struct {
	Target   value.Value
	Index    value.Value
	NoInvoke bool
}

func (SeqElem) Kind() value.Kind { return value.KindSeqElem }
func (SeqElem) Truth() bool      { return true }
func (s SeqElem) String() string { return "<seqelem>" }
