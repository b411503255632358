// Package vm implements MiniScript's three-address bytecode representation
// and its execution engine (spec.md §4.2-§4.5, components C2-C5): the
// Opcode/Line instruction format, the per-call Context frame, the Evaluator
// that interprets a single Line, and the Machine that drives a stack of
// Contexts to completion.
//
// It also hosts the VM-only Value kinds (Function, TempRef, VarRef,
// SeqElem) that reference Context/bytecode concepts and would otherwise
// force lang/value to depend on this package.
package vm

import (
	"fmt"

	"github.com/mna/miniscript/lang/value"
)

// Opcode identifies the operation a Line performs. Unlike the teacher's
// stack-machine Opcode, these are three-address: each reads up to two
// operands (rhsA, rhsB) and writes at most one destination (lhs), so the
// "stack picture" doc-comment convention is replaced with a before/after
// operand picture.
type Opcode uint8

const (
	Noop Opcode = iota // - Noop -

	AssignA        // lhs = rhsA
	AssignImplicit // lhs = rhsA, evaluated exactly like AssignA

	// arithmetic
	APlusB      // lhs = rhsA + rhsB
	AMinusB     // lhs = rhsA - rhsB
	ATimesB     // lhs = rhsA * rhsB
	ADividedByB // lhs = rhsA / rhsB
	AModB       // lhs = rhsA % rhsB
	APowB       // lhs = rhsA ^ rhsB

	// comparisons
	AEqualB       // lhs = rhsA == rhsB
	ANotEqualB    // lhs = rhsA != rhsB
	AGreaterThanB // lhs = rhsA > rhsB
	AGreatOrEqualB
	ALessThanB
	ALessOrEqualB

	// fuzzy boolean
	AAndB // lhs = clamp01(rhsA * rhsB)
	AOrB  // lhs = clamp01(rhsA + rhsB - rhsA*rhsB)

	AisaB // lhs = rhsA isa rhsB

	BindAssignA // lhs = close-over(rhsA) capturing the current frame's variable map
	CopyA       // lhs = deep-copy(rhsA), used for list/map literals and `new`
	NotA        // lhs = !rhsA

	// control flow: rhsA is always a Number line index; GotoA takes no
	// condition, the GotoAif* variants branch on rhsB's truth.
	GotoA
	GotoAifB        // branch on any non-zero (fuzzy) truth of rhsB
	GotoAifTrulyB   // branch only on int(rhsB) != 0 (used by `or`'s short-circuit)
	GotoAifNotB

	// calling
	PushParam       // stage rhsA as the next call argument
	CallFunctionA   // lhs = call rhsA with rhsB staged arguments (rhsB is a Number count)
	CallIntrinsicA  // lhs = call intrinsic id rhsA with rhsB staged arguments
	ReturnA         // return rhsA from the current frame

	// sequence access
	ElemBofA     // lhs = rhsA[rhsB] (or prototype lookup when rhsB is a string key)
	ElemBofIterA // lhs = {key: K, value: V} for iteration index rhsB over rhsA
	LengthOfA    // lhs = len(rhsA)

	maxOpcode
)

var opcodeNames = [...]string{
	Noop:           "Noop",
	AssignA:        "AssignA",
	AssignImplicit: "AssignImplicit",
	APlusB:         "APlusB",
	AMinusB:        "AMinusB",
	ATimesB:        "ATimesB",
	ADividedByB:    "ADividedByB",
	AModB:          "AModB",
	APowB:          "APowB",
	AEqualB:        "AEqualB",
	ANotEqualB:     "ANotEqualB",
	AGreaterThanB:  "AGreaterThanB",
	AGreatOrEqualB: "AGreatOrEqualB",
	ALessThanB:     "ALessThanB",
	ALessOrEqualB:  "ALessOrEqualB",
	AAndB:          "AAndB",
	AOrB:           "AOrB",
	AisaB:          "AisaB",
	BindAssignA:    "BindAssignA",
	CopyA:          "CopyA",
	NotA:           "NotA",
	GotoA:          "GotoA",
	GotoAifB:       "GotoAifB",
	GotoAifTrulyB:  "GotoAifTrulyB",
	GotoAifNotB:    "GotoAifNotB",
	PushParam:      "PushParam",
	CallFunctionA:  "CallFunctionA",
	CallIntrinsicA: "CallIntrinsicA",
	ReturnA:        "ReturnA",
	ElemBofA:       "ElemBofA",
	ElemBofIterA:   "ElemBofIterA",
	LengthOfA:      "LengthOfA",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", op)
}

// Operand is anything a Line's lhs/rhsA/rhsB may hold: a Value to resolve
// (TempRef, VarRef, SeqElem, or a literal value), or nil when the slot is
// unused by this opcode.
type Operand = value.Value

// Line is one three-address instruction (spec.md §4.2). Jump targets
// (GotoA's rhsA, GotoAif*'s rhsA) are Number operands holding a line index
// within the Code list currently executing.
type Line struct {
	Lhs      Operand
	Op       Opcode
	RhsA     Operand
	RhsB     Operand
	Location SourceLocation
}

// SourceLocation names the line of source a Line was compiled from, for
// error reporting (spec.md §4.5/§7).
type SourceLocation struct {
	ContextName string
	LineNum     int
}
