// Package replio drives a Parser/Machine pair one REPL line at a time,
// implementing spec.md §4.6's "REPL partial input" rule and §6's "implicit
// REPL echo": buffer a line whose last non-comment token isn't one of the
// syntactically-complete kinds, otherwise compile the buffered chunk and,
// once no block is left open, run the newly compiled code and echo a bare
// expression statement's result the way the host's interactive loop would.
//
// Grounded on the shape of the teacher's own maincmd command dispatch (a
// small driver type wrapping mainer.Stdio), adapted here to loop over
// parser.Parser/vm.Machine instead of scanner/parser/resolver/compiler,
// since MiniScript's single-pass parser already tracks its own partial-
// input state (Incomplete, FinalizeProgram).
package replio

import (
	"strings"

	"github.com/mna/miniscript/internal/hostio"
	"github.com/mna/miniscript/lang/lexer"
	"github.com/mna/miniscript/lang/parser"
	"github.com/mna/miniscript/lang/token"
	"github.com/mna/miniscript/lang/value"
	"github.com/mna/miniscript/lang/vm"
)

// Driver feeds a Parser/Machine pair source text one line at a time.
type Driver struct {
	P   *parser.Parser
	M   *vm.Machine
	Out hostio.Sink

	pending []string
}

// New creates a Driver over an existing Parser and Machine. The Machine's
// global frame is expected to run p's Program(); Feed keeps it reattached
// as the Parser's code list grows.
func New(p *parser.Parser, m *vm.Machine, out hostio.Sink) *Driver {
	return &Driver{P: p, M: m, Out: out}
}

// Continuation reports whether the Driver currently has buffered, not-yet-
// complete input, so the host can print a continuation prompt instead of
// the primary one.
func (d *Driver) Continuation() bool {
	return len(d.pending) > 0 || d.P.Incomplete()
}

// Feed appends one line of input. It returns ranStatement=true once the
// buffered input compiled into a complete, block-closed chunk and the
// Machine has finished running the code it added; err is any compile or
// runtime error encountered (a compile error already collected by the
// Parser cannot be retried, and a runtime error has nothing further to
// execute, so both clear the pending buffer).
//
// Buffered lines have their trailing comments removed and are joined with
// a space rather than a newline, so a line left open by a trailing
// operator, comma or open bracket continues onto the next one as a single
// statement. The completeness check (spec.md §4.6 "REPL partial input") is
// run against that joined text WITHOUT a trailing newline: the lexer only
// emits an EOL token where source actually contains a line break, so
// scanning up to (not past) the last character typed lets a trailing
// operator or open bracket correctly read back as "not complete" instead
// of having a synthetic EOL mask it.
func (d *Driver) Feed(line string) (ranStatement bool, err error) {
	d.pending = append(d.pending, lexer.TrimComment(line))
	raw := strings.Join(d.pending, " ")

	last := lexer.LastToken(raw)
	if last.Kind != token.Illegal && !last.IsComplete() {
		return false, nil
	}

	d.pending = nil
	before := len(d.P.Program())
	if perr := d.P.Parse(raw + "\n"); perr != nil {
		return false, perr
	}
	if d.P.Incomplete() {
		return false, nil
	}
	return true, d.run(before)
}

// run reattaches the Machine's global frame to the Parser's (possibly
// grown) code list and steps to completion, then echoes the result of a
// trailing bare expression statement, identified by its last emitted line
// targeting a TempRef rather than a named variable (spec.md §6 "implicit
// REPL echo"; an assignment statement's last line targets a VarRef/SeqElem
// and is not echoed).
func (d *Driver) run(before int) error {
	code := d.P.Program()
	global := d.M.Stack[0]
	global.Code = code

	var lastLhs vm.Operand
	if len(code) > before {
		lastLhs = code[len(code)-1].Lhs
	}

	for !d.M.Done() {
		if err := d.M.Step(); err != nil {
			return err
		}
	}

	if t, ok := lastLhs.(vm.TempRef); ok {
		v := global.GetTemp(t.Index)
		if v != value.Nil {
			hostio.Echo(d.Out, value.Stringify(v))
		}
	}
	return nil
}
