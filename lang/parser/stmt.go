package parser

import (
	"github.com/mna/miniscript/lang/token"
	"github.com/mna/miniscript/lang/value"
	"github.com/mna/miniscript/lang/vm"
)

// parseStatement dispatches on the current token to the right statement
// form. Each keyword-led form consumes exactly its own line; block bodies
// are not parsed recursively here (see the backpatch-stack doc comment in
// parser.go) — the enclosing Parse loop simply keeps calling
// parseStatement, and the blocks slice on the current funcScope tracks
// which block each subsequent statement lands inside.
func (p *Parser) parseStatement() {
	switch {
	case p.atKeyword("if"):
		p.parseIfStmt()
	case p.atKeyword("else"):
		p.parseElseStmt()
	case p.atKeyword("while"):
		p.parseWhileStmt()
	case p.atKeyword("for"):
		p.parseForStmt()
	case p.atKeyword("return"):
		p.parseReturnStmt()
	case p.atKeyword("break"):
		p.parseBreakStmt()
	case p.atKeyword("continue"):
		p.parseContinueStmt()
	case p.atKeyword("end"):
		p.parseEndStmt()
	default:
		p.parseSimpleStmt()
	}
}

// parseIfStmt handles both the multi-line `if C then` / `end if` form and
// the single-line `if C then S else S2` form (spec.md §4.6).
func (p *Parser) parseIfStmt() {
	p.expectKeyword("if")
	cond := p.parseExpr()
	p.expectKeyword("then")
	if !p.at(token.EOL) {
		p.parseSingleLineIf(cond)
		return
	}
	s := p.cur()
	s.pushBlock(scopeEntry{Keyword: "if:MARK"})
	jmp := s.emit(vm.Line{Op: vm.GotoAifNotB, RhsB: cond, RhsA: value.Number(0)})
	s.pushBlock(scopeEntry{Keyword: "else", Line: jmp})
}

// parseSingleLineIf implements spec.md §4.6 "Single-line if": `if C then
// S else S2` parses one statement after `then`, optionally one after
// `else`, then applies the same end-of-if patching inline (no backpatch
// stack entries are needed since both branches close in this same call).
func (p *Parser) parseSingleLineIf(cond vm.Operand) {
	s := p.cur()
	falseJmp := s.emit(vm.Line{Op: vm.GotoAifNotB, RhsB: cond, RhsA: value.Number(0)})
	p.parseStatement()
	if p.atKeyword("else") {
		p.advance()
		endJmp := s.emit(vm.Line{Op: vm.GotoA, RhsA: value.Number(0)})
		s.patch(falseJmp, len(s.code))
		p.parseStatement()
		s.patch(endJmp, len(s.code))
		return
	}
	s.patch(falseJmp, len(s.code))
}

// parseElseStmt handles both `else` (the default branch) and `else if`
// (chained into another condition), using the "else"/"if-end" backpatch
// entries spec.md §4.6 describes.
func (p *Parser) parseElseStmt() {
	p.expectKeyword("else")
	s := p.cur()
	top := s.topBlock()
	if top == nil || top.Keyword != "else" {
		p.fail("'else' without a matching 'if'")
		return
	}
	entry := s.popBlock()
	endJmp := s.emit(vm.Line{Op: vm.GotoA, RhsA: value.Number(0)})
	s.patch(entry.Line, len(s.code))
	s.pushBlock(scopeEntry{Keyword: "if-end", Line: endJmp})

	if p.atKeyword("if") {
		p.advance()
		cond := p.parseExpr()
		p.expectKeyword("then")
		jmp := s.emit(vm.Line{Op: vm.GotoAifNotB, RhsB: cond, RhsA: value.Number(0)})
		s.pushBlock(scopeEntry{Keyword: "else", Line: jmp})
	}
}

// parseEndStmt handles every `end X` closer: `end if`, `end while`, `end
// for`, `end function`.
func (p *Parser) parseEndStmt() {
	p.expectKeyword("end")
	switch {
	case p.atKeyword("if"):
		p.advance()
		p.closeIf()
	case p.atKeyword("while"):
		p.advance()
		p.closeLoop("while")
	case p.atKeyword("for"):
		p.advance()
		p.closeLoop("for")
	case p.atKeyword("function"):
		p.advance()
		if p.cur().fn == nil {
			p.fail("'end function' without a matching 'function'")
			return
		}
		p.closeFunctionScope()
	default:
		p.fail("expected 'if', 'while', 'for' or 'function' after 'end'")
	}
}

// closeIf pops every backpatch entry pushed since the matching "if:MARK",
// patching each "else"/"if-end" jump to the current position in one pass
// (spec.md §4.6 "if/else if/else/end if use the if:MARK sentinel").
func (p *Parser) closeIf() {
	s := p.cur()
	here := len(s.code)
	for {
		top := s.topBlock()
		if top == nil {
			p.fail("'end if' without a matching 'if'")
			return
		}
		if top.Keyword == "if:MARK" {
			s.popBlock()
			return
		}
		e := s.popBlock()
		switch e.Keyword {
		case "else", "if-end":
			s.patch(e.Line, here)
		default:
			p.fail("unmatched %q inside 'if'", e.Keyword)
			return
		}
	}
}

// closeLoop implements `end while`/`end for`: it emits the loop's
// increment step (for "for" only) and backward jump, then pops every
// "break"/"continue" entry accumulated since the loop opened — along with
// the loop's own entry — patching each to the right target. A "break"
// patches to just after the loop; a "continue" patches to the condition
// retest ("while") or the increment step ("for"), per this parser's
// resolution of spec.md §4.6's otherwise-undocumented `continue` (see
// DESIGN.md).
func (p *Parser) closeLoop(kind string) {
	s := p.cur()
	li := -1
	for i := len(s.blocks) - 1; i >= 0; i-- {
		if s.blocks[i].Keyword == kind {
			li = i
			break
		}
		if s.blocks[i].Keyword != "break" && s.blocks[i].Keyword != "continue" {
			p.fail("'end %s' without a matching '%s'", kind, kind)
			return
		}
	}
	if li == -1 {
		p.fail("'end %s' without a matching '%s'", kind, kind)
		return
	}
	entry := s.blocks[li]

	contTarget := entry.LoopStart
	if kind == "for" {
		contTarget = len(s.code)
		idx := vm.TempRef{Index: entry.IdxTemp}
		s.emit(vm.Line{Op: vm.APlusB, Lhs: idx, RhsA: idx, RhsB: value.Number(1)})
	}
	s.emit(vm.Line{Op: vm.GotoA, RhsA: value.Number(entry.LoopStart)})
	after := len(s.code)

	for i := len(s.blocks) - 1; i >= li; i-- {
		e := s.blocks[i]
		switch e.Keyword {
		case "break":
			s.patch(e.Line, after)
		case "continue":
			s.patch(e.Line, contTarget)
		case kind:
			s.patch(e.Line, after)
		}
	}
	s.blocks = s.blocks[:li]
}

// parseWhileStmt opens a while loop: the condition retest position is
// known immediately (it's "here") and recorded as the loop start; a
// "continue" inside it is still pushed onto the backpatch stack and
// patched to that position when closeLoop runs, the same as in a "for"
// loop.
func (p *Parser) parseWhileStmt() {
	p.expectKeyword("while")
	s := p.cur()
	start := len(s.code)
	cond := p.parseExpr()
	exitJmp := s.emit(vm.Line{Op: vm.GotoAifNotB, RhsB: cond, RhsA: value.Number(0)})
	s.pushBlock(scopeEntry{Keyword: "while", Line: exitJmp, LoopStart: start})
}

// parseForStmt opens a for-in loop over a list, string or map, reusing
// LengthOfA/ElemBofIterA so one opcode serves both collection kinds
// (spec.md §4.6; ElemBofIterA returns a fresh {key,value} pair for a Map
// and falls through to ordinary numeric indexing for List/String).
func (p *Parser) parseForStmt() {
	p.expectKeyword("for")
	name := p.expect(token.Identifier).Text
	p.expectKeyword("in")
	collExpr := p.parseExpr()

	s := p.cur()
	collTemp := s.newTemp()
	s.emit(vm.Line{Op: vm.AssignA, Lhs: collTemp, RhsA: collExpr})
	lenTemp := s.newTemp()
	s.emit(vm.Line{Op: vm.LengthOfA, Lhs: lenTemp, RhsA: collTemp})
	idxTemp := s.newTemp()
	s.emit(vm.Line{Op: vm.AssignA, Lhs: idxTemp, RhsA: value.Number(0)})

	loopStart := len(s.code)
	condTemp := s.newTemp()
	s.emit(vm.Line{Op: vm.ALessThanB, Lhs: condTemp, RhsA: idxTemp, RhsB: lenTemp})
	exitJmp := s.emit(vm.Line{Op: vm.GotoAifNotB, RhsB: condTemp, RhsA: value.Number(0)})
	elemTemp := s.newTemp()
	s.emit(vm.Line{Op: vm.ElemBofIterA, Lhs: elemTemp, RhsA: collTemp, RhsB: idxTemp})
	s.emit(vm.Line{Op: vm.AssignA, Lhs: vm.VarRef{Name: name}, RhsA: elemTemp})

	s.pushBlock(scopeEntry{Keyword: "for", Line: exitJmp, LoopStart: loopStart, IdxTemp: idxTemp.Index})
}

// parseReturnStmt implements "return with no expression returns null"
// (spec.md §4.6). ReturnA is handled by Machine directly (it pops the call
// frame), not by Evaluate, so the parser only needs to emit the operand.
func (p *Parser) parseReturnStmt() {
	p.expectKeyword("return")
	s := p.cur()
	var retVal vm.Operand = value.Nil
	if !p.at(token.EOL) && !p.at(token.EOF) {
		retVal = p.parseExpr()
	}
	s.emit(vm.Line{Op: vm.ReturnA, RhsA: retVal})
}

func (p *Parser) parseBreakStmt() {
	p.expectKeyword("break")
	s := p.cur()
	if s.innermostLoop() == -1 {
		p.fail("'break' outside a loop")
		return
	}
	jmp := s.emit(vm.Line{Op: vm.GotoA, RhsA: value.Number(0)})
	s.pushBlock(scopeEntry{Keyword: "break", Line: jmp})
}

func (p *Parser) parseContinueStmt() {
	p.expectKeyword("continue")
	s := p.cur()
	if s.innermostLoop() == -1 {
		p.fail("'continue' outside a loop")
		return
	}
	jmp := s.emit(vm.Line{Op: vm.GotoA, RhsA: value.Number(0)})
	s.pushBlock(scopeEntry{Keyword: "continue", Line: jmp})
}

// parseSimpleStmt parses an assignment, a paren-free call, or a bare
// expression statement. It first parses a statement-start reference with
// parseLvalueExpr, leaving a trailing dot/bracket access unresolved
// (spec.md §4.6 "Call-expression tail"). From there:
//   - an `=` makes that unresolved SeqElem (or bare VarRef) an assignment
//     target;
//   - a following token that can only start a new operand (not continue
//     the reference's own expression) makes it a paren-free call, with the
//     rest of the line as the call's single argument (spec.md §8);
//   - otherwise the reference is the start of an ordinary expression
//     statement, climbed the rest of the way by parseExprContinuation so
//     a trailing operator (`x + 1`) isn't left unparsed.
func (p *Parser) parseSimpleStmt() {
	expr := p.parseLvalueExpr()
	switch {
	case p.at(token.OpAssign):
		p.advance()
		rhs := p.parseExpr()
		p.emitAssign(expr, rhs)
	case p.canStartParenFreeArg():
		p.parseParenFreeCall(expr)
	default:
		p.parseExprContinuation(expr)
	}
}

// emitAssign stores rhs into target, implementing spec.md §4.6's
// "Assignment optimization": if the previous emitted line assigned into
// the same temp that rhs names, rewrite that line's lhs to target instead
// of emitting a second copy, unless that previous line is protected (the
// short-circuit or/and emitters' final set-to-1/set-to-0 line is targeted
// by their own internal forward jumps and must not be optimized away).
// A previous BindAssignA line gets the same treatment: its lhs is
// rewritten directly rather than emitting a second assignment.
func (p *Parser) emitAssign(target, rhs vm.Operand) {
	s := p.cur()
	if t, ok := rhs.(vm.TempRef); ok && len(s.code) > 0 && !s.protectedLine {
		prev := &s.code[len(s.code)-1]
		if prevT, ok := prev.Lhs.(vm.TempRef); ok && prevT == t {
			switch prev.Op {
			case vm.AssignA, vm.BindAssignA, vm.CopyA:
				prev.Lhs = target
				return
			}
		}
	}
	s.emit(vm.Line{Op: vm.AssignA, Lhs: target, RhsA: rhs})
}
