package parser

import (
	"strconv"

	"github.com/mna/miniscript/lang/token"
	"github.com/mna/miniscript/lang/value"
	"github.com/mna/miniscript/lang/vm"
)

// parseExpr parses a full expression at the lowest precedence level
// ("or"), returning an operand usable as a Line RHS. This is the entry
// point used everywhere an expression value is wanted; the result has
// already passed through asValue, so a bare function reference has been
// auto-invoked unless guarded by `@` (spec.md §4.6 "Address-of `@`").
func (p *Parser) parseExpr() vm.Operand {
	return p.asValue(p.parseOrExpr())
}

// parseLvalueExpr parses a suffixed expression meant to be used as a
// statement-start call-expression tail (spec.md §4.6 "Call-expression
// tail"): if the expression ends in a dot or bracket access, the result
// is left as an unresolved SeqElem so the caller can convert it to an
// indexed assignment; a trailing call is still evaluated eagerly, since a
// call result is never an lvalue.
func (p *Parser) parseLvalueExpr() vm.Operand {
	return p.parseSuffixedExpr(p.parsePrimary(), true)
}

// parseExprContinuation climbs the rest of the precedence chain starting
// from an operand already parsed up through the suffix-chain level, the
// shape parseLvalueExpr leaves a statement-start expression in once it's
// known not to be an assignment target or a paren-free call (spec.md §4.6):
// without this, a bare statement like `x + 1` would stop at `x` and leave
// `+ 1` as unparsed trailing tokens.
func (p *Parser) parseExprContinuation(base vm.Operand) vm.Operand {
	a := p.parsePowerExprCont(base)
	a = p.parseMulExprCont(a)
	a = p.parseAddExprCont(a)
	a = p.parseComparisonExprCont(a)
	a = p.parseIsaExprCont(a)
	a = p.parseAndExprCont(a)
	a = p.parseOrExprCont(a)
	return p.asValue(a)
}

func (p *Parser) parseOrExpr() vm.Operand {
	return p.parseOrExprCont(p.parseAndExpr())
}

// parseOrExprCont continues "or" parsing from an operand already parsed at
// or below this precedence level, so a statement-start expression (parsed
// up through a suffix chain before the caller knows whether it's an
// assignment target) can still climb the rest of the precedence chain
// (spec.md §4.6, bare expression statements).
func (p *Parser) parseOrExprCont(a vm.Operand) vm.Operand {
	if !p.atKeyword("or") {
		return a
	}
	s := p.cur()
	a = p.asValue(a)
	result := s.newTemp()
	s.emit(vm.Line{Op: vm.CopyA, Lhs: result, RhsA: a})
	var truthyJumps []int
	for p.atKeyword("or") {
		p.advance()
		truthyJumps = append(truthyJumps, s.emit(vm.Line{Op: vm.GotoAifTrulyB, RhsB: result, RhsA: value.Number(0)}))
		b := p.asValue(p.parseAndExpr())
		s.emit(vm.Line{Op: vm.CopyA, Lhs: result, RhsA: b})
	}
	skip := s.emit(vm.Line{Op: vm.GotoA, RhsA: value.Number(0)})
	setTrue := len(s.code)
	s.emitProtected(vm.Line{Op: vm.AssignA, Lhs: result, RhsA: value.Number(1)})
	here := len(s.code)
	for _, j := range truthyJumps {
		s.patch(j, setTrue)
	}
	s.patch(skip, here)
	return result
}

func (p *Parser) parseAndExpr() vm.Operand {
	return p.parseAndExprCont(p.parseNotExpr())
}

// parseAndExprCont is parseOrExprCont's counterpart for "and".
func (p *Parser) parseAndExprCont(a vm.Operand) vm.Operand {
	if !p.atKeyword("and") {
		return a
	}
	s := p.cur()
	a = p.asValue(a)
	result := s.newTemp()
	s.emit(vm.Line{Op: vm.CopyA, Lhs: result, RhsA: a})
	var falsyJumps []int
	for p.atKeyword("and") {
		p.advance()
		falsyJumps = append(falsyJumps, s.emit(vm.Line{Op: vm.GotoAifNotB, RhsB: result, RhsA: value.Number(0)}))
		b := p.asValue(p.parseNotExpr())
		s.emit(vm.Line{Op: vm.CopyA, Lhs: result, RhsA: b})
	}
	skip := s.emit(vm.Line{Op: vm.GotoA, RhsA: value.Number(0)})
	setFalse := len(s.code)
	s.emitProtected(vm.Line{Op: vm.AssignA, Lhs: result, RhsA: value.Number(0)})
	here := len(s.code)
	for _, j := range falsyJumps {
		s.patch(j, setFalse)
	}
	s.patch(skip, here)
	return result
}

func (p *Parser) parseNotExpr() vm.Operand {
	if p.atKeyword("not") {
		p.advance()
		a := p.asValue(p.parseIsaExpr())
		s := p.cur()
		t := s.newTemp()
		s.emit(vm.Line{Op: vm.NotA, Lhs: t, RhsA: a})
		return t
	}
	return p.parseIsaExpr()
}

func (p *Parser) parseIsaExpr() vm.Operand {
	return p.parseIsaExprCont(p.parseComparisonExpr())
}

// parseIsaExprCont is parseOrExprCont's counterpart for "isa".
func (p *Parser) parseIsaExprCont(a vm.Operand) vm.Operand {
	if !p.atKeyword("isa") {
		return a
	}
	s := p.cur()
	a = p.asValue(a)
	p.advance()
	b := p.asValue(p.parseComparisonExpr())
	t := s.newTemp()
	s.emit(vm.Line{Op: vm.AisaB, Lhs: t, RhsA: a, RhsB: b})
	return t
}

// comparisonOp maps a comparison token to its Opcode.
var comparisonOp = map[token.Kind]vm.Opcode{
	token.OpEqual:      vm.AEqualB,
	token.OpNotEqual:   vm.ANotEqualB,
	token.OpGreater:    vm.AGreaterThanB,
	token.OpGreatEqual: vm.AGreatOrEqualB,
	token.OpLesser:     vm.ALessThanB,
	token.OpLessEqual:  vm.ALessOrEqualB,
}

// parseComparisonExpr implements the left-associative chained-comparison
// lowering of spec.md §4.6: `a < b < c` emits two comparisons and
// multiplies their results together, yielding a fuzzy conjunction.
func (p *Parser) parseComparisonExpr() vm.Operand {
	return p.parseComparisonExprCont(p.parseAddExpr())
}

// parseComparisonExprCont is parseOrExprCont's counterpart for chained
// comparisons.
func (p *Parser) parseComparisonExprCont(a vm.Operand) vm.Operand {
	_, ok := comparisonOp[p.tok.Kind]
	if !ok {
		return a
	}
	s := p.cur()
	a = p.asValue(a)
	var result vm.Operand
	left := a
	for {
		op, ok := comparisonOp[p.tok.Kind]
		if !ok {
			break
		}
		p.advance()
		right := p.asValue(p.parseAddExpr())
		cmp := s.newTemp()
		s.emit(vm.Line{Op: op, Lhs: cmp, RhsA: left, RhsB: right})
		if result == nil {
			result = cmp
		} else {
			next := s.newTemp()
			s.emit(vm.Line{Op: vm.ATimesB, Lhs: next, RhsA: result, RhsB: cmp})
			result = next
		}
		left = right
	}
	return result
}

func (p *Parser) parseAddExpr() vm.Operand {
	return p.parseAddExprCont(p.parseMulExpr())
}

// parseAddExprCont is parseOrExprCont's counterpart for `+`/`-`.
func (p *Parser) parseAddExprCont(a vm.Operand) vm.Operand {
	for p.at(token.OpPlus) || p.at(token.OpMinus) {
		s := p.cur()
		a = p.asValue(a)
		op := vm.APlusB
		if p.tok.Kind == token.OpMinus {
			op = vm.AMinusB
		}
		p.advance()
		b := p.asValue(p.parseMulExpr())
		t := s.newTemp()
		s.emit(vm.Line{Op: op, Lhs: t, RhsA: a, RhsB: b})
		a = t
	}
	return a
}

func (p *Parser) parseMulExpr() vm.Operand {
	return p.parseMulExprCont(p.parseUnaryMinusExpr())
}

// parseMulExprCont is parseOrExprCont's counterpart for `*`/`/`/`%`.
func (p *Parser) parseMulExprCont(a vm.Operand) vm.Operand {
	for p.at(token.OpTimes) || p.at(token.OpDivide) || p.at(token.OpMod) {
		s := p.cur()
		a = p.asValue(a)
		var op vm.Opcode
		switch p.tok.Kind {
		case token.OpTimes:
			op = vm.ATimesB
		case token.OpDivide:
			op = vm.ADividedByB
		case token.OpMod:
			op = vm.AModB
		}
		p.advance()
		b := p.asValue(p.parseUnaryMinusExpr())
		t := s.newTemp()
		s.emit(vm.Line{Op: op, Lhs: t, RhsA: a, RhsB: b})
		a = t
	}
	return a
}

// parseUnaryMinusExpr implements "unary minus on a literal number: negate
// the literal in place to avoid a subtract-from-zero" (spec.md §4.6).
func (p *Parser) parseUnaryMinusExpr() vm.Operand {
	if p.at(token.OpMinus) {
		p.advance()
		a := p.parseNewExpr()
		if n, ok := a.(value.Number); ok {
			return -n
		}
		s := p.cur()
		a = p.asValue(a)
		t := s.newTemp()
		s.emit(vm.Line{Op: vm.AMinusB, Lhs: t, RhsA: value.Number(0), RhsB: a})
		return t
	}
	return p.parseNewExpr()
}

// parseNewExpr implements "new and map/list literals: emit CopyA so each
// execution yields a fresh mutable object" for the `new` unary operator
// (spec.md §4.6); `new X` instantiates a fresh map whose __isa points at X.
func (p *Parser) parseNewExpr() vm.Operand {
	if p.atKeyword("new") {
		p.advance()
		s := p.cur()
		proto := p.asValue(p.parseAddressOfExpr())
		protoMap := s.newTemp()
		s.emit(vm.Line{Op: vm.CopyA, Lhs: protoMap, RhsA: value.NewMap(0)})
		s.emit(vm.Line{Op: vm.AssignA, Lhs: vm.SeqElem{Target: protoMap, Index: value.IsaKey}, RhsA: proto})
		return protoMap
	}
	return p.parseAddressOfExpr()
}

// parseAddressOfExpr implements spec.md §4.6 "Address-of @": sets the
// NoInvoke flag on the VarRef or SeqElem it wraps, so later auto-invoke
// (asValue) resolution treats it as an opaque reference rather than
// calling it.
func (p *Parser) parseAddressOfExpr() vm.Operand {
	if p.at(token.AddressOf) {
		p.advance()
		inner := p.parseSuffixedExpr(p.parsePrimary(), true)
		return noInvoke(inner)
	}
	return p.parsePowerExpr()
}

func noInvoke(v vm.Operand) vm.Operand {
	switch x := v.(type) {
	case vm.VarRef:
		x.NoInvoke = true
		return x
	case vm.SeqElem:
		x.NoInvoke = true
		return x
	default:
		return v
	}
}

// parsePowerExpr is right-associative: 2^3^2 == 2^(3^2).
func (p *Parser) parsePowerExpr() vm.Operand {
	return p.parsePowerExprCont(p.parseSuffixedExpr(p.parsePrimary(), false))
}

// parsePowerExprCont is parseOrExprCont's counterpart for `^`, the
// tightest-binding level above a bare suffix chain.
func (p *Parser) parsePowerExprCont(a vm.Operand) vm.Operand {
	if !p.at(token.OpPower) {
		return a
	}
	s := p.cur()
	a = p.asValue(a)
	p.advance()
	b := p.asValue(p.parseUnaryMinusExpr())
	t := s.newTemp()
	s.emit(vm.Line{Op: vm.APowB, Lhs: t, RhsA: a, RhsB: b})
	return t
}

// asValue resolves a VarRef or SeqElem produced by chain parsing into a
// concrete value, auto-invoking it (CallFunctionA with zero arguments) if
// it turns out to be callable, unless its NoInvoke flag (set by `@`) says
// not to. Any other operand kind (a literal, a temp, an already-resolved
// value) passes through unchanged.
func (p *Parser) asValue(op vm.Operand) vm.Operand {
	switch v := op.(type) {
	case vm.VarRef:
		if v.NoInvoke {
			return v
		}
		return p.emitAutoCall(op)
	case vm.SeqElem:
		if v.NoInvoke {
			return v
		}
		return p.emitAutoCall(op)
	default:
		return op
	}
}

func (p *Parser) emitAutoCall(op vm.Operand) vm.Operand {
	s := p.cur()
	t := s.newTemp()
	s.emit(vm.Line{Op: vm.CallFunctionA, Lhs: t, RhsA: op, RhsB: value.Number(0)})
	return t
}

// parseSuffixedExpr extends base with a chain of dot/bracket/call suffixes
// (spec.md §4.6 "Call-expression tail"). A bracket or paren suffix only
// binds if it directly follows base with no intervening whitespace
// (token.Token.AfterSpace); a spaced `f (x)` or `l [0]` falls through to
// the default case instead, leaving the bracket/paren to be parsed as a
// fresh operand by the caller (a paren-free call argument or a list
// literal). When lvalueTail is true and the chain ends on a dot or bracket
// access (not a call), the trailing access is returned as an unresolved
// SeqElem so the caller (an assignment statement) can target it directly;
// otherwise the chain result passes through asValue before being
// returned.
func (p *Parser) parseSuffixedExpr(base vm.Operand, lvalueTail bool) vm.Operand {
	operand := base
	for {
		switch {
		case p.at(token.Dot):
			p.advance()
			name := p.expect(token.Identifier).Text
			operand = p.asValue(operand)
			operand = vm.SeqElem{Target: operand, Index: value.String(name)}
		case p.at(token.LSquare) && !p.tok.AfterSpace:
			p.advance()
			idx := p.parseExpr()
			p.expect(token.RSquare)
			operand = p.asValue(operand)
			operand = vm.SeqElem{Target: operand, Index: idx}
		case p.at(token.LParen) && !p.tok.AfterSpace:
			operand = p.parseCallArgs(operand)
		default:
			// At a statement-start position, the caller needs the raw
			// reference (VarRef or SeqElem) to decide whether this is an
			// assignment target before any auto-invoke happens; it calls
			// asValue itself once it knows no `=` follows (spec.md §4.6
			// "Call-expression tail").
			if lvalueTail {
				return operand
			}
			return p.asValue(operand)
		}
	}
}

// parseCallArgs parses a parenthesized argument list and emits the call,
// using callee (a raw, not-yet-auto-invoked VarRef/SeqElem/temp) as the
// function to invoke. If callee is a SeqElem whose target names "super",
// Machine.execCallFunction resolves `self`/`super` for the call per
// spec.md §4.5; the parser only needs to hand over the SeqElem as-is.
func (p *Parser) parseCallArgs(callee vm.Operand) vm.Operand {
	s := p.cur()
	p.expect(token.LParen)
	count := 0
	if !p.at(token.RParen) {
		for {
			arg := p.parseExpr()
			s.emit(vm.Line{Op: vm.PushParam, RhsA: arg})
			count++
			if !p.at(token.Comma) {
				break
			}
			p.advance()
		}
	}
	p.expect(token.RParen)
	t := s.newTemp()
	s.emit(vm.Line{Op: vm.CallFunctionA, Lhs: t, RhsA: callee, RhsB: value.Number(float64(count))})
	return t
}

// canStartParenFreeArg reports whether the current token can only begin a
// new operand, never continue whatever expression a statement-start
// reference was already parsed into. Spec.md §8's paren-free call
// scenarios (`print x`, `print "hello"`, `print d.bark`) depend on this:
// a reference immediately followed by one of these tokens is a call with
// the rest of the line as its single argument, not the reference alone
// followed by a disconnected statement.
func (p *Parser) canStartParenFreeArg() bool {
	switch p.tok.Kind {
	case token.Identifier, token.Number, token.String, token.LCurly, token.AddressOf, token.LSquare, token.LParen:
		return true
	case token.Keyword:
		switch p.tok.Text {
		case "true", "false", "null", "not", "new", "function":
			return true
		}
	}
	return false
}

// parseParenFreeCall lowers a paren-free call (spec.md §8): callee, a raw
// reference already parsed by parseLvalueExpr, is invoked with exactly one
// argument, the full expression that follows it. Emitted the same way a
// parenthesized single-argument call is in parseCallArgs.
func (p *Parser) parseParenFreeCall(callee vm.Operand) vm.Operand {
	s := p.cur()
	arg := p.parseExpr()
	s.emit(vm.Line{Op: vm.PushParam, RhsA: arg})
	t := s.newTemp()
	s.emit(vm.Line{Op: vm.CallFunctionA, Lhs: t, RhsA: callee, RhsB: value.Number(1)})
	return t
}

// parsePrimary parses an atom: identifier, literal, parenthesized
// expression, map literal, list literal, or function literal (spec.md
// §4.6 precedence list's lowest/tightest levels). It never consumes
// trailing suffixes; parseSuffixedExpr does that.
func (p *Parser) parsePrimary() vm.Operand {
	switch {
	case p.at(token.Identifier):
		name := p.tok.Text
		p.advance()
		return vm.VarRef{Name: name}

	case p.at(token.Number):
		return p.parseNumberLiteral()

	case p.at(token.String):
		s := value.String(p.tok.Text)
		p.advance()
		return s

	case p.atKeyword("true"):
		p.advance()
		return value.Number(1)

	case p.atKeyword("false"):
		p.advance()
		return value.Number(0)

	case p.atKeyword("null"):
		p.advance()
		return value.Nil

	case p.at(token.LParen):
		p.advance()
		v := p.parseExpr()
		p.expect(token.RParen)
		return v

	case p.at(token.LSquare):
		return p.parseListLiteral()

	case p.at(token.LCurly):
		return p.parseMapLiteral()

	case p.atKeyword("function"):
		return p.parseFunctionLiteral()

	default:
		p.fail("unexpected %s %q in expression", p.tok.Kind, p.tok.Text)
		return value.Nil
	}
}

func (p *Parser) parseNumberLiteral() vm.Operand {
	text := p.tok.Text
	p.advance()
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		p.errorHere("invalid number literal %q", text)
		return value.Number(0)
	}
	return value.Number(f)
}

// parseListLiteral implements "map/list literals: emit CopyA so each
// execution yields a fresh mutable object" (spec.md §4.6): the list's
// elements may themselves contain VarRef/SeqElem/TempRef placeholders,
// resolved recursively at runtime by resolveFullLiteral; CopyA then
// performs the deep clone that makes every execution distinct.
func (p *Parser) parseListLiteral() vm.Operand {
	s := p.cur()
	p.expect(token.LSquare)
	var elems []value.Value
	for !p.at(token.RSquare) {
		elems = append(elems, p.parseExpr())
		if !p.at(token.Comma) {
			break
		}
		p.advance()
	}
	p.expect(token.RSquare)
	t := s.newTemp()
	s.emit(vm.Line{Op: vm.CopyA, Lhs: t, RhsA: value.NewList(elems)})
	return t
}

func (p *Parser) parseMapLiteral() vm.Operand {
	s := p.cur()
	p.expect(token.LCurly)
	m := value.NewMap(0)
	for !p.at(token.RCurly) {
		key := p.parseExpr()
		p.expect(token.Colon)
		val := p.parseExpr()
		if err := m.Set(key, val); err != nil {
			p.errorHere("%s", err)
		}
		if !p.at(token.Comma) {
			break
		}
		p.advance()
	}
	p.expect(token.RCurly)
	t := s.newTemp()
	s.emit(vm.Line{Op: vm.CopyA, Lhs: t, RhsA: m})
	return t
}

// parseFunctionLiteral implements spec.md §4.6 "Function literal": the
// parameter list (with defaults evaluated here, in the enclosing scope, as
// parse-time literal constants) is parsed immediately, a Function template
// is built and captured via BindAssignA, and the body is left for
// afterStatement to start parsing once the enclosing statement ends. Two
// function literals in one statement is a compile error.
func (p *Parser) parseFunctionLiteral() vm.Operand {
	if p.pendingFn != nil {
		p.fail("a statement may contain only one function literal")
	}
	p.expectKeyword("function")
	fn := &vm.Function{}
	if p.at(token.LParen) {
		p.advance()
		for !p.at(token.RParen) {
			name := p.expect(token.Identifier).Text
			param := vm.Param{Name: name}
			if p.at(token.OpAssign) {
				p.advance()
				param.Default = p.parseFunctionDefault()
			}
			fn.Params = append(fn.Params, param)
			if !p.at(token.Comma) {
				break
			}
			p.advance()
		}
		p.expect(token.RParen)
	}
	s := p.cur()
	tmpl := s.newTemp()
	s.emit(vm.Line{Op: vm.AssignA, Lhs: tmpl, RhsA: fn})
	bound := s.newTemp()
	s.emit(vm.Line{Op: vm.BindAssignA, Lhs: bound, RhsA: tmpl})
	p.pendingFn = fn
	return bound
}

// parseFunctionDefault parses a parameter default expression. Per spec.md
// §4.6, defaults are "evaluated in the enclosing scope": since Param's
// Default field is a plain value.Value rather than deferred code, only
// expressions that reduce to a compile-time literal are accepted here
// (an Open Question resolution, recorded in DESIGN.md).
func (p *Parser) parseFunctionDefault() value.Value {
	neg := false
	if p.at(token.OpMinus) {
		neg = true
		p.advance()
	}
	switch {
	case p.at(token.Number):
		n := p.parseNumberLiteral()
		if neg {
			n = -n.(value.Number)
		}
		return n
	case p.at(token.String):
		if neg {
			p.fail("invalid default value")
		}
		v := value.String(p.tok.Text)
		p.advance()
		return v
	case p.atKeyword("true"):
		p.advance()
		return value.Number(1)
	case p.atKeyword("false"):
		p.advance()
		return value.Number(0)
	case p.atKeyword("null"):
		p.advance()
		return value.Nil
	default:
		p.fail("function parameter defaults must be a literal constant")
		return value.Nil
	}
}
