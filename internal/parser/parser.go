package parser

import (
	"errors"
	"fmt"
	"go/token"
	"strconv"

	"github.com/gnoswap-labs/sepexec/internal/ast"
)

// Error is a syntax or name-resolution error at a source position.
type Error struct {
	Pos token.Position
	Msg string
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return e.Pos.String() + ": " + e.Msg
	}
	return e.Msg
}

// Scope resolves names while parsing: the variables of the enclosing
// method or predicate, and the program's fields and predicates.
type Scope struct {
	vars       map[string]*ast.Var
	fields     map[string]ast.Type
	predicates map[string]int
}

// NewScope creates a scope over the given declarations. predicates maps
// predicate names to their arity.
func NewScope(fields []*ast.Field, predicates map[string]int) *Scope {
	sc := &Scope{
		vars:       make(map[string]*ast.Var),
		fields:     make(map[string]ast.Type, len(fields)),
		predicates: predicates,
	}
	for _, f := range fields {
		sc.fields[f.Name] = f.Type
	}
	if sc.predicates == nil {
		sc.predicates = make(map[string]int)
	}
	return sc
}

// Declare adds variables to the scope. It fails on a duplicate name.
func (sc *Scope) Declare(vs ...*ast.Var) error {
	for _, v := range vs {
		if _, dup := sc.vars[v.Name]; dup {
			return fmt.Errorf("%s redeclared", v.Name)
		}
		sc.vars[v.Name] = v
	}
	return nil
}

// With returns a copy of sc with its variables replaced by vs.
func (sc *Scope) With(vs ...*ast.Var) (*Scope, error) {
	next := &Scope{vars: make(map[string]*ast.Var, len(vs)), fields: sc.fields, predicates: sc.predicates}
	if err := next.Declare(vs...); err != nil {
		return nil, err
	}
	return next, nil
}

// Parser consumes tokens and builds expressions and statements.
type Parser struct {
	src     string
	base    token.Position
	tokens  []Token
	current int
	scope   *Scope
}

// NewParser tokenizes src, which starts at base in its file.
func NewParser(src string, base token.Position, sc *Scope) (*Parser, error) {
	tokens, err := NewLexer(src).Tokenize()
	if err != nil {
		var le *lexError
		if errors.As(err, &le) {
			return nil, &Error{Pos: position(src, base, le.offset), Msg: le.Error()}
		}
		return nil, err
	}
	return &Parser{src: src, base: base, tokens: tokens, scope: sc}, nil
}

// ParseExpr parses a complete expression or assertion.
func ParseExpr(src string, base token.Position, sc *Scope) (ast.Expr, error) {
	p, err := NewParser(src, base, sc)
	if err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return e, nil
}

// position maps a byte offset of src to a file position.
func position(src string, base token.Position, offset int) token.Position {
	pos := base
	pos.Offset += offset
	for i := 0; i < offset && i < len(src); i++ {
		if src[i] == '\n' {
			pos.Line++
			pos.Column = 1
			continue
		}
		pos.Column++
	}
	return pos
}

func (p *Parser) peek() Token {
	return p.tokens[p.current]
}

func (p *Parser) peekAt(n int) Token {
	if p.current+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.current+n]
}

func (p *Parser) next() Token {
	t := p.tokens[p.current]
	if t.Type != TokenEOF {
		p.current++
	}
	return t
}

func (p *Parser) is(value string) bool {
	t := p.peek()
	return t.Type != TokenEOF && t.Value == value
}

func (p *Parser) accept(value string) bool {
	if p.is(value) {
		p.current++
		return true
	}
	return false
}

func (p *Parser) expect(value string) (Token, error) {
	if !p.is(value) {
		return Token{}, p.errorf(p.peek(), "expected %q, found %s", value, p.peek())
	}
	return p.next(), nil
}

func (p *Parser) expectIdent() (Token, error) {
	t := p.peek()
	if t.Type != TokenIdent {
		return Token{}, p.errorf(t, "expected identifier, found %s", t)
	}
	return p.next(), nil
}

func (p *Parser) expectEOF() error {
	if t := p.peek(); t.Type != TokenEOF {
		return p.errorf(t, "unexpected %s", t)
	}
	return nil
}

func (p *Parser) pos(t Token) ast.Pos {
	return ast.Pos{At: position(p.src, p.base, t.Offset)}
}

func (p *Parser) errorf(t Token, format string, args ...any) error {
	return &Error{Pos: position(p.src, p.base, t.Offset), Msg: fmt.Sprintf(format, args...)}
}

// Precedence from loosest to tightest:
//
//	--*  ==>  ||  &&  == != < <= > >=  + -  * / %  unary  postfix
func (p *Parser) parseExpr() (ast.Expr, error) {
	return p.parseWand()
}

func (p *Parser) parseWand() (ast.Expr, error) {
	left, err := p.parseImplies()
	if err != nil {
		return nil, err
	}
	if !p.is("--*") {
		return left, nil
	}
	op := p.next()
	right, err := p.parseWand()
	if err != nil {
		return nil, err
	}
	return &ast.Wand{Pos: p.pos(op), Left: left, Right: right}, nil
}

func (p *Parser) parseImplies() (ast.Expr, error) {
	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.is("==>") {
		return left, nil
	}
	op := p.next()
	right, err := p.parseImplies()
	if err != nil {
		return nil, err
	}
	return &ast.Binary{Pos: p.pos(op), Op: ast.OpImplies, Left: left, Right: right}, nil
}

func (p *Parser) parseOr() (ast.Expr, error) {
	return p.parseLeft(p.parseAnd, map[string]ast.BinOp{"||": ast.OpOr})
}

func (p *Parser) parseAnd() (ast.Expr, error) {
	return p.parseLeft(p.parseComparison, map[string]ast.BinOp{"&&": ast.OpAnd})
}

var comparisons = map[string]ast.BinOp{
	"==": ast.OpEq, "!=": ast.OpNe,
	"<": ast.OpLt, "<=": ast.OpLe, ">": ast.OpGt, ">=": ast.OpGe,
}

func (p *Parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	op, ok := comparisons[t.Value]
	if t.Type != TokenPunct || !ok {
		return left, nil
	}
	p.next()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return p.binary(t, op, left, right), nil
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	return p.parseLeft(p.parseMultiplicative, map[string]ast.BinOp{"+": ast.OpAdd, "-": ast.OpSub})
}

func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	return p.parseLeft(p.parseUnary, map[string]ast.BinOp{"*": ast.OpMul, "/": ast.OpDiv, "%": ast.OpMod})
}

// parseLeft parses a left-associative chain of the operators in ops.
func (p *Parser) parseLeft(operand func() (ast.Expr, error), ops map[string]ast.BinOp) (ast.Expr, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		op, ok := ops[t.Value]
		if t.Type != TokenPunct || !ok {
			return left, nil
		}
		p.next()
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = p.binary(t, op, left, right)
	}
}

// binary builds a binary node, reading integer operands as permissions
// when the other side is a permission.
func (p *Parser) binary(t Token, op ast.BinOp, left, right ast.Expr) ast.Expr {
	if op != ast.OpDiv || !isIntLit(left) || !isIntLit(right) {
		if p.typeOf(left) == ast.TypePerm {
			right = toPerm(right)
		} else if p.typeOf(right) == ast.TypePerm {
			left = toPerm(left)
		}
	}
	return &ast.Binary{Pos: p.pos(t), Op: op, Left: left, Right: right}
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	t := p.peek()
	switch {
	case p.accept("!"):
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Pos: p.pos(t), Op: ast.OpNot, X: x}, nil
	case p.accept("-"):
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if lit, ok := x.(*ast.IntLit); ok {
			return &ast.IntLit{Pos: p.pos(t), Val: -lit.Val}, nil
		}
		return &ast.Unary{Pos: p.pos(t), Op: ast.OpNeg, X: x}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (ast.Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.is(".") {
		dot := p.next()
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, ok := p.scope.fields[name.Value]; !ok {
			return nil, p.errorf(name, "unknown field %s", name.Value)
		}
		if typ := p.typeOf(e); typ != ast.TypeRef {
			return nil, p.errorf(dot, "field access on %s of type %s", e, typ)
		}
		e = &ast.FieldAccess{Pos: p.pos(dot), Recv: e, Field: name.Value}
	}
	return e, nil
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	t := p.peek()
	switch t.Type {
	case TokenInt:
		p.next()
		v, err := strconv.ParseInt(t.Value, 10, 64)
		if err != nil {
			return nil, p.errorf(t, "invalid integer %s", t.Value)
		}
		return &ast.IntLit{Pos: p.pos(t), Val: v}, nil

	case TokenIdent:
		switch t.Value {
		case "true", "false":
			p.next()
			return &ast.BoolLit{Pos: p.pos(t), Val: t.Value == "true"}, nil
		case "null":
			p.next()
			return &ast.NullLit{Pos: p.pos(t)}, nil
		case "write":
			p.next()
			return &ast.PermLit{Pos: p.pos(t), Num: 1, Den: 1}, nil
		case "none":
			p.next()
			return &ast.PermLit{Pos: p.pos(t), Num: 0, Den: 1}, nil
		case "acc":
			return p.parseAcc()
		case "perm":
			return p.parsePermOf()
		case "old":
			return p.parseOld()
		}
		p.next()
		v, ok := p.scope.vars[t.Value]
		if !ok {
			return nil, p.errorf(t, "undefined: %s", t.Value)
		}
		return &ast.Var{Pos: p.pos(t), Name: v.Name, Type: v.Type}, nil

	case TokenPunct:
		if p.accept("(") {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(")"); err != nil {
				return nil, err
			}
			return e, nil
		}
	}
	return nil, p.errorf(t, "unexpected %s", t)
}

// parseAcc parses acc(e.f[, p]) and acc(P(args)[, p]).
func (p *Parser) parseAcc() (ast.Expr, error) {
	kw := p.next()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}

	var out ast.Expr
	if name := p.peek(); name.Type == TokenIdent && p.peekAt(1).Value == "(" {
		if _, isVar := p.scope.vars[name.Value]; !isVar {
			pred, err := p.parsePredicateCall()
			if err != nil {
				return nil, err
			}
			pred.Pos = p.pos(kw)
			out = pred
		}
	}
	if out == nil {
		loc, err := p.parseLocation()
		if err != nil {
			return nil, err
		}
		out = &ast.FieldAcc{Pos: p.pos(kw), Loc: loc}
	}

	perm := ast.Expr(&ast.PermLit{Pos: p.pos(kw), Num: 1, Den: 1})
	if p.accept(",") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		perm = toPerm(e)
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}

	switch a := out.(type) {
	case *ast.FieldAcc:
		a.Perm = perm
	case *ast.PredicateAcc:
		a.Perm = perm
	}
	return out, nil
}

// parsePredicateCall parses P(args) with a full-permission default.
func (p *Parser) parsePredicateCall() (*ast.PredicateAcc, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	arity, ok := p.scope.predicates[name.Value]
	if !ok {
		return nil, p.errorf(name, "unknown predicate %s", name.Value)
	}
	args, err := p.parseArgs()
	if err != nil {
		return nil, err
	}
	if len(args) != arity {
		return nil, p.errorf(name, "predicate %s takes %d arguments, got %d", name.Value, arity, len(args))
	}
	return &ast.PredicateAcc{
		Pos:  p.pos(name),
		Name: name.Value,
		Args: args,
		Perm: &ast.PermLit{Pos: p.pos(name), Num: 1, Den: 1},
	}, nil
}

// parseArgs parses a parenthesised, comma-separated expression list.
func (p *Parser) parseArgs() ([]ast.Expr, error) {
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	var args []ast.Expr
	if p.accept(")") {
		return args, nil
	}
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
		if p.accept(")") {
			return args, nil
		}
		if _, err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

func (p *Parser) parseLocation() (*ast.FieldAccess, error) {
	t := p.peek()
	e, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	loc, ok := e.(*ast.FieldAccess)
	if !ok {
		return nil, p.errorf(t, "expected a field location, found %s", e)
	}
	return loc, nil
}

func (p *Parser) parsePermOf() (ast.Expr, error) {
	kw := p.next()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	loc, err := p.parseLocation()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	return &ast.PermOf{Pos: p.pos(kw), Loc: loc}, nil
}

// parseOld parses old(e) and old[label](e).
func (p *Parser) parseOld() (ast.Expr, error) {
	kw := p.next()
	label := ""
	if p.accept("[") {
		l, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if l.Value != ast.LabelLHS {
			return nil, p.errorf(l, "unknown old label %s", l.Value)
		}
		label = l.Value
		if _, err := p.expect("]"); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	return &ast.Old{Pos: p.pos(kw), Label: label, X: x}, nil
}

// typeOf infers the static type of e. Assertions are Bool.
func (p *Parser) typeOf(e ast.Expr) ast.Type {
	switch e := e.(type) {
	case *ast.IntLit:
		return ast.TypeInt
	case *ast.BoolLit:
		return ast.TypeBool
	case *ast.NullLit:
		return ast.TypeRef
	case *ast.PermLit, *ast.PermOf:
		return ast.TypePerm
	case *ast.Var:
		return e.Type
	case *ast.FieldAccess:
		return p.scope.fields[e.Field]
	case *ast.Old:
		return p.typeOf(e.X)
	case *ast.Unary:
		if e.Op == ast.OpNot {
			return ast.TypeBool
		}
		return p.typeOf(e.X)
	case *ast.Binary:
		switch e.Op {
		case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpMod:
			if p.typeOf(e.Left) == ast.TypePerm || p.typeOf(e.Right) == ast.TypePerm {
				return ast.TypePerm
			}
			return ast.TypeInt
		}
	case *ast.Wand:
		return ast.TypeWand
	}
	return ast.TypeBool
}

func isIntLit(e ast.Expr) bool {
	_, ok := e.(*ast.IntLit)
	return ok
}

// toPerm reads integer literals and integer-literal fractions as
// permission amounts.
func toPerm(e ast.Expr) ast.Expr {
	switch e := e.(type) {
	case *ast.IntLit:
		return &ast.PermLit{Pos: e.Pos, Num: e.Val, Den: 1}
	case *ast.Binary:
		if e.Op == ast.OpDiv {
			if n, ok := e.Left.(*ast.IntLit); ok {
				if d, ok := e.Right.(*ast.IntLit); ok {
					return &ast.PermLit{Pos: e.Pos, Num: n.Val, Den: d.Val}
				}
			}
		}
		switch e.Op {
		case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv:
			return &ast.Binary{Pos: e.Pos, Op: e.Op, Left: toPerm(e.Left), Right: toPerm(e.Right)}
		}
	}
	return e
}
