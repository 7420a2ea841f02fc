package parser

import (
	"go/token"
	"sort"

	"github.com/gnoswap-labs/sepexec/internal/ast"
)

// ParseStmt parses a single simple statement:
//
//	x := e            x.f := e          x := new(f, g)     x := new(*)
//	a, b := m(args)   m(args)           fresh a, b
//	inhale A          exhale A          assert A
//	fold acc(P(x), p) unfold P(x)       package A --* B
//	w := A --* B      apply w           apply A --* B
//	label l           goto l
//
// Structured statements are built by the loader from YAML mappings.
func ParseStmt(src string, base token.Position, sc *Scope) (ast.Stmt, error) {
	p, err := NewParser(src, base, sc)
	if err != nil {
		return nil, err
	}
	st, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return st, nil
}

func (p *Parser) parseStmt() (ast.Stmt, error) {
	t := p.peek()
	if t.Type == TokenIdent {
		switch t.Value {
		case "inhale", "exhale", "assert":
			p.next()
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			switch t.Value {
			case "inhale":
				return &ast.Inhale{Pos: p.pos(t), Expr: e}, nil
			case "exhale":
				return &ast.Exhale{Pos: p.pos(t), Expr: e}, nil
			}
			return &ast.Assert{Pos: p.pos(t), Expr: e}, nil

		case "fresh":
			p.next()
			vars, err := p.parseVarList()
			if err != nil {
				return nil, err
			}
			return &ast.Fresh{Pos: p.pos(t), Vars: vars}, nil

		case "fold", "unfold":
			p.next()
			acc, err := p.parsePredicateOperand()
			if err != nil {
				return nil, err
			}
			if t.Value == "fold" {
				return &ast.Fold{Pos: p.pos(t), Acc: acc}, nil
			}
			return &ast.Unfold{Pos: p.pos(t), Acc: acc}, nil

		case "package":
			p.next()
			w, err := p.parseWandOperand()
			if err != nil {
				return nil, err
			}
			return &ast.Package{Pos: p.pos(t), Wand: w}, nil

		case "apply":
			p.next()
			if name := p.peek(); name.Type == TokenIdent && p.peekAt(1).Type == TokenEOF {
				if v, ok := p.scope.vars[name.Value]; ok && v.Type == ast.TypeWand {
					p.next()
					return &ast.Apply{Pos: p.pos(t), Wand: &ast.Var{Pos: p.pos(name), Name: v.Name, Type: v.Type}}, nil
				}
			}
			w, err := p.parseWandOperand()
			if err != nil {
				return nil, err
			}
			return &ast.Apply{Pos: p.pos(t), Wand: w}, nil

		case "label", "goto":
			p.next()
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if t.Value == "label" {
				return &ast.Label{Pos: p.pos(t), Name: name.Value}, nil
			}
			return &ast.Goto{Pos: p.pos(t), Target: name.Value}, nil
		}

		// m(args) without targets.
		if _, isVar := p.scope.vars[t.Value]; !isVar && p.peekAt(1).Value == "(" {
			return p.parseCall(t, nil)
		}
		// x := ... and a, b := ...
		if next := p.peekAt(1).Value; next == ":=" || next == "," {
			return p.parseAssign()
		}
	}

	lhs, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	loc, ok := lhs.(*ast.FieldAccess)
	if !ok {
		return nil, p.errorf(t, "expected a statement, found %s", lhs)
	}
	op, err := p.expect(":=")
	if err != nil {
		return nil, err
	}
	rhs, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.typeOf(loc) == ast.TypePerm {
		rhs = toPerm(rhs)
	}
	return &ast.FieldAssign{Pos: p.pos(op), Target: loc, Value: rhs}, nil
}

func (p *Parser) parseAssign() (ast.Stmt, error) {
	start := p.peek()
	targets, err := p.parseVarList()
	if err != nil {
		return nil, err
	}
	op, err := p.expect(":=")
	if err != nil {
		return nil, err
	}

	if t := p.peek(); t.Type == TokenIdent && p.peekAt(1).Value == "(" {
		if t.Value == "new" {
			if len(targets) != 1 {
				return nil, p.errorf(start, "new assigns a single variable")
			}
			return p.parseNew(targets[0])
		}
		if _, isVar := p.scope.vars[t.Value]; !isVar && !isKeyword(t.Value) {
			return p.parseCall(t, targets)
		}
	}

	if len(targets) != 1 {
		return nil, p.errorf(start, "assignment to %d variables from a single expression", len(targets))
	}
	target := targets[0]
	rhs, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if target.Type == ast.TypePerm {
		rhs = toPerm(rhs)
	}
	if _, isWand := rhs.(*ast.Wand); isWand != (target.Type == ast.TypeWand) {
		return nil, p.errorf(start, "cannot assign %s to %s of type %s", rhs, target.Name, target.Type)
	}
	return &ast.LocalAssign{Pos: p.pos(op), Target: target, Value: rhs}, nil
}

func (p *Parser) parseNew(target *ast.Var) (ast.Stmt, error) {
	kw := p.next()
	if target.Type != ast.TypeRef {
		return nil, p.errorf(kw, "new assigned to %s of type %s", target.Name, target.Type)
	}
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	var fields []string
	switch {
	case p.accept("*"):
		fields = p.allFields()
	case p.is(")"):
	default:
		for {
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if _, ok := p.scope.fields[name.Value]; !ok {
				return nil, p.errorf(name, "unknown field %s", name.Value)
			}
			fields = append(fields, name.Value)
			if !p.accept(",") {
				break
			}
		}
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	return &ast.New{Pos: p.pos(kw), Target: target, Fields: fields}, nil
}

// allFields returns the declared fields in a stable order.
func (p *Parser) allFields() []string {
	names := make([]string, 0, len(p.scope.fields))
	for name := range p.scope.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Parser) parseCall(name Token, targets []*ast.Var) (ast.Stmt, error) {
	p.next()
	args, err := p.parseArgs()
	if err != nil {
		return nil, err
	}
	return &ast.MethodCall{Pos: p.pos(name), Method: name.Value, Args: args, Targets: targets}, nil
}

func (p *Parser) parseVarList() ([]*ast.Var, error) {
	var vars []*ast.Var
	for {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		v, ok := p.scope.vars[name.Value]
		if !ok {
			return nil, p.errorf(name, "undefined: %s", name.Value)
		}
		vars = append(vars, &ast.Var{Pos: p.pos(name), Name: v.Name, Type: v.Type})
		if !p.accept(",") {
			return vars, nil
		}
	}
}

// parsePredicateOperand accepts both acc(P(args), p) and P(args).
func (p *Parser) parsePredicateOperand() (*ast.PredicateAcc, error) {
	t := p.peek()
	if t.Value == "acc" {
		e, err := p.parseAcc()
		if err != nil {
			return nil, err
		}
		acc, ok := e.(*ast.PredicateAcc)
		if !ok {
			return nil, p.errorf(t, "expected a predicate, found %s", e)
		}
		return acc, nil
	}
	return p.parsePredicateCall()
}

func (p *Parser) parseWandOperand() (*ast.Wand, error) {
	t := p.peek()
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	w, ok := e.(*ast.Wand)
	if !ok {
		return nil, p.errorf(t, "expected a magic wand, found %s", e)
	}
	return w, nil
}

func isKeyword(s string) bool {
	switch s {
	case "acc", "perm", "old", "new", "true", "false", "null", "write", "none":
		return true
	}
	return false
}
