package parser

import (
	"fmt"
	"go/token"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gnoswap-labs/sepexec/internal/ast"
)

// A program file looks like:
//
//	fields: ["f: Int", "next: Ref"]
//	predicates:
//	  - name: P
//	    params: ["r: Ref"]
//	    body: "acc(r.f, write)"
//	methods:
//	  - name: inc
//	    params: ["x: Ref"]
//	    returns: ["res: Int"]
//	    requires: ["acc(x.f, write)"]
//	    ensures: ["acc(x.f, write) && x.f == old(x.f) + 1"]
//	    locals: ["i: Int"]
//	    body:
//	      - "x.f := x.f + 1"
//	      - if: "x.f > 0"
//	        then: ["res := 1"]
//	        else: ["res := 0"]
//	      - while: "i < 10"
//	        invariants: ["i <= 10"]
//	        do: ["i := i + 1"]
//	      - constraining: ["p"]
//	        do: ["exhale acc(x.f, p)"]
type fileDecl struct {
	Fields     []yaml.Node     `yaml:"fields"`
	Predicates []predicateDecl `yaml:"predicates"`
	Methods    []methodDecl    `yaml:"methods"`
}

type predicateDecl struct {
	Name   yaml.Node   `yaml:"name"`
	Params []yaml.Node `yaml:"params"`
	Body   yaml.Node   `yaml:"body"`
}

type methodDecl struct {
	Name     yaml.Node   `yaml:"name"`
	Params   []yaml.Node `yaml:"params"`
	Returns  []yaml.Node `yaml:"returns"`
	Requires []yaml.Node `yaml:"requires"`
	Ensures  []yaml.Node `yaml:"ensures"`
	Locals   []yaml.Node `yaml:"locals"`
	Body     yaml.Node   `yaml:"body"`
}

// LoadFile reads and parses the program file at path.
func LoadFile(path string) (*ast.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	return ParseFile(path, data)
}

// ParseFile parses a program file. filename is used for positions only.
func ParseFile(filename string, src []byte) (*ast.Program, error) {
	var decl fileDecl
	if err := yaml.Unmarshal(src, &decl); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	l := &loader{filename: filename}
	return l.program(&decl)
}

type loader struct {
	filename string
}

func (l *loader) at(n *yaml.Node) token.Position {
	pos := token.Position{Filename: l.filename, Line: n.Line, Column: n.Column}
	if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0 {
		pos.Column++
	}
	return pos
}

func (l *loader) errorf(n *yaml.Node, format string, args ...any) error {
	return &Error{Pos: l.at(n), Msg: fmt.Sprintf(format, args...)}
}

func (l *loader) scalar(n *yaml.Node, what string) (string, error) {
	if n.Kind != yaml.ScalarNode {
		return "", l.errorf(n, "%s must be a string", what)
	}
	return n.Value, nil
}

func (l *loader) program(decl *fileDecl) (*ast.Program, error) {
	fields := make([]*ast.Field, 0, len(decl.Fields))
	seenFields := make(map[string]bool)
	for i := range decl.Fields {
		v, err := l.decl(&decl.Fields[i])
		if err != nil {
			return nil, err
		}
		if v.Type == ast.TypeWand {
			return nil, l.errorf(&decl.Fields[i], "field %s cannot hold a wand", v.Name)
		}
		if seenFields[v.Name] {
			return nil, l.errorf(&decl.Fields[i], "field %s redeclared", v.Name)
		}
		seenFields[v.Name] = true
		fields = append(fields, &ast.Field{Pos: v.Pos, Name: v.Name, Type: v.Type})
	}

	// Predicate names and arities are known before any body is parsed so
	// that predicates may refer to each other.
	arity := make(map[string]int, len(decl.Predicates))
	for i := range decl.Predicates {
		pd := &decl.Predicates[i]
		name, err := l.scalar(&pd.Name, "predicate name")
		if err != nil {
			return nil, err
		}
		if _, dup := arity[name]; dup {
			return nil, l.errorf(&pd.Name, "predicate %s redeclared", name)
		}
		arity[name] = len(pd.Params)
	}
	global := NewScope(fields, arity)

	predicates := make([]*ast.Predicate, 0, len(decl.Predicates))
	for i := range decl.Predicates {
		pred, err := l.predicate(global, &decl.Predicates[i])
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, pred)
	}

	methods := make([]*ast.Method, 0, len(decl.Methods))
	seenMethods := make(map[string]bool)
	for i := range decl.Methods {
		m, err := l.method(global, &decl.Methods[i])
		if err != nil {
			return nil, err
		}
		if seenMethods[m.Name] {
			return nil, l.errorf(&decl.Methods[i].Name, "method %s redeclared", m.Name)
		}
		seenMethods[m.Name] = true
		methods = append(methods, m)
	}

	prog := ast.NewProgram(fields, predicates, methods)
	if err := checkCalls(prog); err != nil {
		return nil, err
	}
	return prog, nil
}

// decl parses a "name: Type" declaration, given either as a string or as
// a single-entry mapping.
func (l *loader) decl(n *yaml.Node) (*ast.Var, error) {
	var name, typ string
	if n.Kind == yaml.MappingNode && len(n.Content) == 2 {
		name, typ = n.Content[0].Value, n.Content[1].Value
	} else {
		s, err := l.scalar(n, "declaration")
		if err != nil {
			return nil, err
		}
		var ok bool
		if name, typ, ok = strings.Cut(s, ":"); !ok {
			return nil, l.errorf(n, "expected \"name: Type\", found %q", s)
		}
	}
	name, typ = strings.TrimSpace(name), strings.TrimSpace(typ)
	if name == "" {
		return nil, l.errorf(n, "declaration without a name")
	}
	t, ok := ast.ParseType(typ)
	if !ok {
		return nil, l.errorf(n, "unknown type %s", typ)
	}
	return &ast.Var{Pos: ast.Pos{At: l.at(n)}, Name: name, Type: t}, nil
}

func (l *loader) decls(ns []yaml.Node) ([]*ast.Var, error) {
	vs := make([]*ast.Var, 0, len(ns))
	for i := range ns {
		v, err := l.decl(&ns[i])
		if err != nil {
			return nil, err
		}
		vs = append(vs, v)
	}
	return vs, nil
}

func (l *loader) predicate(global *Scope, pd *predicateDecl) (*ast.Predicate, error) {
	formals, err := l.decls(pd.Params)
	if err != nil {
		return nil, err
	}
	sc, err := global.With(formals...)
	if err != nil {
		return nil, l.errorf(&pd.Name, "%v", err)
	}
	pred := &ast.Predicate{Pos: ast.Pos{At: l.at(&pd.Name)}, Name: pd.Name.Value, Formals: formals}
	if pd.Body.Kind == 0 {
		return pred, nil
	}
	if pred.Body, err = l.expr(sc, &pd.Body); err != nil {
		return nil, err
	}
	return pred, nil
}

func (l *loader) method(global *Scope, md *methodDecl) (*ast.Method, error) {
	name, err := l.scalar(&md.Name, "method name")
	if err != nil {
		return nil, err
	}
	m := &ast.Method{Pos: ast.Pos{At: l.at(&md.Name)}, Name: name}
	if m.Formals, err = l.decls(md.Params); err != nil {
		return nil, err
	}
	if m.Returns, err = l.decls(md.Returns); err != nil {
		return nil, err
	}
	if m.Locals, err = l.decls(md.Locals); err != nil {
		return nil, err
	}

	contract, err := global.With(append(append([]*ast.Var(nil), m.Formals...), m.Returns...)...)
	if err != nil {
		return nil, l.errorf(&md.Name, "%v", err)
	}
	for i := range md.Requires {
		e, err := l.expr(contract, &md.Requires[i])
		if err != nil {
			return nil, err
		}
		m.Pres = append(m.Pres, e)
	}
	for i := range md.Ensures {
		e, err := l.expr(contract, &md.Ensures[i])
		if err != nil {
			return nil, err
		}
		m.Posts = append(m.Posts, e)
	}

	if md.Body.Kind == 0 {
		return m, nil
	}
	body, err := global.With(append(append(append([]*ast.Var(nil), m.Formals...), m.Returns...), m.Locals...)...)
	if err != nil {
		return nil, l.errorf(&md.Name, "%v", err)
	}
	if m.Body, err = l.seqn(body, &md.Body); err != nil {
		return nil, err
	}
	return m, nil
}

func (l *loader) expr(sc *Scope, n *yaml.Node) (ast.Expr, error) {
	s, err := l.scalar(n, "expression")
	if err != nil {
		return nil, err
	}
	return ParseExpr(s, l.at(n), sc)
}

func (l *loader) exprs(sc *Scope, n *yaml.Node) ([]ast.Expr, error) {
	if n.Kind == yaml.ScalarNode {
		e, err := l.expr(sc, n)
		if err != nil {
			return nil, err
		}
		return []ast.Expr{e}, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, l.errorf(n, "expected a list of expressions")
	}
	out := make([]ast.Expr, 0, len(n.Content))
	for _, c := range n.Content {
		e, err := l.expr(sc, c)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *loader) seqn(sc *Scope, n *yaml.Node) (*ast.Seqn, error) {
	seq := &ast.Seqn{Pos: ast.Pos{At: l.at(n)}}
	switch n.Kind {
	case 0:
		return seq, nil
	case yaml.ScalarNode, yaml.MappingNode:
		st, err := l.stmt(sc, n)
		if err != nil {
			return nil, err
		}
		seq.Stmts = []ast.Stmt{st}
		return seq, nil
	case yaml.SequenceNode:
		for _, c := range n.Content {
			st, err := l.stmt(sc, c)
			if err != nil {
				return nil, err
			}
			seq.Stmts = append(seq.Stmts, st)
		}
		return seq, nil
	}
	return nil, l.errorf(n, "expected a list of statements")
}

// stmt parses a statement string or one of the structured mappings.
func (l *loader) stmt(sc *Scope, n *yaml.Node) (ast.Stmt, error) {
	if n.Kind == yaml.ScalarNode {
		return ParseStmt(n.Value, l.at(n), sc)
	}
	if n.Kind != yaml.MappingNode {
		return nil, l.errorf(n, "expected a statement")
	}

	keys := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		keys[n.Content[i].Value] = n.Content[i+1]
	}
	empty := &yaml.Node{}
	get := func(k string) *yaml.Node {
		if v, ok := keys[k]; ok {
			return v
		}
		return empty
	}
	pos := ast.Pos{At: l.at(n)}

	switch {
	case keys["if"] != nil:
		cond, err := l.expr(sc, keys["if"])
		if err != nil {
			return nil, err
		}
		then, err := l.seqn(sc, get("then"))
		if err != nil {
			return nil, err
		}
		els, err := l.seqn(sc, get("else"))
		if err != nil {
			return nil, err
		}
		return &ast.If{Pos: pos, Cond: cond, Then: then, Else: els}, nil

	case keys["while"] != nil:
		cond, err := l.expr(sc, keys["while"])
		if err != nil {
			return nil, err
		}
		var invs []ast.Expr
		if inv := get("invariants"); inv.Kind != 0 {
			if invs, err = l.exprs(sc, inv); err != nil {
				return nil, err
			}
		}
		body, err := l.seqn(sc, get("do"))
		if err != nil {
			return nil, err
		}
		return &ast.While{Pos: pos, Cond: cond, Invariants: invs, Body: body}, nil

	case keys["constraining"] != nil:
		vars, err := l.vars(sc, keys["constraining"])
		if err != nil {
			return nil, err
		}
		body, err := l.seqn(sc, get("do"))
		if err != nil {
			return nil, err
		}
		return &ast.Constraining{Pos: pos, Vars: vars, Body: body}, nil
	}
	return nil, l.errorf(n, "expected one of if, while or constraining")
}

// vars resolves a list of permission variable names.
func (l *loader) vars(sc *Scope, n *yaml.Node) ([]*ast.Var, error) {
	var names []*yaml.Node
	switch n.Kind {
	case yaml.ScalarNode:
		names = []*yaml.Node{n}
	case yaml.SequenceNode:
		names = n.Content
	default:
		return nil, l.errorf(n, "expected a list of variables")
	}
	out := make([]*ast.Var, 0, len(names))
	for _, c := range names {
		for _, name := range strings.Split(c.Value, ",") {
			name = strings.TrimSpace(name)
			v, ok := sc.vars[name]
			if !ok {
				return nil, l.errorf(c, "undefined: %s", name)
			}
			if v.Type != ast.TypePerm {
				return nil, l.errorf(c, "constraining %s of type %s", name, v.Type)
			}
			out = append(out, &ast.Var{Pos: ast.Pos{At: l.at(c)}, Name: v.Name, Type: v.Type})
		}
	}
	return out, nil
}

// checkCalls verifies that every call names a declared method with a
// matching signature.
func checkCalls(prog *ast.Program) error {
	var check func(st ast.Stmt) error
	check = func(st ast.Stmt) error {
		switch st := st.(type) {
		case *ast.Seqn:
			if st == nil {
				return nil
			}
			for _, c := range st.Stmts {
				if err := check(c); err != nil {
					return err
				}
			}
		case *ast.If:
			if err := check(st.Then); err != nil {
				return err
			}
			return check(st.Else)
		case *ast.While:
			return check(st.Body)
		case *ast.Constraining:
			return check(st.Body)
		case *ast.MethodCall:
			m, ok := prog.FindMethod(st.Method)
			if !ok {
				return &Error{Pos: st.Position(), Msg: "undefined method " + st.Method}
			}
			if len(st.Args) != len(m.Formals) || len(st.Targets) != len(m.Returns) {
				return &Error{Pos: st.Position(), Msg: fmt.Sprintf(
					"%s takes %d arguments and returns %d values", m.Name, len(m.Formals), len(m.Returns))}
			}
		}
		return nil
	}
	for _, m := range prog.Methods {
		if m.Body == nil {
			continue
		}
		if err := check(m.Body); err != nil {
			return err
		}
	}
	return nil
}
