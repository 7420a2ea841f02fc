package ast

// Field is a heap field declaration.
type Field struct {
	Pos
	Name string
	Type Type
}

// Predicate is a named, parameterised assertion. A nil Body makes the
// predicate abstract.
type Predicate struct {
	Pos
	Name    string
	Formals []*Var
	Body    Expr
}

func (p *Predicate) String() string { return "predicate " + p.Name }

// Method is a procedure with a contract. A nil Body makes it abstract.
type Method struct {
	Pos
	Name    string
	Formals []*Var
	Returns []*Var
	Pres    []Expr
	Posts   []Expr
	Locals  []*Var
	Body    *Seqn
}

func (m *Method) String() string { return "method " + m.Name }

// Program is the read-only table of fields, predicates and methods.
type Program struct {
	Fields     []*Field
	Predicates []*Predicate
	Methods    []*Method

	fields     map[string]*Field
	predicates map[string]*Predicate
	methods    map[string]*Method
}

// NewProgram indexes the declarations by name.
func NewProgram(fields []*Field, predicates []*Predicate, methods []*Method) *Program {
	p := &Program{
		Fields:     fields,
		Predicates: predicates,
		Methods:    methods,
		fields:     make(map[string]*Field, len(fields)),
		predicates: make(map[string]*Predicate, len(predicates)),
		methods:    make(map[string]*Method, len(methods)),
	}
	for _, f := range fields {
		p.fields[f.Name] = f
	}
	for _, pr := range predicates {
		p.predicates[pr.Name] = pr
	}
	for _, m := range methods {
		p.methods[m.Name] = m
	}
	return p
}

// FindMethod looks a method up by name.
func (p *Program) FindMethod(name string) (*Method, bool) {
	m, ok := p.methods[name]
	return m, ok
}

// FindPredicate looks a predicate up by name.
func (p *Program) FindPredicate(name string) (*Predicate, bool) {
	pr, ok := p.predicates[name]
	return pr, ok
}

// FindField looks a field up by name.
func (p *Program) FindField(name string) (*Field, bool) {
	f, ok := p.fields[name]
	return f, ok
}
