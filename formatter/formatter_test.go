package formatter

import (
	"go/token"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/gnoswap-labs/sepexec/internal/ast"
	"github.com/gnoswap-labs/sepexec/internal/result"
	"github.com/gnoswap-labs/sepexec/verify"
)

func init() {
	color.NoColor = true
}

const program = `methods:
  - name: m
    body:
      - "assert false"`

func at(line, column int) ast.Pos {
	return ast.Pos{At: token.Position{Filename: "prog.yaml", Line: line, Column: column}}
}

func assertFailure() *result.VerificationError {
	stmt := &ast.Assert{Pos: at(4, 10), Expr: ast.Bool(false)}
	return result.For(result.AssertFailed, stmt).DueTo(result.AssertionFalse, stmt.Expr)
}

func TestGenerateFormattedFailure(t *testing.T) {
	t.Parallel()
	expected := `error: assert.failed:assertion.false
 --> prog.yaml:4:10
  |
4 | - "assert false"
  |    ~~~~~~~~~~~~
  = Assert might fail.
  = note: Assertion false might not hold.

`
	got := GenerateFormattedFailure([]*result.VerificationError{assertFailure()}, NewSourceCode(program))
	assert.Equal(t, expected, got)
}

func TestGenerateFormattedFailureContract(t *testing.T) {
	t.Parallel()
	m := &ast.Method{Pos: at(2, 11), Name: "m"}
	err := result.For(result.PostconditionViolated, m).DueTo(result.AssertionFalse, ast.Bin(ast.OpEq, ast.Int(1), ast.Int(2)))

	expected := `error: postcondition.violated:assertion.false
 --> prog.yaml:2:11
  |
2 | - name: m
  |         ~
  = Postcondition might not hold.
  = note: Assertion (1 == 2) might not hold.
  = hint: postconditions are checked on every path reaching the end of method m

`
	got := GenerateFormattedFailure([]*result.VerificationError{err}, NewSourceCode(program))
	assert.Equal(t, expected, got)
}

func TestGenerateFormattedFailureWithoutSource(t *testing.T) {
	t.Parallel()
	expected := `error: assert.failed:assertion.false
 --> prog.yaml:4:10
  |
  = Assert might fail.
  = note: Assertion false might not hold.

`
	assert.Equal(t, expected, GenerateFormattedFailure([]*result.VerificationError{assertFailure()}, nil))
}

func TestGenerateFormattedFailureTabs(t *testing.T) {
	t.Parallel()
	stmt := &ast.Assert{Pos: at(1, 3), Expr: ast.Bool(false)}
	err := result.For(result.AssertFailed, stmt).DueTo(result.AssertionFalse, stmt.Expr)
	// The common indent is stripped before the underline is placed.
	got := GenerateFormattedFailure([]*result.VerificationError{err}, NewSourceCode("\t\tassert false"))
	assert.Contains(t, got, "1 | assert false\n  | ~~~~~~~~~~~~\n")
}

func TestGetFailureFormatter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind result.ErrorKind
		want failureFormatter
	}{
		{result.AssertFailed, &GeneralFailureFormatter{}},
		{result.LoopInvariantNotEstablished, &InvariantFailureFormatter{}},
		{result.LoopInvariantNotPreserved, &InvariantFailureFormatter{}},
		{result.PostconditionViolated, &ContractFailureFormatter{}},
		{result.ContractNotWellformed, &ContractFailureFormatter{}},
	}
	for _, tt := range tests {
		assert.IsType(t, tt.want, getFailureFormatter(tt.kind), tt.kind.String())
	}
}

func TestStatementEnd(t *testing.T) {
	t.Parallel()
	tests := []struct {
		line   string
		column int
		want   int
	}{
		{`  - "x := 1"`, 6, 11},
		{`  - x := 1  `, 5, 10},
		{`short`, 9, 9},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statementEnd(tt.line, tt.column), tt.line)
	}
}

func TestFindCommonIndent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{"Empty", nil, ""},
		{"Spaces", []string{"    a", "      b"}, "    "},
		{"Mixed", []string{"\t a", "\t\tb"}, "\t"},
		{"BlankLinesIgnored", []string{"", "  a", "   "}, "  "},
		{"NoIndent", []string{"a", "  b"}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, findCommonIndent(tt.lines), tt.name)
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()
	reports := []verify.Report{
		{File: "a.yaml", Method: "inc", Result: result.Success()},
		{File: "a.yaml", Method: "abstract", Trusted: true, Result: result.Success()},
		{File: "b.yaml", Method: "m", Result: result.Failure(assertFailure()).Collect(func() result.Result {
			return result.Failure(assertFailure())
		})},
	}
	expected := `ok      a.yaml inc
trusted a.yaml abstract
FAIL    b.yaml m: 2 failures
2 methods checked, 1 trusted, 1 failed
`
	assert.Equal(t, expected, Summary(reports))
	assert.Equal(t, "0 methods checked\n", Summary(nil))
}
