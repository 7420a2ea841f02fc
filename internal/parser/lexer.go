package parser

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType defines the kinds of tokens produced by the lexer.
type TokenType int

const (
	TokenIdent TokenType = iota // identifiers and keywords
	TokenInt                    // decimal integer literals
	TokenPunct                  // operators and delimiters
	TokenEOF                    // end of input
)

func (t TokenType) String() string {
	switch t {
	case TokenIdent:
		return "identifier"
	case TokenInt:
		return "integer"
	case TokenPunct:
		return "operator"
	case TokenEOF:
		return "end of input"
	default:
		return "?"
	}
}

// Token is a single lexical token with its byte offset in the input.
type Token struct {
	Type   TokenType
	Value  string
	Offset int
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return t.Type.String()
	}
	return fmt.Sprintf("%q", t.Value)
}

// Longest operators first so that "--*" wins over "-" and "==>" over "==".
var operators = []string{
	"--*", "==>",
	":=", "==", "!=", "<=", ">=", "&&", "||",
	"(", ")", "[", "]", ",", ".", ":",
	"+", "-", "*", "/", "%", "<", ">", "!",
}

// Lexer scans an input string and produces tokens.
type Lexer struct {
	input    string // the entire input to tokenize
	position int    // current reading position in input
	tokens   []Token
}

// NewLexer returns a new Lexer for input.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		tokens: make([]Token, 0),
	}
}

// Tokenize processes the entire input. The last token is always TokenEOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	for l.position < len(l.input) {
		c := l.input[l.position]
		switch {
		case isWhitespace(c):
			l.position++

		case isIdentStart(c):
			l.lexWhile(TokenIdent, isIdentPart)

		case isDigit(c):
			l.lexWhile(TokenInt, isDigit)

		default:
			if !l.lexOperator() {
				return nil, &lexError{offset: l.position, char: c}
			}
		}
	}

	l.addToken(TokenEOF, "", l.position)
	return l.tokens, nil
}

// lexWhile consumes the longest run of bytes satisfying pred.
func (l *Lexer) lexWhile(typ TokenType, pred func(byte) bool) {
	start := l.position
	for l.position < len(l.input) && pred(l.input[l.position]) {
		l.position++
	}
	l.addToken(typ, l.input[start:l.position], start)
}

func (l *Lexer) lexOperator() bool {
	rest := l.input[l.position:]
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			l.addToken(TokenPunct, op, l.position)
			l.position += len(op)
			return true
		}
	}
	return false
}

func (l *Lexer) addToken(typ TokenType, value string, offset int) {
	l.tokens = append(l.tokens, Token{Type: typ, Value: value, Offset: offset})
}

type lexError struct {
	offset int
	char   byte
}

func (e *lexError) Error() string {
	return fmt.Sprintf("unexpected character %q", e.char)
}

func isWhitespace(c byte) bool {
	return unicode.IsSpace(rune(c))
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '$'
}
