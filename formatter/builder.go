package formatter

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode"

	"github.com/fatih/color"

	"github.com/gnoswap-labs/sepexec/internal/result"
)

const tabWidth = 8

var (
	errorStyle      = color.New(color.FgRed, color.Bold)
	ruleStyle       = color.New(color.FgYellow, color.Bold)
	fileStyle       = color.New(color.FgCyan, color.Bold)
	lineStyle       = color.New(color.FgHiBlue, color.Bold)
	messageStyle    = color.New(color.FgRed, color.Bold)
	suggestionStyle = color.New(color.FgGreen, color.Bold)
)

// failureFormatter is implemented by the renderers of specific failure kinds.
type failureFormatter interface {
	FailureTemplate() string
	Hint(err *result.VerificationError) string
}

// getFailureFormatter returns the formatter for kind. Kinds without a
// dedicated formatter use GeneralFailureFormatter.
func getFailureFormatter(kind result.ErrorKind) failureFormatter {
	switch kind {
	case result.LoopInvariantNotEstablished, result.LoopInvariantNotPreserved:
		return &InvariantFailureFormatter{}
	case result.PostconditionViolated, result.ContractNotWellformed:
		return &ContractFailureFormatter{}
	default:
		return &GeneralFailureFormatter{}
	}
}

// GenerateFormattedFailure renders failures found in one file against its
// source.
func GenerateFormattedFailure(failures []*result.VerificationError, snippet *SourceCode) string {
	var builder strings.Builder
	for _, f := range failures {
		builder.WriteString(buildFailure(f, snippet, getFailureFormatter(f.Kind)))
	}
	return builder.String()
}

/***** Failure Formatter Builder *****/

type FailureData struct {
	ID              string
	Filename        string
	Padding         string
	Line            int
	Column          int
	EndColumn       int
	MaxLineNumWidth int
	Message         string
	Note            string
	Hint            string
	SnippetLines    []string
	CommonIndent    string
}

func buildFailure(f *result.VerificationError, snippet *SourceCode, formatter failureFormatter) string {
	pos := f.Position()
	maxLineNumWidth := calculateMaxLineNumWidth(pos.Line)
	padding := strings.Repeat(" ", maxLineNumWidth+1)

	var lines []string
	if snippet != nil {
		lines = snippet.Lines
	}
	var commonIndent string
	endColumn := pos.Column
	if isValidLine(pos.Line, lines) {
		commonIndent = findCommonIndent(lines[pos.Line-1 : pos.Line])
		endColumn = statementEnd(lines[pos.Line-1], pos.Column)
	}

	data := FailureData{
		ID:              f.ID(),
		Filename:        pos.Filename,
		Padding:         padding,
		Line:            pos.Line,
		Column:          pos.Column,
		EndColumn:       endColumn,
		MaxLineNumWidth: maxLineNumWidth,
		Message:         f.Kind.Message(),
		Note:            f.Reason.String(),
		Hint:            formatter.Hint(f),
		SnippetLines:    lines,
		CommonIndent:    commonIndent,
	}

	funcMap := template.FuncMap{
		"header":              header,
		"snippet":             codeSnippet,
		"underlineAndMessage": underlineAndMessage,
		"note":                note,
		"hint":                hint,
	}

	tmpl := template.Must(template.New("failure").Funcs(funcMap).Parse(formatter.FailureTemplate()))

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("Error formatting failure: %v", err)
	}
	return buf.String()
}

// utils functions used in the text templates

func header(id string, maxLineNumWidth int, filename string, line int, column int) string {
	endString := errorStyle.Sprint("error: ")
	endString += ruleStyle.Sprintf("%s\n", id)

	padding := strings.Repeat(" ", maxLineNumWidth)
	endString += lineStyle.Sprintf("%s--> ", padding)
	endString += fileStyle.Sprintf("%s:%d:%d", filename, line, column)
	return endString
}

func codeSnippet(snippetLines []string, line int, maxLineNumWidth int, commonIndent string, padding string) string {
	endString := lineStyle.Sprintf("%s|", padding)
	if !isValidLine(line, snippetLines) {
		return endString
	}
	text := strings.TrimPrefix(snippetLines[line-1], commonIndent)
	endString += lineStyle.Sprintf("\n%*d | ", maxLineNumWidth, line)
	endString += text
	return endString
}

func underlineAndMessage(message string, padding string, line int, column int, endColumn int, snippetLines []string, commonIndent string) string {
	var endString string
	if isValidLine(line, snippetLines) {
		commonIndentWidth := calculateVisualColumn(commonIndent, len(commonIndent)+1)
		source := snippetLines[line-1]

		underlineStart := calculateVisualColumn(source, column) - commonIndentWidth
		if underlineStart < 0 {
			underlineStart = 0
		}
		underlineEnd := calculateVisualColumn(source, endColumn) - commonIndentWidth
		underlineLength := underlineEnd - underlineStart + 1
		if underlineLength < 1 {
			underlineLength = 1
		}

		endString += lineStyle.Sprintf("%s| ", padding)
		endString += strings.Repeat(" ", underlineStart)
		endString += messageStyle.Sprintf("%s\n", strings.Repeat("~", underlineLength))
	}

	endString += lineStyle.Sprintf("%s= ", padding)
	endString += messageStyle.Sprintf("%s\n", message)
	return endString
}

func note(padding string, note string) string {
	if note == "" {
		return ""
	}
	endString := lineStyle.Sprintf("%s= ", padding)
	endString += suggestionStyle.Sprint("note: ")
	endString += fmt.Sprintf("%s\n", note)
	return endString
}

func hint(padding string, hint string) string {
	if hint == "" {
		return ""
	}
	endString := lineStyle.Sprintf("%s= ", padding)
	endString += suggestionStyle.Sprint("hint: ")
	endString += fmt.Sprintf("%s\n", hint)
	return endString
}

func isValidLine(line int, snippetLines []string) bool {
	return line > 0 && line <= len(snippetLines)
}

func calculateMaxLineNumWidth(line int) int {
	return len(fmt.Sprintf("%d", line))
}

// statementEnd returns the column of the last character of the statement
// starting at column. Statements end at a closing quote or at the end of
// the line.
func statementEnd(line string, column int) int {
	if column < 1 || column > len(line) {
		return column
	}
	rest := line[column-1:]
	if i := strings.IndexAny(rest, `"'`); i > 0 {
		return column + i - 1
	}
	return column + len(strings.TrimRightFunc(rest, unicode.IsSpace)) - 1
}

// calculateVisualColumn calculates the visual column position
// in a string. taking into account tab characters.
func calculateVisualColumn(line string, column int) int {
	if column < 0 {
		return 0
	}
	visualColumn := 0
	for i, ch := range line {
		if i+1 == column {
			break
		}
		if ch == '\t' {
			visualColumn += tabWidth - (visualColumn % tabWidth)
		} else {
			visualColumn++
		}
	}
	return visualColumn
}

// findCommonIndent finds the common indent in the code snippet.
func findCommonIndent(lines []string) string {
	var common []rune
	found := false
	for _, line := range lines {
		trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
		if trimmed == "" {
			continue
		}
		indent := []rune(line[:len(line)-len(trimmed)])
		if !found {
			common, found = indent, true
			continue
		}
		common = commonPrefix(common, indent)
		if len(common) == 0 {
			break
		}
	}
	return string(common)
}

// commonPrefix finds the common prefix of two strings.
func commonPrefix(a, b []rune) []rune {
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:minLen]
}
