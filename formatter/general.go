package formatter

import (
	"fmt"

	"github.com/gnoswap-labs/sepexec/internal/result"
)

const failureTemplate = `{{header .ID .MaxLineNumWidth .Filename .Line .Column}}
{{snippet .SnippetLines .Line .MaxLineNumWidth .CommonIndent .Padding}}
{{underlineAndMessage .Message .Padding .Line .Column .EndColumn .SnippetLines .CommonIndent -}}
{{note .Padding .Note -}}
{{hint .Padding .Hint}}
`

type GeneralFailureFormatter struct{}

func (f *GeneralFailureFormatter) FailureTemplate() string {
	return failureTemplate
}

func (f *GeneralFailureFormatter) Hint(*result.VerificationError) string {
	return ""
}

type InvariantFailureFormatter struct{}

func (f *InvariantFailureFormatter) FailureTemplate() string {
	return failureTemplate
}

func (f *InvariantFailureFormatter) Hint(err *result.VerificationError) string {
	if err.Kind == result.LoopInvariantNotEstablished {
		return "the invariant is checked before the first iteration"
	}
	return "the invariant is checked after an iteration that started from the invariant and the guard"
}

type ContractFailureFormatter struct{}

func (f *ContractFailureFormatter) FailureTemplate() string {
	return failureTemplate
}

func (f *ContractFailureFormatter) Hint(err *result.VerificationError) string {
	if err.Kind == result.ContractNotWellformed {
		return "preconditions must hold access to every field they read"
	}
	return fmt.Sprintf("postconditions are checked on every path reaching the end of %s", err.Node)
}
