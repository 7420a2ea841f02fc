package formatter

import (
	"os"
	"strings"
)

// SourceCode stores the content of a program file.
type SourceCode struct {
	Lines []string
}

// ReadSourceCode reads the content of a file and returns it as a `SourceCode` struct.
func ReadSourceCode(filename string) (*SourceCode, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return NewSourceCode(string(content)), nil
}

// NewSourceCode splits src into lines.
func NewSourceCode(src string) *SourceCode {
	return &SourceCode{Lines: strings.Split(src, "\n")}
}
