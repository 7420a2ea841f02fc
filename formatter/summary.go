package formatter

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/gnoswap-labs/sepexec/verify"
)

var (
	okStyle      = color.New(color.FgGreen, color.Bold)
	trustedStyle = color.New(color.FgHiBlack)
)

// Summary renders one status line per method followed by the totals.
func Summary(reports []verify.Report) string {
	var (
		builder strings.Builder
		failed  int
		trusted int
	)
	for _, r := range reports {
		switch {
		case r.Trusted:
			trusted++
			builder.WriteString(trustedStyle.Sprint("trusted"))
		case r.Result.IsFailure():
			failed++
			builder.WriteString(errorStyle.Sprint("FAIL   "))
		default:
			builder.WriteString(okStyle.Sprint("ok     "))
		}
		fmt.Fprintf(&builder, " %s %s", fileStyle.Sprint(r.File), r.Method)
		if n := len(r.Failures()); n > 0 {
			fmt.Fprintf(&builder, ": %d %s", n, plural(n, "failure"))
		}
		builder.WriteString("\n")
	}

	checked := len(reports) - trusted
	fmt.Fprintf(&builder, "%d %s checked", checked, plural(checked, "method"))
	if trusted > 0 {
		fmt.Fprintf(&builder, ", %d trusted", trusted)
	}
	if failed > 0 {
		builder.WriteString(", ")
		builder.WriteString(errorStyle.Sprintf("%d failed", failed))
	}
	builder.WriteString("\n")
	return builder.String()
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
