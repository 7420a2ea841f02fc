package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnoswap-labs/sepexec/internal/analysis/cfg"
	"github.com/gnoswap-labs/sepexec/internal/parser"
)

// variable for flags
var (
	methodName string
	output     string
)

var cfgCmd = &cobra.Command{
	Use:   "cfg [file]",
	Short: "Print the control flow graph of a method",
	Long: `Outputs the Control Flow Graph (CFG) of the specified method in GraphViz DOT format.
Example) sepexec cfg --method inc counter.yaml`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCFGAnalysis(cmd.OutOrStdout(), args[0], methodName, output); err != nil {
			logger.Error("Failed to build CFG", zap.String("path", args[0]), zap.Error(err))
			os.Exit(1)
		}
	},
}

func init() {
	cfgCmd.Flags().StringVar(&methodName, "method", "", "Method name for CFG analysis")
	cfgCmd.Flags().StringVarP(&output, "output", "o", "", "Output path for the DOT file")
	_ = cfgCmd.MarkFlagRequired("method")
}

func runCFGAnalysis(stdout io.Writer, path string, methodName string, output string) error {
	prog, err := parser.LoadFile(path)
	if err != nil {
		return err
	}
	m, ok := prog.FindMethod(methodName)
	if !ok {
		return fmt.Errorf("method not found: %s", methodName)
	}
	if m.Body == nil {
		return fmt.Errorf("method %s has no body", methodName)
	}
	g, err := cfg.Build(m.Body)
	if err != nil {
		return err
	}

	if output == "" {
		return g.PrintDot(stdout)
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", output, err)
	}
	defer f.Close()
	if err := g.PrintDot(f); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "DOT file created: %s\n", output)
	return nil
}
