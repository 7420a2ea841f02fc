package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnoswap-labs/sepexec/formatter"
	"github.com/gnoswap-labs/sepexec/internal/result"
	"github.com/gnoswap-labs/sepexec/verify"
)

var (
	jsonOutput bool
	outPath    string
	reportAll  bool
	quiet      bool
	cacheDir   string
	watch      bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify [paths...]",
	Short: "Verify every method of the given program files",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println("error: Please provide file or directory paths")
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		config, err := loadConfiguration(cfgFile)
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		if reportAll {
			config.ReportAll = true
		}

		opts := verifyOptions{
			config:   config,
			progress: os.Stderr,
			stdout:   cmd.OutOrStdout(),
			json:     jsonOutput,
			jsonPath: outPath,
			cacheDir: cacheDir,
		}
		if quiet || jsonOutput {
			opts.progress = nil
		}

		failed, err := runVerification(ctx, logger, args, opts)
		if err != nil {
			logger.Error("Error verifying files", zap.Error(err))
			os.Exit(1)
		}

		if watch {
			wctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			if err := watchFiles(wctx, logger, args, opts); err != nil {
				logger.Error("Error watching files", zap.Error(err))
				os.Exit(1)
			}
			return
		}
		if failed {
			os.Exit(1)
		}
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output reports in JSON format")
	verifyCmd.Flags().StringVarP(&outPath, "output", "o", "", "Output path (when using JSON)")
	verifyCmd.Flags().BoolVar(&reportAll, "report-all", false, "Report every failure of a method")
	verifyCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide the progress bar")
	verifyCmd.Flags().StringVar(&cacheDir, "cache", "", "Directory caching files that verified")
	verifyCmd.Flags().BoolVarP(&watch, "watch", "w", false, "Verify files again whenever they change")
}

// loadConfiguration reads path, or the default configuration file when
// path is empty and the file exists.
func loadConfiguration(path string) (verify.Config, error) {
	if path == "" {
		if _, err := os.Stat(verify.DefaultConfigFile); err == nil {
			path = verify.DefaultConfigFile
		} else if !errors.Is(err, os.ErrNotExist) {
			return verify.Config{}, err
		}
	}
	return verify.LoadConfig(path)
}

type verifyOptions struct {
	config   verify.Config
	progress io.Writer
	stdout   io.Writer
	json     bool
	jsonPath string
	cacheDir string
}

func (o verifyOptions) engine(logger *zap.Logger) (verify.FileVerifier, error) {
	var engine verify.FileVerifier = verify.New(o.config, logger)
	if o.cacheDir == "" {
		return engine, nil
	}
	cache, err := verify.NewCache(o.cacheDir, o.config)
	if err != nil {
		return nil, err
	}
	return verify.WithCache(engine, cache), nil
}

// runVerification verifies paths and prints the reports. It reports
// whether any method failed to verify.
func runVerification(ctx context.Context, logger *zap.Logger, paths []string, opts verifyOptions) (bool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine, err := opts.engine(logger)
	if err != nil {
		return false, err
	}
	reports, err := verify.ProcessFiles(ctx, logger, engine, paths, opts.progress, verify.ProcessFile)
	if err != nil {
		return false, err
	}

	failed := false
	for _, r := range reports {
		if r.Result.IsFailure() {
			failed = true
			break
		}
	}

	if opts.json {
		return failed, writeJSON(opts.stdout, reports, opts.jsonPath)
	}
	printReports(logger, opts.stdout, reports)
	return failed, nil
}

// watchFiles verifies changed files until ctx is done.
func watchFiles(ctx context.Context, logger *zap.Logger, paths []string, opts verifyOptions) error {
	engine, err := opts.engine(logger)
	if err != nil {
		return err
	}
	w, err := verify.NewWatcher(engine, logger, func(path string, reports []verify.Report, err error) {
		if err != nil {
			logger.Error("Error verifying file", zap.String("file", path), zap.Error(err))
			return
		}
		if opts.json {
			if err := writeJSON(opts.stdout, reports, ""); err != nil {
				logger.Error("Error writing reports", zap.Error(err))
			}
			return
		}
		printReports(logger, opts.stdout, reports)
	})
	if err != nil {
		return err
	}
	if err := w.Add(paths...); err != nil {
		return err
	}
	logger.Info("Watching for changes", zap.Strings("paths", paths))
	return w.Run(ctx)
}

func printReports(logger *zap.Logger, w io.Writer, reports []verify.Report) {
	byFile := make(map[string][]*result.VerificationError)
	var files []string
	for _, r := range reports {
		if len(r.Failures()) == 0 {
			continue
		}
		if _, seen := byFile[r.File]; !seen {
			files = append(files, r.File)
		}
		byFile[r.File] = append(byFile[r.File], r.Failures()...)
	}

	for _, file := range files {
		source, err := formatter.ReadSourceCode(file)
		if err != nil {
			logger.Error("Error reading source file", zap.String("file", file), zap.Error(err))
		}
		fmt.Fprint(w, formatter.GenerateFormattedFailure(byFile[file], source))
	}
	fmt.Fprint(w, formatter.Summary(reports))
}

type jsonFailure struct {
	ID       string `json:"id"`
	Message  string `json:"message"`
	Position string `json:"position"`
}

type jsonReport struct {
	verify.Report
	Status   string        `json:"status"`
	Failures []jsonFailure `json:"failures,omitempty"`
}

func writeJSON(stdout io.Writer, reports []verify.Report, path string) error {
	out := make([]jsonReport, len(reports))
	for i, r := range reports {
		jr := jsonReport{Report: r, Status: r.Result.Kind.String()}
		for _, f := range r.Failures() {
			jr.Failures = append(jr.Failures, jsonFailure{
				ID:       f.ID(),
				Message:  f.Kind.Message() + " " + f.Reason.String(),
				Position: f.Position().String(),
			})
		}
		out[i] = jr
	}

	d, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("error marshalling reports to JSON: %w", err)
	}
	if path == "" {
		_, err = fmt.Fprintln(stdout, string(d))
		return err
	}
	return os.WriteFile(path, d, 0o644)
}
