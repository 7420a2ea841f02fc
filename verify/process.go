package verify

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gnoswap-labs/sepexec/internal/parser"
)

// FileVerifier verifies a single program file.
type FileVerifier interface {
	VerifyFile(ctx context.Context, path string) ([]Report, error)
}

// VerifyFile loads and verifies the program stored at path.
func (v *Verifier) VerifyFile(ctx context.Context, path string) ([]Report, error) {
	prog, err := parser.LoadFile(path)
	if err != nil {
		return nil, err
	}
	v.logger.Debug("Loaded program",
		zap.String("file", path),
		zap.Int("fields", len(prog.Fields)),
		zap.Int("predicates", len(prog.Predicates)),
		zap.Int("methods", len(prog.Methods)),
	)
	return v.VerifyProgram(ctx, path, prog)
}

// ProcessFile verifies one file with engine.
func ProcessFile(ctx context.Context, engine FileVerifier, path string) ([]Report, error) {
	return engine.VerifyFile(ctx, path)
}

// Processor verifies one file.
type Processor func(context.Context, FileVerifier, string) ([]Report, error)

// ProcessFiles verifies every program file named by paths. Directories
// are walked for YAML files. Progress over directories is drawn on
// progress; a nil writer hides it.
func ProcessFiles(
	ctx context.Context,
	logger *zap.Logger,
	engine FileVerifier,
	paths []string,
	progress io.Writer,
	processor Processor,
) ([]Report, error) {
	var all []Report
	for _, path := range paths {
		reports, err := ProcessPath(ctx, logger, engine, path, progress, processor)
		if err != nil {
			if logger != nil {
				logger.Error("Error processing path", zap.String("path", path), zap.Error(err))
			}
			return nil, err
		}
		all = append(all, reports...)
	}
	return all, nil
}

// ProcessPath verifies a single file, or every program file below a
// directory. Reports are ordered by file name.
func ProcessPath(
	ctx context.Context,
	logger *zap.Logger,
	engine FileVerifier,
	path string,
	progress io.Writer,
	processor Processor,
) ([]Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing %s: %w", path, err)
	}
	if !info.IsDir() {
		return processor(ctx, engine, path)
	}

	files, err := programFiles(path)
	if err != nil {
		return nil, err
	}

	if progress == nil {
		progress = io.Discard
	}
	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription(path),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))

	perFile := make([][]Report, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports, err := processor(gctx, engine, file)
			if err != nil {
				if logger != nil {
					logger.Error("Error processing file", zap.String("file", file), zap.Error(err))
				}
				return err
			}
			perFile[i] = reports
			_ = bar.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	_ = bar.Finish()
	fmt.Fprintln(progress)

	reports := []Report{}
	for _, rs := range perFile {
		reports = append(reports, rs...)
	}
	return reports, nil
}

var programExtensions = map[string]bool{
	".yaml": true,
	".yml":  true,
}

func hasProgramExtension(path string) bool {
	return programExtensions[filepath.Ext(path)]
}

// programFiles lists the program files below root. The configuration
// file is skipped.
func programFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !hasProgramExtension(path) || d.Name() == DefaultConfigFile {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking directory %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}
