package verify

import (
	"context"
	"fmt"
	"go/token"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gnoswap-labs/sepexec/internal/analysis/cfg"
	"github.com/gnoswap-labs/sepexec/internal/ast"
	"github.com/gnoswap-labs/sepexec/internal/decider"
	"github.com/gnoswap-labs/sepexec/internal/exec"
	"github.com/gnoswap-labs/sepexec/internal/result"
	"github.com/gnoswap-labs/sepexec/internal/state"
	"github.com/gnoswap-labs/sepexec/internal/term"
)

// Report is the outcome of verifying one method.
type Report struct {
	File     string         `json:"file"`
	Method   string         `json:"method"`
	Pos      token.Position `json:"-"`
	Trusted  bool           `json:"trusted,omitempty"`
	Result   result.Result  `json:"-"`
	Duration time.Duration  `json:"duration"`
}

// Failures returns the verification errors of the report.
func (r Report) Failures() []*result.VerificationError {
	return r.Result.Errors
}

// Verifier checks methods against their contracts.
type Verifier struct {
	config Config
	exec   *exec.Executor
	logger *zap.Logger
}

// New creates a verifier. A nil logger disables logging.
func New(config Config, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := decider.New(config.decider(), logger.Named("decider"))
	return &Verifier{
		config: config,
		exec:   exec.NewDefault(config.executor(), d, logger.Named("exec")),
		logger: logger,
	}
}

// VerifyMethod verifies a single method of prog. The preconditions are
// produced into an empty heap, the body is executed and the
// postconditions are consumed on every path reaching the end of the body.
// Methods without a body are trusted.
//
// Verification failures are reported in the returned Result. The error
// is non-nil only when the method could not be verified at all.
func (v *Verifier) VerifyMethod(prog *ast.Program, m *ast.Method) (r result.Result, err error) {
	if m.Body == nil {
		return result.Success(), nil
	}
	g, err := cfg.Build(m.Body)
	if err != nil {
		return result.Result{}, fmt.Errorf("method %s: %w", m.Name, err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			ie, ok := rec.(*result.InternalError)
			if !ok {
				panic(rec)
			}
			r, err = result.Result{}, fmt.Errorf("method %s: %w", m.Name, ie)
		}
	}()

	s, ctx := v.entry(prog, m)
	pre := result.For(result.ContractNotWellformed, m)
	post := result.For(result.PostconditionViolated, m)

	return v.exec.Producer.Produce(s, nil, term.FullPerm, ast.Conj(m.Pres...), pre, ctx, func(s1 state.State, ctx1 state.Context) result.Result {
		return v.exec.Exec(s1.WithOldHeap(s1.Heap), ctx1, g, func(s2 state.State, ctx2 state.Context) result.Result {
			return v.exec.Consumer.Consume(s2, term.FullPerm, ast.Conj(m.Posts...), post, ctx2, func(state.State, []state.Chunk, state.Context) result.Result {
				return result.Success()
			})
		})
	}), nil
}

// entry binds every formal, return and local of m to a fresh term.
func (v *Verifier) entry(prog *ast.Program, m *ast.Method) (state.State, state.Context) {
	ctx := state.NewContext(prog, term.NewGenerator())
	var (
		names []string
		vals  []term.Term
	)
	for _, group := range [][]*ast.Var{m.Formals, m.Returns, m.Locals} {
		for _, x := range group {
			names = append(names, x.Name)
			vals = append(vals, v.exec.Decider.Fresh(ctx, x.Name, x.Type.Sort()))
		}
	}
	return state.State{Store: state.NewStore(names, vals)}, ctx
}

// VerifyProgram verifies every method of prog, running up to
// Parallelism methods at once. Reports follow declaration order.
func (v *Verifier) VerifyProgram(ctx context.Context, file string, prog *ast.Program) ([]Report, error) {
	reports := make([]Report, len(prog.Methods))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.config.Parallelism)
	for i, m := range prog.Methods {
		i, m := i, m
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			started := time.Now()
			r, err := v.VerifyMethod(prog, m)
			if err != nil {
				v.logger.Error("Error verifying method", zap.String("file", file), zap.String("method", m.Name), zap.Error(err))
				return err
			}
			reports[i] = Report{
				File:     file,
				Method:   m.Name,
				Pos:      m.Position(),
				Trusted:  m.Body == nil,
				Result:   r,
				Duration: time.Since(started),
			}
			v.logger.Debug("Verified method",
				zap.String("file", file),
				zap.String("method", m.Name),
				zap.Stringer("result", r),
				zap.Duration("duration", reports[i].Duration),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
