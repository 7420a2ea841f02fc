package exec

import (
	"go.uber.org/zap"

	"github.com/gnoswap-labs/sepexec/internal/ast"
	"github.com/gnoswap-labs/sepexec/internal/decider"
	"github.com/gnoswap-labs/sepexec/internal/eval"
	"github.com/gnoswap-labs/sepexec/internal/resources"
	"github.com/gnoswap-labs/sepexec/internal/result"
	"github.com/gnoswap-labs/sepexec/internal/state"
	"github.com/gnoswap-labs/sepexec/internal/term"
)

// Evaluator evaluates pure expressions.
type Evaluator interface {
	Eval(s state.State, e ast.Expr, pve result.Partial, ctx state.Context, Q eval.Continuation) result.Result
	Evals(s state.State, es []ast.Expr, pve result.Partial, ctx state.Context, Q eval.ListContinuation) result.Result
}

// Producer adds the resources and facts of an assertion.
type Producer interface {
	Produce(s state.State, snap state.Snapshot, p term.Term, a ast.Expr, pve result.Partial, ctx state.Context, Q state.Continuation) result.Result
}

// Consumer removes the resources of an assertion and checks its facts.
type Consumer interface {
	Consume(s state.State, p term.Term, a ast.Expr, pve result.Partial, ctx state.Context, Q resources.ConsumeContinuation) result.Result
}

// PredicateSupport folds and unfolds predicate instances.
type PredicateSupport interface {
	Fold(s state.State, pred *ast.Predicate, args []term.Term, p term.Term, pve result.Partial, ctx state.Context, Q state.Continuation) result.Result
	Unfold(s state.State, pred *ast.Predicate, acc *ast.PredicateAcc, args []term.Term, p term.Term, pve result.Partial, ctx state.Context, Q state.Continuation) result.Result
}

// WandSupport packages magic wands inside a packaging scope.
type WandSupport interface {
	Package(s state.State, w *ast.Wand, pve result.Partial, ctx state.Context, Q resources.WandContinuation) result.Result
}

// Compressor normalises a heap without changing what it describes.
type Compressor interface {
	Compress(s state.State) state.State
}

// Decider answers questions about path conditions.
type Decider interface {
	Assume(s state.State, ts ...term.Term) state.State
	Check(s state.State, t term.Term) bool
	CheckSmoke(s state.State) bool
	Fresh(ctx state.Context, name string, sort term.Sort) term.Var
	Branch(s state.State, ctx state.Context, cond term.Term, then, els state.Continuation) result.Result
	FindField(s state.State, h state.Heap, recv term.Term, field string) (int, state.FieldChunk, bool)
}

// Config holds configuration for the executor.
type Config struct {
	// Subsumption keeps the facts learned while checking an assert.
	Subsumption bool
	// ReportAll explores sibling branches after a failure and collects
	// every failure instead of stopping at the first.
	ReportAll bool
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{Subsumption: true}
}

// Collaborators are the services the executor sequences.
type Collaborators struct {
	Evaluator  Evaluator
	Producer   Producer
	Consumer   Consumer
	Predicates PredicateSupport
	Wands      WandSupport
	Compressor Compressor
	Decider    Decider
}

// Executor symbolically executes lowered method bodies.
type Executor struct {
	config Config
	Collaborators
	logger *zap.Logger
}

// New creates an executor. A nil logger disables logging.
func New(config Config, c Collaborators, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{config: config, Collaborators: c, logger: logger}
}

// NewDefault creates an executor wired to the built-in collaborators.
func NewDefault(config Config, d *decider.Decider, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	ev := eval.New(d, logger.Named("eval"))
	pr := resources.NewProducer(d, ev, logger.Named("produce"))
	cs := resources.NewConsumer(d, ev, logger.Named("consume"))
	return New(config, Collaborators{
		Evaluator:  ev,
		Producer:   pr,
		Consumer:   cs,
		Predicates: resources.NewPredicates(pr, cs, logger.Named("predicates")),
		Wands:      resources.NewWands(pr, cs, logger.Named("wands")),
		Compressor: resources.NewCompressor(d),
		Decider:    d,
	}, logger)
}

// combine joins the results of independent sibling branches.
func (x *Executor) combine(r result.Result, next func() result.Result) result.Result {
	if x.config.ReportAll {
		return r.Collect(next)
	}
	return r.And(next)
}
