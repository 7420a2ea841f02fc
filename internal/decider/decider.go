package decider

import (
	"go.uber.org/zap"

	"github.com/gnoswap-labs/sepexec/internal/result"
	"github.com/gnoswap-labs/sepexec/internal/state"
	"github.com/gnoswap-labs/sepexec/internal/term"
)

// Config holds configuration for the decider.
type Config struct {
	// MaxCaseSplits bounds how many disjunctions are split per query.
	MaxCaseSplits int
	// ReportAll makes Branch run the second side after the first failed
	// and keep the failures of both.
	ReportAll bool
}

// DefaultConfig returns the default decider configuration.
func DefaultConfig() Config {
	return Config{MaxCaseSplits: 6}
}

// Decider answers entailment and feasibility questions about the path
// conditions carried by a state.
type Decider struct {
	solver    solver
	reportAll bool
	logger    *zap.Logger
}

// New creates a decider. A nil logger disables logging.
func New(config Config, logger *zap.Logger) *Decider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decider{
		solver:    solver{maxSplits: config.MaxCaseSplits},
		reportAll: config.ReportAll,
		logger:    logger,
	}
}

// Assume returns s with ts added to its path conditions.
func (d *Decider) Assume(s state.State, ts ...term.Term) state.State {
	var facts []term.Term
	for _, t := range ts {
		for _, c := range term.Conjuncts(t) {
			if c == term.True {
				continue
			}
			facts = append(facts, c)
		}
	}
	if len(facts) == 0 {
		return s
	}
	return s.WithPCs(s.PCs.Add(facts...))
}

// Check reports whether the path conditions of s entail t.
func (d *Decider) Check(s state.State, t term.Term) bool {
	if t == term.True {
		return true
	}
	facts := make([]term.Term, 0, s.PCs.Len()+1)
	facts = append(facts, s.PCs.All()...)
	facts = append(facts, term.Negate(t))
	ok := d.solver.unsat(facts)
	d.logger.Debug("check", zap.Stringer("goal", t), zap.Bool("proved", ok))
	return ok
}

// CheckSmoke reports whether the path conditions of s are unsatisfiable,
// i.e. the branch is dead.
func (d *Decider) CheckSmoke(s state.State) bool {
	return d.solver.unsat(s.PCs.All())
}

// Equal reports whether a and b are provably equal.
func (d *Decider) Equal(s state.State, a, b term.Term) bool {
	if term.Same(a, b) {
		return true
	}
	return d.Check(s, term.Eq(a, b))
}

// Fresh returns a fresh variable drawn from the context's generator.
func (d *Decider) Fresh(ctx state.Context, name string, sort term.Sort) term.Var {
	return ctx.Fresh.Fresh(name, sort)
}

// Branch forks on cond. Each side runs with cond (respectively its
// negation) assumed; a side whose assumption is provably false is pruned
// as Success. The sides are combined with the short-circuiting And, or
// with Collect when the decider reports all failures.
func (d *Decider) Branch(s state.State, ctx state.Context, cond term.Term, then, els state.Continuation) result.Result {
	thenFeasible := !d.Check(s, term.Negate(cond))
	elseFeasible := !d.Check(s, cond)
	d.logger.Debug("branch",
		zap.Stringer("cond", cond),
		zap.Bool("then", thenFeasible),
		zap.Bool("else", elseFeasible))

	r := result.Success()
	if thenFeasible {
		r = then(d.Assume(s, cond), ctx)
	}
	if elseFeasible {
		other := func() result.Result {
			return els(d.Assume(s, term.Negate(cond)), ctx)
		}
		if d.reportAll {
			r = r.Collect(other)
		} else {
			r = r.And(other)
		}
	}
	return r
}
