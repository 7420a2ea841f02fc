package result

import "strings"

// Kind represents the kind of verification outcome.
type Kind int

const (
	// KindSuccess indicates every obligation on the branch was discharged.
	KindSuccess Kind = iota
	// KindFailure indicates an obligation could not be proven.
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "Success"
	case KindFailure:
		return "Failure"
	default:
		return "?"
	}
}

// Result is the outcome of verifying a branch: Success | Failure(errors).
// Errors[0] is the first failure discovered in execution order; further
// entries only appear when sibling branches were combined with Collect.
type Result struct {
	Kind   Kind
	Errors []*VerificationError
}

// Success returns the successful outcome.
func Success() Result {
	return Result{Kind: KindSuccess}
}

// Failure returns a failed outcome with the given error.
func Failure(err *VerificationError) Result {
	return Result{Kind: KindFailure, Errors: []*VerificationError{err}}
}

// IsSuccess reports whether r is Success.
func (r Result) IsSuccess() bool {
	return r.Kind == KindSuccess
}

// IsFailure reports whether r is a Failure.
func (r Result) IsFailure() bool {
	return r.Kind == KindFailure
}

// Err returns the first failure, or nil.
func (r Result) Err() *VerificationError {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// And is the short-circuiting conjunction: if r failed, next is never
// evaluated and r is returned.
func (r Result) And(next func() Result) Result {
	if r.IsFailure() {
		return r
	}
	return next()
}

// Collect evaluates next regardless of r and concatenates the failures,
// keeping r's failures first.
func (r Result) Collect(next func() Result) Result {
	other := next()
	switch {
	case r.IsSuccess():
		return other
	case other.IsSuccess():
		return r
	}
	errs := make([]*VerificationError, 0, len(r.Errors)+len(other.Errors))
	errs = append(errs, r.Errors...)
	errs = append(errs, other.Errors...)
	return Result{Kind: KindFailure, Errors: errs}
}

// All folds And over fs in order.
func All(fs ...func() Result) Result {
	r := Success()
	for _, f := range fs {
		r = r.And(f)
		if r.IsFailure() {
			return r
		}
	}
	return r
}

func (r Result) String() string {
	if r.IsSuccess() {
		return "Success"
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return "Failure(" + strings.Join(msgs, "; ") + ")"
}
