package result

import (
	"fmt"
	"go/token"
)

// Node is the source element an error points at.
type Node interface {
	Position() token.Position
	String() string
}

// ErrorKind is the control construct that failed.
type ErrorKind int

const (
	_ ErrorKind = iota
	AssignmentFailed
	LoopInvariantNotPreserved
	LoopInvariantNotEstablished
	WhileFailed
	IfFailed
	InhaleFailed
	ExhaleFailed
	AssertFailed
	CallFailed
	PreconditionInCallFalse
	FoldFailed
	UnfoldFailed
	PackageFailed
	ApplyFailed
	LetWandFailed
	PostconditionViolated
	ContractNotWellformed
)

func (k ErrorKind) String() string {
	switch k {
	case AssignmentFailed:
		return "assignment.failed"
	case LoopInvariantNotPreserved:
		return "invariant.not.preserved"
	case LoopInvariantNotEstablished:
		return "invariant.not.established"
	case WhileFailed:
		return "while.failed"
	case IfFailed:
		return "if.failed"
	case InhaleFailed:
		return "inhale.failed"
	case ExhaleFailed:
		return "exhale.failed"
	case AssertFailed:
		return "assert.failed"
	case CallFailed:
		return "call.failed"
	case PreconditionInCallFalse:
		return "call.precondition"
	case FoldFailed:
		return "fold.failed"
	case UnfoldFailed:
		return "unfold.failed"
	case PackageFailed:
		return "package.failed"
	case ApplyFailed:
		return "apply.failed"
	case LetWandFailed:
		return "letwand.failed"
	case PostconditionViolated:
		return "postcondition.violated"
	case ContractNotWellformed:
		return "not.wellformed"
	default:
		return "unknown"
	}
}

// Message is the human-readable summary of the failed construct.
func (k ErrorKind) Message() string {
	switch k {
	case AssignmentFailed:
		return "Assignment might fail."
	case LoopInvariantNotPreserved:
		return "Loop invariant might not be preserved."
	case LoopInvariantNotEstablished:
		return "Loop invariant might not hold on entry."
	case WhileFailed:
		return "While statement might fail."
	case IfFailed:
		return "Conditional statement might fail."
	case InhaleFailed:
		return "Inhale might fail."
	case ExhaleFailed:
		return "Exhale might fail."
	case AssertFailed:
		return "Assert might fail."
	case CallFailed:
		return "Method call might fail."
	case PreconditionInCallFalse:
		return "The precondition of method call might not hold."
	case FoldFailed:
		return "Folding might fail."
	case UnfoldFailed:
		return "Unfolding might fail."
	case PackageFailed:
		return "Package statement might fail."
	case ApplyFailed:
		return "Apply might fail."
	case LetWandFailed:
		return "Wand assignment might fail."
	case PostconditionViolated:
		return "Postcondition might not hold."
	case ContractNotWellformed:
		return "Contract might not be well-formed."
	default:
		return "Verification might fail."
	}
}

// ReasonKind is the underlying reason a construct failed.
type ReasonKind int

const (
	_ ReasonKind = iota
	ReceiverNull
	NegativePermission
	AssertionFalse
	InsufficientPermission
	NamedMagicWandChunkNotFound
	MagicWandChunkNotFound
	DivisionByZero
)

func (k ReasonKind) String() string {
	switch k {
	case ReceiverNull:
		return "receiver.null"
	case NegativePermission:
		return "negative.permission"
	case AssertionFalse:
		return "assertion.false"
	case InsufficientPermission:
		return "insufficient.permission"
	case NamedMagicWandChunkNotFound:
		return "wand.not.found"
	case MagicWandChunkNotFound:
		return "wand.chunk.not.found"
	case DivisionByZero:
		return "division.by.zero"
	default:
		return "unknown"
	}
}

// Reason is the sub-condition that failed.
type Reason struct {
	Kind      ReasonKind
	Offending Node
}

func (r Reason) String() string {
	what := "<unknown>"
	if r.Offending != nil {
		what = r.Offending.String()
	}
	switch r.Kind {
	case ReceiverNull:
		return fmt.Sprintf("Receiver of %s might be null.", what)
	case NegativePermission:
		return fmt.Sprintf("Fraction %s might not be positive.", what)
	case AssertionFalse:
		return fmt.Sprintf("Assertion %s might not hold.", what)
	case InsufficientPermission:
		return fmt.Sprintf("There might be insufficient permission to access %s.", what)
	case NamedMagicWandChunkNotFound:
		return fmt.Sprintf("Magic wand instance %s not found.", what)
	case MagicWandChunkNotFound:
		return fmt.Sprintf("Magic wand instance not found for %s.", what)
	case DivisionByZero:
		return fmt.Sprintf("Divisor %s might be zero.", what)
	default:
		return what
	}
}

// VerificationError is a failed construct together with its reason.
type VerificationError struct {
	Kind   ErrorKind
	Node   Node
	Reason Reason
}

// ID is a stable identifier such as "assert.failed:assertion.false".
func (e *VerificationError) ID() string {
	return e.Kind.String() + ":" + e.Reason.Kind.String()
}

// Position is the position of the failing construct.
func (e *VerificationError) Position() token.Position {
	if e.Node == nil {
		return token.Position{}
	}
	return e.Node.Position()
}

func (e *VerificationError) Error() string {
	msg := e.Kind.Message() + " " + e.Reason.String()
	if pos := e.Position(); pos.IsValid() {
		msg += " (" + pos.String() + ")"
	}
	return msg
}

// Partial is a construct waiting for its reason. Collaborators receive
// a Partial and complete it with DueTo when a sub-condition fails.
type Partial struct {
	Kind ErrorKind
	Node Node
}

// For creates a partial error for node.
func For(kind ErrorKind, node Node) Partial {
	return Partial{Kind: kind, Node: node}
}

// DueTo completes the partial error.
func (p Partial) DueTo(kind ReasonKind, offending Node) *VerificationError {
	return &VerificationError{
		Kind:   p.Kind,
		Node:   p.Node,
		Reason: Reason{Kind: kind, Offending: offending},
	}
}

// Fail is Failure(p.DueTo(kind, offending)).
func (p Partial) Fail(kind ReasonKind, offending Node) Result {
	return Failure(p.DueTo(kind, offending))
}

// InternalError reports a broken precondition of the executor, such as an
// unlowered statement or an unresolvable name. It is raised with panic
// and is never a verification failure.
type InternalError struct {
	Msg  string
	Node Node
}

// Internalf creates an InternalError.
func Internalf(node Node, format string, args ...any) *InternalError {
	return &InternalError{Msg: fmt.Sprintf(format, args...), Node: node}
}

func (e *InternalError) Error() string {
	if e.Node != nil {
		if pos := e.Node.Position(); pos.IsValid() {
			return "internal error: " + e.Msg + " (" + pos.String() + ")"
		}
	}
	return "internal error: " + e.Msg
}
