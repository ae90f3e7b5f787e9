package datalog

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks
var (
	// ErrSchema matches every *SchemaError
	ErrSchema = errors.New("schema error")
	// ErrTypeMismatch matches a *SchemaError of kind TypeMismatch
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrUnknownField matches a *SchemaError of kind UnknownField
	ErrUnknownField = errors.New("unknown field")
	// ErrNaN is returned by Normalize: NaN equals nothing, so it cannot be
	// a member of a set
	ErrNaN = errors.New("NaN is not a value")

	// ErrDefinition matches every *DefinitionError
	ErrDefinition = errors.New("definition error")

	// ErrEvaluation matches every *EvaluationError
	ErrEvaluation = errors.New("evaluation error")
	// ErrNotStratifiable is wrapped when negation and recursion form a cycle
	ErrNotStratifiable = errors.New("negation is not stratifiable")
	// ErrNoFixpoint is wrapped when a recursive rule exceeds its iteration bound
	ErrNoFixpoint = errors.New("fixpoint not reached")
	// ErrReactionLimit is wrapped when reactive re-evaluation exceeds its bound
	ErrReactionLimit = errors.New("reaction limit exceeded")
)

// SchemaErrorKind distinguishes the two ways a fact can violate a schema
type SchemaErrorKind int

const (
	TypeMismatch SchemaErrorKind = iota + 1
	UnknownField
)

func (k SchemaErrorKind) String() string {
	switch k {
	case TypeMismatch:
		return "TypeMismatch"
	case UnknownField:
		return "UnknownField"
	}
	return fmt.Sprintf("SchemaErrorKind(%d)", int(k))
}

// SchemaError reports a fact that does not conform to its table's schema.
// It is raised synchronously by Assert and Retract.
type SchemaError struct {
	Table    string
	Field    string
	Kind     SchemaErrorKind
	Expected string // declared type, or "absent"/"present" for UnknownField
	Got      string
}

func (e *SchemaError) Error() string {
	table := e.Table
	if table == "" {
		table = "<table>"
	}
	return fmt.Sprintf("%s: %s.%s: expected %s, got %s", e.Kind, table, e.Field, e.Expected, e.Got)
}

// Is matches ErrSchema and the sentinel for the error's kind
func (e *SchemaError) Is(target error) bool {
	switch target {
	case ErrSchema:
		return true
	case ErrTypeMismatch:
		return e.Kind == TypeMismatch
	case ErrUnknownField:
		return e.Kind == UnknownField
	}
	return false
}

// DefinitionError reports a malformed query, detected at build time
type DefinitionError struct {
	Reason string
}

// Definitionf builds a *DefinitionError
func Definitionf(format string, args ...interface{}) *DefinitionError {
	return &DefinitionError{Reason: fmt.Sprintf(format, args...)}
}

func (e *DefinitionError) Error() string {
	return "definition error: " + e.Reason
}

func (e *DefinitionError) Is(target error) bool {
	return target == ErrDefinition
}

// EvaluationError reports a run that failed entirely. Nothing it computed
// was published.
type EvaluationError struct {
	Reason string
	Err    error
}

// Evaluationf builds an *EvaluationError wrapping err
func Evaluationf(err error, format string, args ...interface{}) *EvaluationError {
	return &EvaluationError{Reason: fmt.Sprintf(format, args...), Err: err}
}

func (e *EvaluationError) Error() string {
	if e.Err == nil {
		return "evaluation error: " + e.Reason
	}
	return fmt.Sprintf("evaluation error: %s: %v", e.Reason, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

func (e *EvaluationError) Is(target error) bool {
	return target == ErrEvaluation
}
