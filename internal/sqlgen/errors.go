package sqlgen

import (
	"errors"
	"fmt"
)

// Reason identifies which safety invariant a generated statement violated.
type Reason string

const (
	ReasonCannotAnswer     Reason = "cannot_answer"
	ReasonParse            Reason = "parse_failure"
	ReasonArityMismatch    Reason = "arity_mismatch"
	ReasonNotReadOnly      Reason = "not_read_only"
	ReasonForbiddenKeyword Reason = "forbidden_keyword"
	ReasonBadStatement     Reason = "bad_statement"
	ReasonMissingOwnership Reason = "missing_ownership"
)

// CompileError is a validation or parse failure of model-generated SQL.
// Detail is for logs only; user-facing text must never include it.
type CompileError struct {
	Reason Reason
	Detail string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("sql compile rejected (%s): %s", e.Reason, e.Detail)
}

// IsCompileError reports whether err is a compile rejection and returns it.
func IsCompileError(err error) (*CompileError, bool) {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
