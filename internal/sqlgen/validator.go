package sqlgen

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	placeholderRe = regexp.MustCompile(`\$(\d+)`)

	// Schema-altering and row-deleting keywords are rejected regardless of
	// caller. Cancellation is a status update, never a DELETE.
	destructiveRe = regexp.MustCompile(`(?i)\b(DROP|TRUNCATE|ALTER|CREATE|GRANT|REVOKE|DELETE)\b`)

	mutationKeywordRe = regexp.MustCompile(`(?i)\b(INSERT|UPDATE)\b`)

	updateAppointmentsRe = regexp.MustCompile(`(?i)\bUPDATE\s+appointments\b`)
)

// checkArity enforces that the positional placeholders in the SQL are
// exactly $1..$n with n equal to the parameter count. A mismatch is a hard
// failure; the statement never executes.
func checkArity(sqlText string, params []any) *CompileError {
	seen := make(map[int]bool)
	maxIdx := 0
	for _, m := range placeholderRe.FindAllStringSubmatch(sqlText, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 {
			return &CompileError{Reason: ReasonArityMismatch, Detail: "invalid placeholder " + m[0]}
		}
		seen[idx] = true
		if idx > maxIdx {
			maxIdx = idx
		}
	}

	if len(seen) != len(params) || maxIdx != len(params) {
		return &CompileError{
			Reason: ReasonArityMismatch,
			Detail: fmt.Sprintf("statement has %d distinct placeholders (max $%d) but %d parameters",
				len(seen), maxIdx, len(params)),
		}
	}
	for i := 1; i <= len(params); i++ {
		if !seen[i] {
			return &CompileError{
				Reason: ReasonArityMismatch,
				Detail: fmt.Sprintf("placeholder $%d is never used", i),
			}
		}
	}
	return nil
}

// checkDestructive rejects schema-altering or whole-table-deleting keywords
// for every caller, read and mutation alike.
func checkDestructive(sqlText string) *CompileError {
	if m := destructiveRe.FindString(sqlText); m != "" {
		return &CompileError{
			Reason: ReasonForbiddenKeyword,
			Detail: "destructive keyword " + strings.ToUpper(m),
		}
	}
	return nil
}

// checkReadOnly enforces that the statement is a plain query: it must start
// with SELECT (or a CTE chain that only selects) and contain no mutation
// keywords anywhere.
func checkReadOnly(sqlText string) *CompileError {
	switch firstKeyword(sqlText) {
	case "SELECT", "WITH":
	default:
		return &CompileError{
			Reason: ReasonNotReadOnly,
			Detail: "statement does not start with SELECT or WITH",
		}
	}
	if m := mutationKeywordRe.FindString(sqlText); m != "" {
		return &CompileError{
			Reason: ReasonNotReadOnly,
			Detail: "read path contains " + strings.ToUpper(m),
		}
	}
	return nil
}

// checkMutationShape enforces that a mutation is a CTE chain, insert, or
// update; anything else never executes.
func checkMutationShape(sqlText string) *CompileError {
	switch firstKeyword(sqlText) {
	case "WITH", "INSERT", "UPDATE":
		return nil
	}
	return &CompileError{
		Reason: ReasonBadStatement,
		Detail: "mutation must start with WITH, INSERT, or UPDATE",
	}
}

// checkOwnership enforces the mutation invariant: every UPDATE touching the
// appointments table must filter by both the booking's own identifier and
// the owning customer's identifier.
func checkOwnership(sqlText string) *CompileError {
	locs := updateAppointmentsRe.FindAllStringIndex(sqlText, -1)
	for _, loc := range locs {
		clause := updateClause(sqlText, loc[1])
		if err := checkUpdatePredicates(clause); err != nil {
			return err
		}
	}
	return nil
}

// updateClause returns the text of one UPDATE statement starting at offset,
// ending at the close of the enclosing CTE or at the end of the statement.
func updateClause(sqlText string, start int) string {
	depth := 0
	for i := start; i < len(sqlText); i++ {
		switch sqlText[i] {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return sqlText[start:i]
			}
			depth--
		case ';':
			return sqlText[start:i]
		}
	}
	return sqlText[start:]
}

var (
	whereRe      = regexp.MustCompile(`(?i)\bWHERE\b`)
	bookingIDRe  = regexp.MustCompile(`(?i)\b(appointments\.)?id\s*(=|IN)`)
	ownerIDRe    = regexp.MustCompile(`(?i)\b(customer_id|user_id)\s*(=|IN)`)
)

func checkUpdatePredicates(clause string) *CompileError {
	whereLoc := whereRe.FindStringIndex(clause)
	if whereLoc == nil {
		return &CompileError{
			Reason: ReasonMissingOwnership,
			Detail: "UPDATE on appointments has no WHERE clause",
		}
	}
	where := clause[whereLoc[1]:]
	if !bookingIDRe.MatchString(where) {
		return &CompileError{
			Reason: ReasonMissingOwnership,
			Detail: "UPDATE on appointments does not filter by booking id",
		}
	}
	if !ownerIDRe.MatchString(where) {
		return &CompileError{
			Reason: ReasonMissingOwnership,
			Detail: "UPDATE on appointments does not filter by owner id",
		}
	}
	return nil
}

// firstKeyword returns the first SQL keyword of the statement, uppercased.
func firstKeyword(sqlText string) string {
	fields := strings.Fields(strings.TrimSpace(sqlText))
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// normalizeParams converts JSON-decoded parameters to natural Go types. A
// numeric parameter whose literal form equals the authenticated user id is
// coerced to its string form so the filter matches the session id's type.
func normalizeParams(params []any, userID string) []any {
	out := make([]any, len(params))
	for i, p := range params {
		num, ok := p.(json.Number)
		if !ok {
			out[i] = p
			continue
		}
		if userID != "" && num.String() == userID {
			out[i] = userID
			continue
		}
		if n, err := num.Int64(); err == nil {
			out[i] = n
			continue
		}
		if f, err := num.Float64(); err == nil {
			out[i] = f
			continue
		}
		out[i] = num.String()
	}
	return out
}
