package sqlgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bookline/bookline-backend/internal/providers"
	"github.com/bookline/bookline-backend/internal/session"
)

// MutationCompiler is the restricted sibling of the read compiler. It emits
// a single CTE-chained statement per booking action so the whole mutation is
// one atomic round-trip, and rejects any statement on the appointments table
// that lacks the ownership predicate.
type MutationCompiler struct {
	llm       providers.CompletionProvider
	schema    *SchemaContext
	maxTokens int
	log       *logrus.Logger
}

// NewMutationCompiler creates a new mutation compiler
func NewMutationCompiler(llm providers.CompletionProvider, schema *SchemaContext, maxTokens int, log *logrus.Logger) *MutationCompiler {
	return &MutationCompiler{
		llm:       llm,
		schema:    schema,
		maxTokens: maxTokens,
		log:       log,
	}
}

// Compile produces the validated mutation for the stored booking action.
func (m *MutationCompiler) Compile(ctx context.Context, action session.BookingAction, info session.AppointmentInfo, userID string) (*Query, error) {
	if !action.Valid() {
		return nil, &CompileError{Reason: ReasonBadStatement, Detail: "unknown booking action " + string(action)}
	}

	prompt := m.buildPrompt(action, info, userID)

	out, err := m.llm.Complete(ctx, providers.CompletionRequest{
		Prompt:    prompt,
		MaxTokens: m.maxTokens,
	})
	if err != nil {
		return nil, err
	}

	sqlText, params, cerr := parseTagged(out)
	if cerr != nil {
		m.logReject(userID, cerr)
		return nil, cerr
	}

	if cerr := checkArity(sqlText, params); cerr != nil {
		m.logReject(userID, cerr)
		return nil, cerr
	}
	if cerr := checkMutationShape(sqlText); cerr != nil {
		m.logReject(userID, cerr)
		return nil, cerr
	}
	if cerr := checkDestructive(sqlText); cerr != nil {
		m.logReject(userID, cerr)
		return nil, cerr
	}
	if cerr := checkOwnership(sqlText); cerr != nil {
		m.logReject(userID, cerr)
		return nil, cerr
	}

	return &Query{
		SQL:    sqlText,
		Params: normalizeParams(params, userID),
		Kind:   KindMutation,
	}, nil
}

func (m *MutationCompiler) logReject(userID string, cerr *CompileError) {
	m.log.WithFields(logrus.Fields{
		"user_id": userID,
		"reason":  cerr.Reason,
		"detail":  cerr.Detail,
	}).Warn("generated mutation rejected at validation")
}

func (m *MutationCompiler) buildPrompt(action session.BookingAction, info session.AppointmentInfo, userID string) string {
	var b strings.Builder

	b.WriteString("You generate exactly one PostgreSQL statement for a booking mutation.\n\n")
	b.WriteString("Database schema:\n")
	b.WriteString(m.schema.Describe())
	b.WriteString("\nFixed-value columns:\n")
	b.WriteString(m.schema.DescribeEnums())

	b.WriteString("\nAction: ")
	switch action {
	case session.ActionCreate:
		b.WriteString("create a booking.\n")
		b.WriteString("Use one WITH (CTE) chain: first upsert the customer by phone (INSERT ... ON CONFLICT (phone) DO UPDATE SET name = EXCLUDED.name RETURNING id), then insert the appointment with status 'pending' referencing that customer id.\n")
	case session.ActionUpdate:
		b.WriteString("move a booking to a new slot.\n")
		b.WriteString("Use one WITH (CTE) chain: first UPDATE the old appointment to status 'cancelled', then INSERT a new appointment with status 'pending' carrying the same customer id forward.\n")
	case session.ActionCancel:
		b.WriteString("cancel a booking.\n")
		b.WriteString("UPDATE the appointment to status 'cancelled'. Never delete rows; cancellation is always a status update.\n")
	}

	b.WriteString("\nBooking fields:\n")
	fmt.Fprintf(&b, "- authenticated user id: %s\n", userID)
	if info.AppointmentID != 0 {
		fmt.Fprintf(&b, "- appointment id: %d\n", info.AppointmentID)
	}
	if info.CustomerID != 0 {
		fmt.Fprintf(&b, "- owning customer id: %d\n", info.CustomerID)
	}
	if info.ConsultantID != 0 {
		fmt.Fprintf(&b, "- consultant id: %d\n", info.ConsultantID)
	}
	if info.CustomerName != "" {
		fmt.Fprintf(&b, "- customer name: %s\n", info.CustomerName)
	}
	if info.CustomerPhone != "" {
		fmt.Fprintf(&b, "- customer phone: %s\n", info.CustomerPhone)
	}
	if info.Date != "" {
		fmt.Fprintf(&b, "- date: %s\n", info.Date)
	}
	if info.Time != "" {
		fmt.Fprintf(&b, "- time: %s\n", info.Time)
	}

	b.WriteString("\nRules:\n")
	b.WriteString("- Every UPDATE on appointments must filter by BOTH the appointment id and the owning customer id in its WHERE clause.\n")
	b.WriteString("- Every field value above must be bound as a positional parameter ($1, $2, ...), except the status values, which are literals.\n")
	b.WriteString("- Emit a single statement only. No DELETE, no schema changes.\n")
	b.WriteString("\nRespond in exactly this format:\n")
	b.WriteString("<sql>the SQL statement</sql>\n")
	b.WriteString("<params>[\"value1\", 2]</params>\n")

	return b.String()
}
