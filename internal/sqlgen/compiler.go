package sqlgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bookline/bookline-backend/internal/providers"
)

// Compiler turns natural-language questions into validated read-only SQL.
// It is the last line of defense between the generative model and the
// database: nothing it returns has skipped validation.
type Compiler struct {
	llm       providers.CompletionProvider
	schema    *SchemaContext
	maxTokens int
	log       *logrus.Logger
}

// NewCompiler creates a new NL-to-SQL compiler
func NewCompiler(llm providers.CompletionProvider, schema *SchemaContext, maxTokens int, log *logrus.Logger) *Compiler {
	return &Compiler{
		llm:       llm,
		schema:    schema,
		maxTokens: maxTokens,
		log:       log,
	}
}

// Compile builds the constrained prompt, parses the model output, and
// enforces the read-path safety invariants in order: placeholder arity,
// read-only statement kind, destructive keywords, user-id normalization.
func (c *Compiler) Compile(ctx context.Context, question, userID string) (*Query, error) {
	prompt := c.buildPrompt(question, userID)

	out, err := c.llm.Complete(ctx, providers.CompletionRequest{
		Prompt:    prompt,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return nil, err
	}

	sqlText, params, cerr := parseTagged(out)
	if cerr != nil {
		c.log.WithFields(logrus.Fields{
			"user_id": userID,
			"reason":  cerr.Reason,
		}).Warn("generated SQL rejected at parse")
		return nil, cerr
	}

	if cerr := checkArity(sqlText, params); cerr != nil {
		c.logReject(userID, cerr)
		return nil, cerr
	}
	if cerr := checkReadOnly(sqlText); cerr != nil {
		c.logReject(userID, cerr)
		return nil, cerr
	}
	if cerr := checkDestructive(sqlText); cerr != nil {
		c.logReject(userID, cerr)
		return nil, cerr
	}

	return &Query{
		SQL:    sqlText,
		Params: normalizeParams(params, userID),
		Kind:   KindSelect,
	}, nil
}

func (c *Compiler) logReject(userID string, cerr *CompileError) {
	c.log.WithFields(logrus.Fields{
		"user_id": userID,
		"reason":  cerr.Reason,
		"detail":  cerr.Detail,
	}).Warn("generated SQL rejected at validation")
}

func (c *Compiler) buildPrompt(question, userID string) string {
	var b strings.Builder

	b.WriteString("You translate one user question into a single PostgreSQL SELECT statement.\n\n")
	b.WriteString("Database schema:\n")
	b.WriteString(c.schema.Describe())
	b.WriteString("\nFixed-value columns:\n")
	b.WriteString(c.schema.DescribeEnums())
	b.WriteString("\nRules:\n")
	b.WriteString("- Generate exactly one read-only SELECT statement. Never modify data.\n")
	b.WriteString("- Every value that comes from the user must be bound as a positional parameter ($1, $2, ...), never inlined.\n")
	b.WriteString("- Resolve relative dates in SQL: use CURRENT_DATE, CURRENT_DATE + INTERVAL '1 day' for tomorrow, date_trunc('week', CURRENT_DATE) for this week. Do not pass resolved dates as parameters.\n")
	if userID != "" {
		fmt.Fprintf(&b, "- The authenticated user id is '%s'. When the question says my/mine, filter customers.user_id by that id as a parameter.\n", userID)
	}
	b.WriteString("- If the question cannot be answered from this schema, respond with exactly " + cannotAnswerSentinel + " and nothing else.\n")
	b.WriteString("\nRespond in exactly this format:\n")
	b.WriteString("<sql>the SQL statement</sql>\n")
	b.WriteString("<params>[\"value1\", 2]</params>\n")
	b.WriteString("Use <params>[]</params> when the statement has no parameters.\n")
	b.WriteString("\nQuestion: " + question + "\n")

	return b.String()
}
