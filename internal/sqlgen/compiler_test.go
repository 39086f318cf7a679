package sqlgen

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookline/bookline-backend/internal/providers"
)

type cannedLLM struct {
	output string
	err    error
	prompt string
}

func (c *cannedLLM) Complete(ctx context.Context, req providers.CompletionRequest) (string, error) {
	c.prompt = req.Prompt
	return c.output, c.err
}

func testSchema() *SchemaContext {
	return NewStaticSchema("TABLE appointments: id (integer), customer_id (integer), status (text)\n" +
		"TABLE customers: id (integer), name (text), phone (text), user_id (text)\n")
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestCompiler(output string) (*Compiler, *cannedLLM) {
	llm := &cannedLLM{output: output}
	return NewCompiler(llm, testSchema(), 512, quietLog()), llm
}

func TestCompile_ValidSelect(t *testing.T) {
	c, _ := newTestCompiler(
		`<sql>SELECT name FROM customers WHERE phone = $1</sql><params>["0712345678"]</params>`)

	q, err := c.Compile(context.Background(), "what's the customer named", "")
	require.NoError(t, err)
	assert.Equal(t, KindSelect, q.Kind)
	assert.Equal(t, "SELECT name FROM customers WHERE phone = $1", q.SQL)
	assert.Equal(t, []any{"0712345678"}, q.Params)
}

func TestCompile_PromptCarriesSchemaAndUserRule(t *testing.T) {
	c, llm := newTestCompiler(`<sql>SELECT 1</sql><params>[]</params>`)

	_, err := c.Compile(context.Background(), "how many bookings do I have", "user-42")
	require.NoError(t, err)
	assert.Contains(t, llm.prompt, "TABLE appointments")
	assert.Contains(t, llm.prompt, "user-42")
	assert.Contains(t, llm.prompt, "CURRENT_DATE")
	assert.Contains(t, llm.prompt, "pending")
}

func TestCompile_ArityMismatchRejected(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{
			"more placeholders than params",
			`<sql>SELECT * FROM customers WHERE name = $1 AND phone = $2</sql><params>["bob"]</params>`,
		},
		{
			"more params than placeholders",
			`<sql>SELECT * FROM customers WHERE name = $1</sql><params>["bob", "0712"]</params>`,
		},
		{
			"placeholder gap",
			`<sql>SELECT * FROM customers WHERE name = $1 AND phone = $3</sql><params>["bob", "0712"]</params>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCompiler(tt.output)
			_, err := c.Compile(context.Background(), "q", "")
			require.Error(t, err)
			ce, ok := IsCompileError(err)
			require.True(t, ok)
			assert.Equal(t, ReasonArityMismatch, ce.Reason)
		})
	}
}

func TestCompile_DeleteAllAppointmentsRejected(t *testing.T) {
	// Even if the model emits a destructive statement, it never executes.
	c, _ := newTestCompiler(`<sql>DELETE FROM appointments</sql><params>[]</params>`)

	_, err := c.Compile(context.Background(), "delete all appointments", "")
	require.Error(t, err)
	ce, ok := IsCompileError(err)
	require.True(t, ok)
	assert.Equal(t, ReasonNotReadOnly, ce.Reason)
}

func TestCompile_DestructiveInsideSelectRejected(t *testing.T) {
	c, _ := newTestCompiler(
		`<sql>SELECT 1; DROP TABLE customers</sql><params>[]</params>`)

	_, err := c.Compile(context.Background(), "q", "")
	require.Error(t, err)
	ce, ok := IsCompileError(err)
	require.True(t, ok)
	assert.Equal(t, ReasonForbiddenKeyword, ce.Reason)
}

func TestCompile_MutationOnReadPathRejected(t *testing.T) {
	c, _ := newTestCompiler(
		`<sql>WITH x AS (UPDATE customers SET name = $1 RETURNING id) SELECT * FROM x</sql><params>["bob"]</params>`)

	_, err := c.Compile(context.Background(), "rename me", "")
	require.Error(t, err)
	ce, ok := IsCompileError(err)
	require.True(t, ok)
	assert.Equal(t, ReasonNotReadOnly, ce.Reason)
}

func TestCompile_CannotAnswerSentinel(t *testing.T) {
	c, _ := newTestCompiler("NOT_POSSIBLE")

	_, err := c.Compile(context.Background(), "what's the meaning of life", "")
	require.Error(t, err)
	ce, ok := IsCompileError(err)
	require.True(t, ok)
	assert.Equal(t, ReasonCannotAnswer, ce.Reason)
}

func TestCompile_MissingTagsRejected(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"no tags at all", "SELECT * FROM customers"},
		{"missing params tag", "<sql>SELECT 1</sql>"},
		{"empty sql tag", "<sql>  </sql><params>[]</params>"},
		{"garbage params", `<sql>SELECT $1</sql><params>not a list</params>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCompiler(tt.output)
			_, err := c.Compile(context.Background(), "q", "")
			require.Error(t, err)
			ce, ok := IsCompileError(err)
			require.True(t, ok)
			assert.Equal(t, ReasonParse, ce.Reason)
		})
	}
}

func TestCompile_SingleQuotedParamsAccepted(t *testing.T) {
	c, _ := newTestCompiler(
		`<sql>SELECT * FROM customers WHERE name = $1</sql><params>['alice']</params>`)

	q, err := c.Compile(context.Background(), "q", "")
	require.NoError(t, err)
	assert.Equal(t, []any{"alice"}, q.Params)
}

func TestCompile_NumericUserIDNormalizedToString(t *testing.T) {
	c, _ := newTestCompiler(
		`<sql>SELECT * FROM appointments a JOIN customers c ON a.customer_id = c.id WHERE c.user_id = $1</sql><params>[254712345678]</params>`)

	q, err := c.Compile(context.Background(), "my bookings", "254712345678")
	require.NoError(t, err)
	assert.Equal(t, []any{"254712345678"}, q.Params)
}

func TestCompile_OtherNumbersKeepNumericType(t *testing.T) {
	c, _ := newTestCompiler(
		`<sql>SELECT * FROM appointments WHERE customer_id = $1</sql><params>[7]</params>`)

	q, err := c.Compile(context.Background(), "q", "user-1")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(7)}, q.Params)
}

func TestCompile_CompletionErrorPropagates(t *testing.T) {
	llm := &cannedLLM{err: &providers.TransientError{Err: assert.AnError}}
	c := NewCompiler(llm, testSchema(), 512, quietLog())

	_, err := c.Compile(context.Background(), "q", "")
	require.Error(t, err)
	assert.True(t, providers.IsTransient(err))
	_, ok := IsCompileError(err)
	assert.False(t, ok)
}
