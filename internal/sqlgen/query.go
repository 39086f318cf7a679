package sqlgen

// Kind distinguishes the two statement classes the system may execute.
type Kind string

const (
	KindSelect   Kind = "select"
	KindMutation Kind = "mutation"
)

// Query is a validated, parameterized statement ready for execution. It is
// never persisted; the executor consumes it within the same request.
type Query struct {
	SQL    string
	Params []any
	Kind   Kind
}
