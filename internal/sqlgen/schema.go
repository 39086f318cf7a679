package sqlgen

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

// internalTables never appear in the schema description handed to the model.
var internalTables = map[string]bool{
	"sessions":          true,
	"query_audit":       true,
	"schema_migrations": true,
}

// SchemaContext is the dynamic schema description embedded into compiler
// prompts, plus the inventory of fixed-value columns that must be emitted as
// literals rather than parameters.
type SchemaContext struct {
	description string

	// EnumColumns maps "table.column" to its closed value set.
	EnumColumns map[string][]string
}

type columnRow struct {
	TableName  string `db:"table_name"`
	ColumnName string `db:"column_name"`
	DataType   string `db:"data_type"`
}

// LoadSchemaContext introspects the public schema and builds the prompt
// description from what is actually in the database.
func LoadSchemaContext(ctx context.Context, db *sqlx.DB) (*SchemaContext, error) {
	var rows []columnRow
	query := `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position
	`
	if err := db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to introspect schema: %w", err)
	}

	tables := make(map[string][]string)
	for _, row := range rows {
		if internalTables[row.TableName] {
			continue
		}
		tables[row.TableName] = append(tables[row.TableName],
			fmt.Sprintf("%s (%s)", row.ColumnName, row.DataType))
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("schema introspection found no tables")
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "TABLE %s: %s\n", name, strings.Join(tables[name], ", "))
	}

	return &SchemaContext{
		description: b.String(),
		EnumColumns: defaultEnumColumns(),
	}, nil
}

// NewStaticSchema builds a schema context from a fixed description. Used in
// tests and anywhere introspection is unavailable.
func NewStaticSchema(description string) *SchemaContext {
	return &SchemaContext{
		description: description,
		EnumColumns: defaultEnumColumns(),
	}
}

func defaultEnumColumns() map[string][]string {
	return map[string][]string{
		"appointments.status": {"pending", "confirmed", "cancelled"},
	}
}

// Describe returns the schema text for prompting.
func (s *SchemaContext) Describe() string {
	return s.description
}

// DescribeEnums renders the enum-column rules for prompting: these values
// are literals in the SQL text, never bound parameters.
func (s *SchemaContext) DescribeEnums() string {
	if len(s.EnumColumns) == 0 {
		return ""
	}

	keys := make([]string, 0, len(s.EnumColumns))
	for k := range s.EnumColumns {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s is one of: '%s'. Write these as literal strings in the SQL, never as parameters.\n",
			k, strings.Join(s.EnumColumns[k], "', '"))
	}
	return b.String()
}
