package tools

import (
	"context"
	"database/sql"
	"fmt"
)

// DatabaseTool runs a parameterized query against a shared *sql.DB, per
// §4.3. query_type selects the execution path: select returns rows,
// insert/update/delete return rows-affected, and any other value fails.
type DatabaseTool struct {
	db *sql.DB
}

// NewDatabaseTool constructs a DatabaseTool bound to db.
func NewDatabaseTool(db *sql.DB) *DatabaseTool {
	return &DatabaseTool{db: db}
}

func (t *DatabaseTool) Name() string        { return "database" }
func (t *DatabaseTool) Description() string { return "Runs a parameterized query (select/insert/update/delete)." }

func (t *DatabaseTool) Schema() Schema {
	return Schema{
		"query":      {Required: true, Type: TypeString, MaxLength: 10_000},
		"bindings":   {Required: false, Type: TypeArray},
		"query_type": {Required: true, Type: TypeString, MaxLength: 16},
	}
}

func (t *DatabaseTool) Execute(ctx context.Context, input Input) (Result, error) {
	query, _ := input["query"].(string)
	queryType, _ := input["query_type"].(string)
	var bindings []any
	if raw, ok := input["bindings"].([]any); ok {
		bindings = raw
	}

	switch queryType {
	case "select":
		rows, err := t.db.QueryContext(ctx, query, bindings...)
		if err != nil {
			return nil, fmt.Errorf("database tool: query: %w", err)
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("database tool: columns: %w", err)
		}

		var records []map[string]any
		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return nil, fmt.Errorf("database tool: scan: %w", err)
			}
			record := make(map[string]any, len(cols))
			for i, c := range cols {
				record[c] = values[i]
			}
			records = append(records, record)
		}
		return Result{"rows": records, "count": len(records)}, rows.Err()

	case "insert", "update", "delete":
		res, err := t.db.ExecContext(ctx, query, bindings...)
		if err != nil {
			return nil, fmt.Errorf("database tool: exec: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("database tool: rows affected: %w", err)
		}
		return Result{"rows_affected": affected}, nil

	default:
		return nil, fmt.Errorf("database tool: unknown query_type %q", queryType)
	}
}
