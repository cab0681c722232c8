package seeder

import (
	"context"
	"fmt"
	"strings"

	"notebook-scout/internal/database"
)

// TableSchema names the columns a seeder writes into one table.
type TableSchema struct {
	Table   string
	Columns []string
}

// Verify checks the live table against the schema and reports every missing
// column at once, in declared order.
func (s TableSchema) Verify(ctx context.Context, db database.DB) error {
	if db == nil {
		return fmt.Errorf("nil db")
	}
	if s.Table == "" {
		return fmt.Errorf("empty table")
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema %s: no columns", s.Table)
	}

	rows, err := db.Query(
		ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_schema='public' AND table_name=$1`,
		s.Table,
	)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", s.Table, err)
	}
	defer rows.Close()

	existing := map[string]struct{}{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return err
		}
		existing[c] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var missing []string
	for _, col := range s.Columns {
		if _, ok := existing[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema mismatch: %s missing columns %s", s.Table, strings.Join(missing, ", "))
	}
	return nil
}
