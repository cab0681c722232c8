package seeder

import (
	"context"

	"notebook-scout/internal/database"
)

// Seeder writes rows a fresh database needs before the first scrape. Run
// executes on every start, so it must leave existing rows alone. The runner
// verifies Schema before calling Run.
type Seeder interface {
	Name() string
	Schema() TableSchema
	Run(ctx context.Context, db database.DB) error
}
