package seeder

import (
	"context"
	"fmt"
	"log"
	"time"

	"notebook-scout/internal/database"
)

type Runner struct {
	Seeders []Seeder
	Logger  *log.Logger
}

// Run verifies each seeder's table and then runs it, stopping at the first
// failure. A schema mismatch means migrations lag behind the code.
func (r Runner) Run(ctx context.Context, db database.DB) error {
	if db == nil {
		return fmt.Errorf("nil db")
	}
	logger := r.Logger
	if logger == nil {
		logger = log.Default()
	}
	for _, s := range r.Seeders {
		if s == nil {
			continue
		}
		start := time.Now()
		if err := s.Schema().Verify(ctx, db); err != nil {
			logger.Printf("[Seeder] name=%s status=schema_mismatch err=%v", s.Name(), err)
			return fmt.Errorf("seed %s: %w", s.Name(), err)
		}
		if err := s.Run(ctx, db); err != nil {
			logger.Printf("[Seeder] name=%s status=error err=%v", s.Name(), err)
			return fmt.Errorf("seed %s: %w", s.Name(), err)
		}
		logger.Printf("[Seeder] name=%s status=ok duration=%s", s.Name(), time.Since(start).Round(time.Millisecond))
	}
	return nil
}
