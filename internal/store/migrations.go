package store

import (
	"fmt"
	"strings"
)

func (s *Store) migrate() error {
	for _, m := range s.dialect.migrations {
		if _, err := s.db.Exec(m); err != nil {
			// Index statements without IF NOT EXISTS fail on rerun; treat an
			// existing index or column as already migrated.
			lower := strings.ToLower(err.Error())
			if strings.Contains(lower, "duplicate key name") || strings.Contains(lower, "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
