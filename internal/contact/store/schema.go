package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// EnsureSchema creates the contacts table and its indexes if missing.
func EnsureSchema(ctx context.Context, db *sql.DB, d Dialect) error {
	raw, err := schemaFS.ReadFile("schema/" + d.name + ".sql")
	if err != nil {
		return fmt.Errorf("read %s schema: %w", d.name, err)
	}
	for _, stmt := range strings.Split(string(raw), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply %s schema: %w", d.name, ClassifyError(err))
		}
	}
	return nil
}
