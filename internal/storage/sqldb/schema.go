package sqldb

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var schemaSQL string

const (
	TableOpInfo     = "OpInfo"
	TablePost       = "PostTable"
	TableProduction = "ProductionTable"
	TableTaskRun    = "TaskRun"
)

// primaryKeys is the closed set of tables Upsert accepts.
var primaryKeys = map[string]string{
	TableOpInfo:     "OpInfoId",
	TablePost:       "PostId",
	TableProduction: "ProductionId",
	TableTaskRun:    "TaskName",
}

// EnsureSchema creates missing tables. Existing tables are left untouched.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
