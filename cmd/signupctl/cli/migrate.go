package cli

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-signup/internal/platform/db"
)

// migrateFn is swapped in tests.
var migrateFn = db.Migrate

// MigrateCommand applies pending schema migrations.
func MigrateCommand(ctx context.Context, dsn string, opts OutputOptions) int {
	opts.defaults()
	if dsn == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "migrate: PG_DSN is required")
		return 1
	}
	if err := migrateFn(ctx, dsn); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "migrate: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(opts.Stdout, "migrations applied")
	return 0
}
