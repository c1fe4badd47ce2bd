package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tramites-sync/internal/db"
)

// Open returns the store for driver ("sqlite", "postgres" or "none") and
// applies its migration.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var st Store
	switch driver {
	case "", "sqlite":
		if dsn == "" {
			return nil, eris.New("store: sqlite requires a database path")
		}
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, eris.Wrapf(err, "store: create %s", dir)
			}
		}
		s, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		st = s
	case "postgres":
		if dsn == "" {
			return nil, eris.New("store: postgres requires store.database_url")
		}
		s, err := NewPostgres(ctx, dsn, db.PoolOptions{})
		if err != nil {
			return nil, err
		}
		st = s
	case "none":
		return Nop{}, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
