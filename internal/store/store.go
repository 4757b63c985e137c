package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Store wraps the Postgres connection pool that data.entity lives in.
type Store struct {
	db *sql.DB
}

// Connect opens and verifies a Postgres connection pool. Every connection
// the pool opens carries `application_name=robserver` so operators can spot
// this workload in pg_stat_activity — database/sql has no per-connection
// "after connect" hook the way sqlx's PgPoolOptions does, so the setting is
// folded into the DSN itself instead, which lib/pq applies to every socket
// it opens.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", withApplicationName(dsn))
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// withApplicationName injects application_name=robserver into a Postgres
// DSN, handling both URL (postgres://...) and keyword/value
// ("host=... dbname=...") forms, and leaving an explicit value the operator
// already set untouched.
func withApplicationName(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return dsn
		}
		q := u.Query()
		if q.Get("application_name") == "" {
			q.Set("application_name", "robserver")
		}
		u.RawQuery = q.Encode()
		return u.String()
	}

	if strings.Contains(dsn, "application_name=") {
		return dsn
	}
	if dsn != "" {
		return dsn + " application_name=robserver"
	}
	return "application_name=robserver"
}

// EntityCounts fetches the aggregate figures the periodic stats reporter
// and the admin API's /api/stats endpoint both report: how many distinct
// identities have ever been observed, and how many observations they
// represent in total.
func (s *Store) EntityCounts(ctx context.Context) (distinct int64, total int64, err error) {
	err = s.db.QueryRowContext(ctx, `select count(*), coalesce(sum(count), 0) from data.entity`).Scan(&distinct, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("store: entity counts: %w", err)
	}
	return distinct, total, nil
}
