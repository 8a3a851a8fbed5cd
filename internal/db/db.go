// Package db provides a pgxpool-based connection pool with prepared
// statement registration, schema bootstrap, and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/courtwatch/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// registerPreparedStatements registers all statements the cycle preload and
// the subscriber API use. Prepared statements eliminate parse overhead on
// every cycle.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Cycle preload (bulk reads, scoped to the crawled slice)
		"load_subscriptions": "SELECT id, user_id, scope, date_ymd FROM subscriptions WHERE enabled = true",
		"load_endpoints":     "SELECT user_id, endpoint, p256dh, auth FROM push_endpoints",
		"load_snapshot":      "SELECT facility_id, date_ymd, slot_key FROM slots_snapshot WHERE facility_id = ANY($1) AND date_ymd = ANY($2)",
		"load_baselines":     "SELECT user_id, scope, date_ymd, slot_key FROM baseline_slots WHERE date_ymd = ANY($1)",
		"load_sent":          "SELECT user_id, scope, date_ymd, slot_key FROM sent_log WHERE date_ymd = ANY($1)",

		// Facility catalogue
		"list_facilities": "SELECT facility_id, title, location FROM facilities ORDER BY facility_id",

		// Subscriber API
		"upsert_endpoint": `
			INSERT INTO push_endpoints (user_id, endpoint, p256dh, auth, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (user_id) DO UPDATE SET
				endpoint = EXCLUDED.endpoint,
				p256dh = EXCLUDED.p256dh,
				auth = EXCLUDED.auth,
				updated_at = NOW()`,
		"insert_subscription": `
			INSERT INTO subscriptions (user_id, scope, date_ymd, enabled)
			VALUES ($1, $2, $3, true)
			RETURNING id`,
		"disable_subscription": `
			UPDATE subscriptions SET enabled = false
			WHERE user_id = $1 AND scope = $2 AND date_ymd = $3 AND enabled = true`,
		"list_user_subscriptions": `
			SELECT id, scope, date_ymd, enabled, created_at
			FROM subscriptions WHERE user_id = $1 ORDER BY date_ymd, scope`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
