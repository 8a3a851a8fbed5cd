package db

import (
	"context"
	"fmt"
)

// schemaSQL is the idempotent DDL for every table the engine touches.
// Rows are never deleted by this service; retention is an external concern.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS facilities (
	facility_id text PRIMARY KEY,
	title       text NOT NULL,
	location    text NOT NULL DEFAULT '',
	updated_at  timestamptz NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS push_endpoints (
	user_id    text PRIMARY KEY,
	endpoint   text NOT NULL,
	p256dh     text NOT NULL,
	auth       text NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id         bigserial PRIMARY KEY,
	user_id    text NOT NULL,
	scope      text NOT NULL,
	date_ymd   text NOT NULL,
	enabled    boolean NOT NULL DEFAULT true,
	created_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_scope_date
	ON subscriptions (scope, date_ymd)
	WHERE enabled = true;

CREATE TABLE IF NOT EXISTS slots_snapshot (
	facility_id   text NOT NULL,
	date_ymd      text NOT NULL,
	slot_key      text NOT NULL,
	first_seen_at timestamptz NOT NULL DEFAULT NOW(),
	last_seen_at  timestamptz NOT NULL DEFAULT NOW(),
	PRIMARY KEY (facility_id, date_ymd, slot_key)
);

CREATE INDEX IF NOT EXISTS idx_slots_snapshot_fac_date
	ON slots_snapshot (facility_id, date_ymd);

CREATE TABLE IF NOT EXISTS baseline_slots (
	user_id    text NOT NULL,
	scope      text NOT NULL,
	date_ymd   text NOT NULL,
	slot_key   text NOT NULL,
	created_at timestamptz NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, scope, date_ymd, slot_key)
);

CREATE TABLE IF NOT EXISTS sent_log (
	user_id  text NOT NULL,
	scope    text NOT NULL,
	date_ymd text NOT NULL,
	slot_key text NOT NULL,
	sent_at  timestamptz NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, scope, date_ymd, slot_key)
);
`

// EnsureSchema creates any missing tables and indexes. Safe to run on every
// startup.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	if _, err := p.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
