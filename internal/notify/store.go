package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/courtwatch/internal/crawl"
)

// Preload reads everything one cycle needs in four bulk queries, scoped to
// the facility ids and dates the crawl pass actually observed. All reads
// complete before any subscription is evaluated.
func Preload(ctx context.Context, pool *pgxpool.Pool, facilityIDs, dateKeys []string) (*State, error) {
	state := &State{
		Endpoints: make(map[string]Endpoint),
		Snapshot:  make(map[FacilityDate]map[string]struct{}),
		Baselines: make(map[SubKey]map[string]struct{}),
		Sent:      make(map[SubKey]map[string]struct{}),
	}

	rows, err := pool.Query(ctx, "load_subscriptions")
	if err != nil {
		return nil, fmt.Errorf("load subscriptions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.Scope, &s.DateKey); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		state.Subscriptions = append(state.Subscriptions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load subscriptions: %w", err)
	}

	rows, err = pool.Query(ctx, "load_endpoints")
	if err != nil {
		return nil, fmt.Errorf("load endpoints: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e Endpoint
		if err := rows.Scan(&e.UserID, &e.Endpoint, &e.P256dh, &e.Auth); err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		state.Endpoints[e.UserID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load endpoints: %w", err)
	}

	if len(facilityIDs) > 0 && len(dateKeys) > 0 {
		rows, err = pool.Query(ctx, "load_snapshot", facilityIDs, dateKeys)
		if err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var fid, dk, sk string
			if err := rows.Scan(&fid, &dk, &sk); err != nil {
				return nil, fmt.Errorf("scan snapshot: %w", err)
			}
			fd := FacilityDate{FacilityID: fid, DateKey: dk}
			if state.Snapshot[fd] == nil {
				state.Snapshot[fd] = make(map[string]struct{})
			}
			state.Snapshot[fd][sk] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
	}

	if len(dateKeys) > 0 {
		rows, err = pool.Query(ctx, "load_baselines", dateKeys)
		if err != nil {
			return nil, fmt.Errorf("load baselines: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var k SubKey
			var sk string
			if err := rows.Scan(&k.UserID, &k.Scope, &k.DateKey, &sk); err != nil {
				return nil, fmt.Errorf("scan baseline: %w", err)
			}
			if state.Baselines[k] == nil {
				state.Baselines[k] = make(map[string]struct{})
			}
			state.Baselines[k][sk] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("load baselines: %w", err)
		}

		rows, err = pool.Query(ctx, "load_sent", dateKeys)
		if err != nil {
			return nil, fmt.Errorf("load sent log: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var k SubKey
			var sk string
			if err := rows.Scan(&k.UserID, &k.Scope, &k.DateKey, &sk); err != nil {
				return nil, fmt.Errorf("scan sent log: %w", err)
			}
			if state.Sent[k] == nil {
				state.Sent[k] = make(map[string]struct{})
			}
			state.Sent[k][sk] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("load sent log: %w", err)
		}
	}

	return state, nil
}

// --------------------------------------------------------------------------
// Bulk flush — one round trip per batch, never per slot
// --------------------------------------------------------------------------

// FlushSnapshot upserts observed slots; a conflict refreshes last_seen only.
// Required write: a failure here is cycle-fatal and the caller retries the
// whole cycle on the next run.
func FlushSnapshot(ctx context.Context, pool *pgxpool.Pool, rows []SnapshotRow, now time.Time) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO slots_snapshot (facility_id, date_ymd, slot_key, first_seen_at, last_seen_at)
			VALUES ($1, $2, $3, $4, $4)
			ON CONFLICT (facility_id, date_ymd, slot_key)
			DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at`,
			r.FacilityID, r.DateKey, r.SlotKey, now)
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return nil
}

// FlushBaselines inserts baseline rows with first-write-wins semantics.
func FlushBaselines(ctx context.Context, pool *pgxpool.Pool, rows []BaselineRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO baseline_slots (user_id, scope, date_ymd, slot_key)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, scope, date_ymd, slot_key) DO NOTHING`,
			r.UserID, r.Scope, r.DateKey, r.SlotKey)
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("flush baselines: %w", err)
	}
	return nil
}

// FlushSent records delivered notifications. Insert-or-ignore: replaying a
// cycle after a crash between dispatch and flush re-sends nothing extra.
func FlushSent(ctx context.Context, pool *pgxpool.Pool, rows []SentRow, now time.Time) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO sent_log (user_id, scope, date_ymd, slot_key, sent_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, scope, date_ymd, slot_key) DO NOTHING`,
			r.UserID, r.Scope, r.DateKey, r.SlotKey, now)
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("flush sent log: %w", err)
	}
	return nil
}

// UpsertFacilities refreshes the facility metadata cache. Secondary write:
// a failure is a warning, never cycle-fatal.
func UpsertFacilities(ctx context.Context, pool *pgxpool.Pool, facilities map[string]crawl.Facility) error {
	if len(facilities) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for id, f := range facilities {
		batch.Queue(`
			INSERT INTO facilities (facility_id, title, location, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (facility_id) DO UPDATE SET
				title = EXCLUDED.title,
				location = EXCLUDED.location,
				updated_at = NOW()`,
			id, f.Title, f.Location)
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert facilities: %w", err)
	}
	return nil
}
