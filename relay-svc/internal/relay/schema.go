package relay

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/lib/pq"
)

// notifyLimit keeps bodies under Postgres's 8000 byte NOTIFY payload cap.
const notifyLimit = 7900

// schemaStatements creates the staff tables and the trigger that publishes
// every committed row change on channel.
func schemaStatements(channel string) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS service_requests (
		id              TEXT PRIMARY KEY,
		location_id     TEXT NOT NULL,
		table_id        TEXT NOT NULL,
		table_number    INTEGER NOT NULL DEFAULT 0,
		type            TEXT NOT NULL,
		status          TEXT NOT NULL DEFAULT 'pending',
		priority        TEXT NOT NULL DEFAULT 'normal',
		message         TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		acknowledged_at TIMESTAMPTZ,
		acknowledged_by TEXT,
		completed_at    TIMESTAMPTZ,
		completed_by    TEXT
	)`,
		`CREATE INDEX IF NOT EXISTS service_requests_location_status
		ON service_requests (location_id, status)`,
		`CREATE TABLE IF NOT EXISTS orders (
		id            TEXT PRIMARY KEY,
		order_number  TEXT NOT NULL,
		location_id   TEXT NOT NULL,
		table_id      TEXT,
		table_number  INTEGER,
		status        TEXT NOT NULL DEFAULT 'pending',
		items         JSONB,
		subtotal      BIGINT NOT NULL DEFAULT 0,
		tax           BIGINT NOT NULL DEFAULT 0,
		total         BIGINT NOT NULL DEFAULT 0,
		notes         TEXT,
		customer_name TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_by    TEXT
	)`,
		`CREATE INDEX IF NOT EXISTS orders_location_status
		ON orders (location_id, status)`,
		`CREATE OR REPLACE FUNCTION notify_staff_change() RETURNS trigger AS $$
	DECLARE
		rec  RECORD;
		body TEXT;
	BEGIN
		IF TG_OP = 'DELETE' THEN
			rec := OLD;
		ELSE
			rec := NEW;
		END IF;
		body := json_build_object(
			'entity_type', TG_ARGV[0],
			'op', lower(TG_OP),
			'location_id', rec.location_id,
			'payload', row_to_json(rec)
		)::text;
		-- oversized rows go out as a reference that subscribers re-read
		IF octet_length(body) > ` + strconv.Itoa(notifyLimit) + ` THEN
			body := json_build_object(
				'entity_type', TG_ARGV[0],
				'op', lower(TG_OP),
				'location_id', rec.location_id,
				'truncated', true,
				'payload', json_build_object(
					'id', rec.id,
					'location_id', rec.location_id,
					'updated_at', to_jsonb(rec)->'updated_at'
				)
			)::text;
		END IF;
		-- never fail the writer's statement over a notification
		IF octet_length(body) > ` + strconv.Itoa(notifyLimit) + ` THEN
			RAISE WARNING 'notify_staff_change: % % too large to announce', TG_ARGV[0], rec.id;
			RETURN NULL;
		END IF;
		PERFORM pg_notify(` + pq.QuoteLiteral(channel) + `, body);
		RETURN NULL;
	END;
	$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS service_requests_notify ON service_requests`,
		`CREATE TRIGGER service_requests_notify
		AFTER INSERT OR UPDATE OR DELETE ON service_requests
		FOR EACH ROW EXECUTE FUNCTION notify_staff_change('request')`,
		`DROP TRIGGER IF EXISTS orders_notify ON orders`,
		`CREATE TRIGGER orders_notify
		AFTER INSERT OR UPDATE OR DELETE ON orders
		FOR EACH ROW EXECUTE FUNCTION notify_staff_change('order')`,
	}
}

// EnsureSchema is idempotent; it runs on every start.
func EnsureSchema(ctx context.Context, db *sql.DB, channel string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range schemaStatements(channel) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return tx.Commit()
}
