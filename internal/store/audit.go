package store

import (
	"database/sql"
	"fmt"
	"time"

	"cents-quoter/pkg/types"

	_ "modernc.org/sqlite"
)

// AuditDB is an append-only sqlite log of fills and terminal orders, for
// observability only — nothing in the quoting pipeline reads it back.
// Grounded on stadam23-Eve-flipper's internal/db/db.go: WAL journal mode +
// busy_timeout pragma, a schema_version-gated migration run once at Open.
type AuditDB struct {
	sql *sql.DB
}

// OpenAudit opens (or creates) the sqlite database at path and runs
// migrations.
func OpenAudit(path string) (*AuditDB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit db: %w", err)
	}
	a := &AuditDB{sql: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return a, nil
}

// Close closes the underlying connection.
func (a *AuditDB) Close() error {
	return a.sql.Close()
}

func (a *AuditDB) migrate() error {
	var version int
	a.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := a.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS fills (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				order_id     TEXT NOT NULL,
				ticker       TEXT NOT NULL,
				side         TEXT NOT NULL,
				action       TEXT NOT NULL,
				count        INTEGER NOT NULL,
				price_cents  INTEGER NOT NULL,
				is_taker     INTEGER NOT NULL,
				realized_pnl INTEGER NOT NULL,
				ts           TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_fills_ticker ON fills(ticker);

			CREATE TABLE IF NOT EXISTS orders (
				client_order_id TEXT PRIMARY KEY,
				exchange_id     TEXT,
				ticker          TEXT NOT NULL,
				side            TEXT NOT NULL,
				action          TEXT NOT NULL,
				price_cents     INTEGER NOT NULL,
				count           INTEGER NOT NULL,
				filled_count    INTEGER NOT NULL,
				status          TEXT NOT NULL,
				created_ts      TEXT NOT NULL,
				closed_ts       TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_orders_ticker ON orders(ticker);

			INSERT INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return err
		}
	}
	return nil
}

// RecordFill appends fill to the audit log, tagged with the realized P&L
// delta the quoting supervisor computed for it.
func (a *AuditDB) RecordFill(fill types.Fill, realizedPnL int64) error {
	_, err := a.sql.Exec(
		`INSERT INTO fills (order_id, ticker, side, action, count, price_cents, is_taker, realized_pnl, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fill.OrderID, string(fill.Ticker), string(fill.Side), string(fill.Action),
		fill.Count, fill.Price, boolToInt(fill.IsTaker), realizedPnL, fill.Ts.Format(timeLayout),
	)
	return err
}

// RecordTerminalOrder appends a ManagedOrder that has reached a terminal
// status (filled, cancelled, failed) to the audit log. closedTs is the time
// the order reached that status, supplied by the caller rather than read
// from the system clock so callers stay testable against a fixed clock.
func (a *AuditDB) RecordTerminalOrder(order *types.ManagedOrder, closedTs time.Time) error {
	_, err := a.sql.Exec(
		`INSERT OR REPLACE INTO orders
		 (client_order_id, exchange_id, ticker, side, action, price_cents, count, filled_count, status, created_ts, closed_ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ClientOrderID, order.ExchangeID, string(order.Ticker), string(order.Side), string(order.Action),
		order.Price, order.Count, order.FilledCount, string(order.Status),
		order.CreatedTs.Format(timeLayout), closedTs.Format(timeLayout),
	)
	return err
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
