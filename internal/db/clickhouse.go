package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"
)

// ClickHouse wraps the analytics connection backing delivery aggregation.
// Close is safe on a nil *ClickHouse; the other methods are not. When
// InitClickHouse fails, cmd/mcp-server wires delivery.SyntheticSource into
// delivery.Engine instead.
type ClickHouse struct {
	db  *sql.DB
	log *zap.Logger
}

// InitClickHouse connects to ClickHouse and ensures the delivery_events
// table exists. It is non-fatal for callers to treat a connection error as
// "run without real delivery data" rather than crash the server.
func InitClickHouse(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration, log *zap.Logger) (*ClickHouse, error) {
	conn, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	conn.SetMaxOpenConns(maxOpenConns)
	conn.SetMaxIdleConns(maxIdleConns)
	conn.SetConnMaxLifetime(connMaxLifetime)
	conn.SetConnMaxIdleTime(connMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	ch := &ClickHouse{db: conn, log: log}
	if err := ch.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *ClickHouse) ensureSchema(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS delivery_events (
		tenant_id    String,
		media_buy_id String,
		package_id   String,
		country      String,
		format_id    String,
		impressions  Int64,
		spend        Float64,
		recorded_at  DateTime
	) ENGINE=MergeTree() ORDER BY (tenant_id, media_buy_id, package_id, recorded_at)`
	_, err := c.db.ExecContext(ctx, ddl)
	return err
}

// RecordDeliveryEvent appends one observed-delivery row. No adapter in this
// module calls it; the mock adapter has no real event pipeline, which is
// why SyntheticSource exists.
func (c *ClickHouse) RecordDeliveryEvent(ctx context.Context, tenantID, mediaBuyID, packageID, country, formatID string, impressions int64, spend float64, at time.Time) error {
	const insert = `INSERT INTO delivery_events
		(tenant_id, media_buy_id, package_id, country, format_id, impressions, spend, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := c.db.ExecContext(ctx, insert, tenantID, mediaBuyID, packageID, country, formatID, impressions, spend, at)
	return err
}

// Delivered sums impressions and spend recorded for (tenantID, mediaBuyID,
// packageID) in [since, until]. It satisfies delivery.EventSource.
func (c *ClickHouse) Delivered(ctx context.Context, tenantID, mediaBuyID, packageID string, since, until time.Time) (int64, float64, bool, error) {
	const query = `SELECT sum(impressions), sum(spend), count()
		FROM delivery_events
		WHERE tenant_id = ? AND media_buy_id = ? AND package_id = ?
		AND recorded_at >= ? AND recorded_at <= ?`
	var impressions sql.NullInt64
	var spend sql.NullFloat64
	var rows int64
	row := c.db.QueryRowContext(ctx, query, tenantID, mediaBuyID, packageID, since, until)
	if err := row.Scan(&impressions, &spend, &rows); err != nil {
		return 0, 0, false, err
	}
	if rows == 0 {
		return 0, 0, false, nil
	}
	return impressions.Int64, spend.Float64, true, nil
}

func (c *ClickHouse) Close() {
	if c != nil && c.db != nil {
		c.db.Close()
	}
}
