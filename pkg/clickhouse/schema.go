package clickhouse

import "fmt"

// BarsTable is the OHLCV table used by the series store.
const BarsTable = "bars"

// BarsSchema returns the idempotent DDL for database db. ReplacingMergeTree keeps the
// latest row per (source, interval, ts) so re-imports act as upserts after merges.
func BarsSchema(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	source    LowCardinality(String),
	interval  LowCardinality(String),
	ts        DateTime64(3, 'UTC'),
	open      Float64,
	high      Float64,
	low       Float64,
	close     Float64,
	volume    Float64,
	ingested  DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(ingested)
PARTITION BY (interval, toYYYYMM(ts))
ORDER BY (source, interval, ts)`, db, BarsTable),
	}
}
