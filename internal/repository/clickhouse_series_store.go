package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"PatternScope/internal/domain/models"
	domrepo "PatternScope/internal/domain/repository"
	pkgch "PatternScope/pkg/clickhouse"
	applogger "PatternScope/pkg/logger"
)

// CHSeriesStore implements SeriesStore backed by the ClickHouse bars table.
type CHSeriesStore struct {
	db        *sql.DB
	table     string
	batchSize int
	l         *applogger.Logger
}

var _ domrepo.SeriesStore = (*CHSeriesStore)(nil)

func NewCHSeriesStore(ch *pkgch.Client, batchSize int, l *applogger.Logger) *CHSeriesStore {
	if batchSize <= 0 {
		batchSize = 2000
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CHSeriesStore{
		db:        ch.DB(),
		table:     ch.Database() + "." + pkgch.BarsTable,
		batchSize: batchSize,
		l:         l,
	}
}

const barColumns = "ts, open, high, low, close, volume"

func (s *CHSeriesStore) GetSeries(ctx context.Context, source string, interval domrepo.Interval, count int) ([]models.Bar, error) {
	q := fmt.Sprintf(`
        SELECT %s FROM %s FINAL
        WHERE source = ? AND interval = ?
        ORDER BY ts DESC
        LIMIT ?`, barColumns, s.table)
	bars, err := s.query(ctx, "latest_bars", q, source, string(interval), count)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s@%s: %w", source, interval, domrepo.ErrNoData)
	}
	return bars, nil
}

func (s *CHSeriesStore) GetSeriesAfter(ctx context.Context, source string, interval domrepo.Interval, ts time.Time, count int) ([]models.Bar, error) {
	q := fmt.Sprintf(`
        SELECT %s FROM %s FINAL
        WHERE source = ? AND interval = ? AND ts > ?
        ORDER BY ts ASC
        LIMIT ?`, barColumns, s.table)
	return s.query(ctx, "bars_after", q, source, string(interval), ts.UTC(), count)
}

func (s *CHSeriesStore) query(ctx context.Context, op, q string, args ...interface{}) ([]models.Bar, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse query error", applogger.String("op", op), applogger.Any("args", args), applogger.Error(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, 512)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Time = b.Time.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse query ok",
		applogger.String("op", op),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)))
	return out, nil
}

func (s *CHSeriesStore) ListSeries(ctx context.Context) ([]models.SeriesKey, error) {
	q := fmt.Sprintf("SELECT DISTINCT source, interval FROM %s ORDER BY source, interval", s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	defer rows.Close()

	var out []models.SeriesKey
	for rows.Next() {
		var k models.SeriesKey
		if err := rows.Scan(&k.Source, &k.Interval); err != nil {
			return nil, fmt.Errorf("scan series key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// SaveBars inserts bars in multi-row VALUES chunks. Duplicate timestamps collapse
// on merge through ReplacingMergeTree.
func (s *CHSeriesStore) SaveBars(ctx context.Context, key models.SeriesKey, bars []models.Bar) (int, error) {
	saved := 0
	for start := 0; start < len(bars); start += s.batchSize {
		end := start + s.batchSize
		if end > len(bars) {
			end = len(bars)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, b := range bars[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, key.Source, key.Interval, b.Time.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		q := fmt.Sprintf("INSERT INTO %s (source, interval, %s) VALUES %s", s.table, barColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return saved, fmt.Errorf("insert bars: %w", err)
		}
		saved += end - start
	}
	return saved, nil
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *CHSeriesStore) Close() error { return nil }
