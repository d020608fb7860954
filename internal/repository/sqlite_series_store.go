package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"PatternScope/internal/domain/models"
	domrepo "PatternScope/internal/domain/repository"
)

// SQLiteSeriesStore keeps one database file per series at <root>/<SOURCE>/<interval>.db.
type SQLiteSeriesStore struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

var _ domrepo.SeriesStore = (*SQLiteSeriesStore)(nil)

func NewSQLiteSeriesStore(root string) (*SQLiteSeriesStore, error) {
	if root == "" {
		return nil, errors.New("sqlite: data root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &SQLiteSeriesStore{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *SQLiteSeriesStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for k, db := range s.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, k)
	}
	return firstErr
}

func (s *SQLiteSeriesStore) path(source, interval string) string {
	return filepath.Join(s.root, strings.ToUpper(source), strings.ToLower(interval)+".db")
}

// db opens (and caches) the series database. Reads pass create=false so a missing
// series reports ErrNoData instead of leaving an empty file behind.
func (s *SQLiteSeriesStore) db(source, interval string, create bool) (*sql.DB, error) {
	if source == "" || interval == "" {
		return nil, errors.New("sqlite: source and interval are required")
	}
	key := strings.ToUpper(source) + "@" + strings.ToLower(interval)
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[key]; ok {
		return db, nil
	}

	path := s.path(source, interval)
	if !create {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, domrepo.ErrNoData)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS bars (
		ts     INTEGER PRIMARY KEY,
		open   REAL NOT NULL,
		high   REAL NOT NULL,
		low    REAL NOT NULL,
		close  REAL NOT NULL,
		volume REAL NOT NULL DEFAULT 0
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	s.dbs[key] = db
	return db, nil
}

func (s *SQLiteSeriesStore) GetSeries(ctx context.Context, source string, interval domrepo.Interval, count int) ([]models.Bar, error) {
	db, err := s.db(source, string(interval), false)
	if err != nil {
		return nil, err
	}
	bars, err := queryBars(ctx, db, `SELECT ts, open, high, low, close, volume FROM bars ORDER BY ts DESC LIMIT ?`, count)
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

func (s *SQLiteSeriesStore) GetSeriesAfter(ctx context.Context, source string, interval domrepo.Interval, ts time.Time, count int) ([]models.Bar, error) {
	db, err := s.db(source, string(interval), false)
	if err != nil {
		return nil, err
	}
	return queryBars(ctx, db, `SELECT ts, open, high, low, close, volume FROM bars WHERE ts > ? ORDER BY ts ASC LIMIT ?`, ts.Unix(), count)
}

func queryBars(ctx context.Context, db *sql.DB, q string, args ...interface{}) ([]models.Bar, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()
	var out []models.Bar
	for rows.Next() {
		var (
			ts int64
			b  models.Bar
		)
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Time = time.Unix(ts, 0).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListSeries walks the data root for <SOURCE>/<interval>.db files.
func (s *SQLiteSeriesStore) ListSeries(_ context.Context) ([]models.SeriesKey, error) {
	dirs, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	var out []models.SeriesKey
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.root, d.Name()))
		if err != nil {
			return nil, fmt.Errorf("list series: %w", err)
		}
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || filepath.Ext(name) != ".db" {
				continue
			}
			iv := domrepo.Interval(strings.ToUpper(strings.TrimSuffix(name, ".db")))
			if !domrepo.IsValidInterval(iv) {
				continue
			}
			out = append(out, models.SeriesKey{Source: d.Name(), Interval: string(iv)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Interval < out[j].Interval
	})
	return out, nil
}

// SaveBars upserts bars in one transaction; an existing timestamp is overwritten.
func (s *SQLiteSeriesStore) SaveBars(ctx context.Context, key models.SeriesKey, bars []models.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	db, err := s.db(key.Source, key.Interval, true)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ts) DO UPDATE SET
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Time.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("upsert bar: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(bars), nil
}
