package usecase

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"PatternScope/internal/domain/models"
	domrepo "PatternScope/internal/domain/repository"
	applogger "PatternScope/pkg/logger"
	"PatternScope/pkg/util"
)

var (
	ErrInvalidCSV = errors.New("invalid csv")
	// ErrImportUnsupported is returned when the storage backend is read-only.
	ErrImportUnsupported = errors.New("series import not supported by storage backend")
)

// SeriesInvalidator drops cached reads of a series after a write.
type SeriesInvalidator interface {
	Invalidate(ctx context.Context, source string, interval domrepo.Interval) error
}

// ImportUseCase loads OHLCV CSV files into the series store.
type ImportUseCase struct {
	writer      domrepo.SeriesWriter
	invalidator SeriesInvalidator
	l           *applogger.Logger
}

// NewImportUseCase wires the import. writer and invalidator may be nil.
func NewImportUseCase(writer domrepo.SeriesWriter, invalidator SeriesInvalidator, l *applogger.Logger) *ImportUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	return &ImportUseCase{writer: writer, invalidator: invalidator, l: l}
}

type ImportResult struct {
	Source     string `json:"source"`
	Interval   string `json:"interval"`
	Rows       int    `json:"rows"`
	Saved      int    `json:"saved"`
	Duplicates int    `json:"duplicates"`
}

// ImportCSV parses time,open,high,low,close[,volume] rows. A header row is optional
// and, when present, columns are matched by name. Bars are sorted ascending; for a
// repeated timestamp the last row wins.
func (uc *ImportUseCase) ImportCSV(ctx context.Context, key models.SeriesKey, r io.Reader) (*ImportResult, error) {
	if uc.writer == nil {
		return nil, ErrImportUnsupported
	}
	bars, rows, err := ParseBarsCSV(r)
	if err != nil {
		return nil, err
	}
	bars, dups := dedupeBars(bars)

	saved, err := uc.writer.SaveBars(ctx, key, bars)
	if err != nil {
		return nil, fmt.Errorf("save bars: %w", err)
	}
	if uc.invalidator != nil {
		if err := uc.invalidator.Invalidate(ctx, key.Source, domrepo.Interval(key.Interval)); err != nil {
			uc.l.Warn("cache invalidation failed", applogger.String("series", key.String()), applogger.Error(err))
		}
	}
	uc.l.Info("bars imported",
		applogger.String("series", key.String()),
		applogger.Int("rows", rows),
		applogger.Int("saved", saved),
		applogger.Int("duplicates", dups))
	return &ImportResult{Source: key.Source, Interval: key.Interval, Rows: rows, Saved: saved, Duplicates: dups}, nil
}

type csvColumns struct {
	time, open, high, low, close, volume int
}

var positional = csvColumns{time: 0, open: 1, high: 2, low: 3, close: 4, volume: 5}

// ParseBarsCSV returns the bars in file order and the number of data rows.
func ParseBarsCSV(r io.Reader) ([]models.Bar, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var (
		bars []models.Bar
		cols = positional
		line = 0
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
		}
		line++
		if line == 1 {
			if _, ok := util.ParseTime(rec[0]); !ok {
				if cols, err = headerColumns(rec); err != nil {
					return nil, 0, err
				}
				continue
			}
		}
		b, err := parseRow(rec, cols)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: line %d: %v", ErrInvalidCSV, line, err)
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 {
		return nil, 0, fmt.Errorf("%w: no data rows", ErrInvalidCSV)
	}
	return bars, len(bars), nil
}

func headerColumns(rec []string) (csvColumns, error) {
	cols := csvColumns{time: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	for i, name := range rec {
		switch strings.ToLower(strings.Trim(strings.TrimSpace(name), "<>")) {
		case "time", "date", "datetime", "timestamp":
			cols.time = i
		case "open":
			cols.open = i
		case "high":
			cols.high = i
		case "low":
			cols.low = i
		case "close":
			cols.close = i
		case "volume", "tick_volume", "tickvol", "vol":
			if cols.volume < 0 {
				cols.volume = i
			}
		}
	}
	if cols.time < 0 || cols.open < 0 || cols.high < 0 || cols.low < 0 || cols.close < 0 {
		return cols, fmt.Errorf("%w: header must name time, open, high, low and close", ErrInvalidCSV)
	}
	return cols, nil
}

func parseRow(rec []string, cols csvColumns) (models.Bar, error) {
	field := func(i int) (float64, error) {
		if i >= len(rec) {
			return 0, fmt.Errorf("missing column %d", i+1)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("non-finite value %q in column %d", rec[i], i+1)
		}
		return v, nil
	}

	var b models.Bar
	if cols.time >= len(rec) {
		return b, fmt.Errorf("missing time column")
	}
	t, ok := util.ParseTime(rec[cols.time])
	if !ok {
		return b, fmt.Errorf("bad time %q", rec[cols.time])
	}
	b.Time = t

	var err error
	if b.Open, err = field(cols.open); err != nil {
		return b, err
	}
	if b.High, err = field(cols.high); err != nil {
		return b, err
	}
	if b.Low, err = field(cols.low); err != nil {
		return b, err
	}
	if b.Close, err = field(cols.close); err != nil {
		return b, err
	}
	if cols.volume >= 0 && cols.volume < len(rec) && strings.TrimSpace(rec[cols.volume]) != "" {
		if b.Volume, err = field(cols.volume); err != nil {
			return b, err
		}
	}
	if b.High < b.Low {
		return b, fmt.Errorf("high %v below low %v", b.High, b.Low)
	}
	return b, nil
}

// dedupeBars sorts ascending by time and keeps the last row per timestamp.
func dedupeBars(bars []models.Bar) ([]models.Bar, int) {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	out := bars[:0]
	dups := 0
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Time.Equal(b.Time) {
			out[n-1] = b
			dups++
			continue
		}
		out = append(out, b)
	}
	return out, dups
}
