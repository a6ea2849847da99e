package datasource

import (
	"sort"
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/tradesim-lab/tradesim/internal/types"
	"github.com/tradesim-lab/tradesim/pkg/errors"
)

// InMemoryDataSource serves preloaded bars with O(1) indexed lookups. It is
// the source of choice for tests and for walk-forward runs, where the same
// data is replayed many times.
type InMemoryDataSource struct {
	mu sync.RWMutex

	// bars per ticker in chronological order, with a timestamp index
	bars  map[string][]types.Bar
	index map[string]map[int64]int

	// distinct bar timestamps across all tickers, sorted ascending
	timestamps []time.Time

	cursorState
}

// NewInMemoryDataSource builds a source from a slice of bars in any order.
func NewInMemoryDataSource(bars []types.Bar) (*InMemoryDataSource, error) {
	ds := &InMemoryDataSource{
		bars:  make(map[string][]types.Bar),
		index: make(map[string]map[int64]int),
	}

	if err := ds.load(bars); err != nil {
		return nil, err
	}

	return ds, nil
}

func (ds *InMemoryDataSource) load(bars []types.Bar) error {
	sorted := make([]types.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	seen := make(map[int64]bool)

	for _, bar := range sorted {
		if bar.Ticker == "" {
			return errors.New(errors.ErrCodeInvalidParameter, "bar has an empty ticker")
		}

		ticker := bar.Ticker
		if _, ok := ds.bars[ticker]; !ok {
			ds.bars[ticker] = nil
			ds.index[ticker] = make(map[int64]int)
		}

		key := bar.Time.UnixNano()
		if _, dup := ds.index[ticker][key]; dup {
			return errors.Newf(errors.ErrCodeInvalidParameter,
				"duplicate bar for %s at %s", ticker, bar.Time)
		}

		ds.index[ticker][key] = len(ds.bars[ticker])
		ds.bars[ticker] = append(ds.bars[ticker], bar)

		if !seen[key] {
			seen[key] = true

			ds.timestamps = append(ds.timestamps, bar.Time)
		}
	}

	sort.Slice(ds.timestamps, func(i, j int) bool {
		return ds.timestamps[i].Before(ds.timestamps[j])
	})

	return nil
}

// Initialize implements DataSource. The in-memory source takes its data at
// construction, not from a path.
func (ds *InMemoryDataSource) Initialize(string) error {
	return errors.New(errors.ErrCodeInvalidConfiguration,
		"in-memory data source is constructed from bars, not a path")
}

// SetCursor implements DataSource.
func (ds *InMemoryDataSource) SetCursor(t time.Time) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	return ds.set(t)
}

// Cursor implements DataSource.
func (ds *InMemoryDataSource) Cursor() optional.Option[time.Time] {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	return ds.cursor
}

// Timestamps implements DataSource.
func (ds *InMemoryDataSource) Timestamps(start, end optional.Option[time.Time]) ([]time.Time, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	var out []time.Time

	for _, t := range ds.timestamps {
		if s, err := start.Take(); err == nil && t.Before(s) {
			continue
		}

		if e, err := end.Take(); err == nil && t.After(e) {
			break
		}

		out = append(out, t)
	}

	return out, nil
}

// Tickers implements DataSource.
func (ds *InMemoryDataSource) Tickers() ([]string, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	tickers := make([]string, 0, len(ds.bars))
	for ticker := range ds.bars {
		tickers = append(tickers, ticker)
	}

	sort.Strings(tickers)

	return tickers, nil
}

// GetDataAt implements DataSource.
func (ds *InMemoryDataSource) GetDataAt(ticker string, t time.Time) (types.Bar, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	if err := ds.guard(t); err != nil {
		return types.Bar{}, err
	}

	idx, ok := ds.index[ticker]
	if !ok {
		return types.Bar{}, errors.Newf(errors.ErrCodeDataNotFound, "no data for ticker %s", ticker)
	}

	i, ok := idx[t.UnixNano()]
	if !ok {
		return types.Bar{}, errors.Newf(errors.ErrCodeDataNotFound, "no bar for %s at %s", ticker, t)
	}

	return ds.bars[ticker][i], nil
}

// GetPriceAt implements DataSource.
func (ds *InMemoryDataSource) GetPriceAt(ticker string, t time.Time) (decimal.Decimal, error) {
	bar, err := ds.GetDataAt(ticker, t)
	if err != nil {
		return decimal.Zero, err
	}

	return bar.Close, nil
}

// GetRange implements DataSource.
func (ds *InMemoryDataSource) GetRange(ticker string, start, end time.Time) ([]types.Bar, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	if err := ds.guard(end); err != nil {
		return nil, err
	}

	series, ok := ds.bars[ticker]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "no data for ticker %s", ticker)
	}

	var out []types.Bar

	for _, bar := range series {
		if bar.Time.Before(start) {
			continue
		}

		if bar.Time.After(end) {
			break
		}

		out = append(out, bar)
	}

	return out, nil
}

// Count implements DataSource.
func (ds *InMemoryDataSource) Count(start, end optional.Option[time.Time]) (int, error) {
	timestamps, err := ds.Timestamps(start, end)
	if err != nil {
		return 0, err
	}

	return len(timestamps), nil
}

// Close implements DataSource.
func (ds *InMemoryDataSource) Close() error {
	return nil
}
