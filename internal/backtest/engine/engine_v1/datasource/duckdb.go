package datasource

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tradesim-lab/tradesim/internal/logger"
	"github.com/tradesim-lab/tradesim/internal/types"
	"github.com/tradesim-lab/tradesim/pkg/errors"
)

// DuckDBDataSource serves bars from a DuckDB view over a Parquet or CSV
// file. Price columns are selected as strings so decimal values survive the
// round trip without passing through a binary float.
type DuckDBDataSource struct {
	mu  sync.RWMutex
	db  *sql.DB
	log *logger.Logger
	sq  squirrel.StatementBuilderType

	cursorState
}

// NewDuckDBDataSource opens a DuckDB database at path. Use ":memory:" (or an
// empty path) for an ephemeral database.
func NewDuckDBDataSource(path string, log *logger.Logger) (*DuckDBDataSource, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	if path == ":memory:" {
		path = ""
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to open duckdb", err)
	}

	return &DuckDBDataSource{
		db:  db,
		log: log,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Initialize implements DataSource. The path must point at a Parquet or CSV
// file with ticker/time/open/high/low/close/volume columns.
func (ds *DuckDBDataSource) Initialize(path string) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	ds.log.Debug("initializing duckdb data source", zap.String("path", path))

	if _, err := ds.db.Exec(`DROP VIEW IF EXISTS market_data;`); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to drop existing view", err)
	}

	// squirrel has no CREATE VIEW support; the path is interpolated, not a
	// placeholder, because DuckDB does not parameterize read_parquet.
	query := fmt.Sprintf(`CREATE VIEW market_data AS SELECT * FROM read_parquet('%s');`, path)
	if _, err := ds.db.Exec(query); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to create market_data view", err)
	}

	return nil
}

// SetCursor implements DataSource.
func (ds *DuckDBDataSource) SetCursor(t time.Time) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	return ds.set(t)
}

// Cursor implements DataSource.
func (ds *DuckDBDataSource) Cursor() optional.Option[time.Time] {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	return ds.cursor
}

// Timestamps implements DataSource.
func (ds *DuckDBDataSource) Timestamps(start, end optional.Option[time.Time]) ([]time.Time, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	builder := ds.sq.Select("DISTINCT time").From("market_data").OrderBy("time ASC")
	builder = applyTimeBounds(builder, start, end)

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build timestamps query", err)
	}

	rows, err := ds.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "timestamps query failed", err)
	}
	defer rows.Close()

	var out []time.Time

	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan timestamp", err)
		}

		out = append(out, t)
	}

	return out, rows.Err()
}

// Tickers implements DataSource.
func (ds *DuckDBDataSource) Tickers() ([]string, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	query, args, err := ds.sq.Select("DISTINCT ticker").From("market_data").OrderBy("ticker ASC").ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build tickers query", err)
	}

	rows, err := ds.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "tickers query failed", err)
	}
	defer rows.Close()

	var out []string

	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan ticker", err)
		}

		out = append(out, ticker)
	}

	return out, rows.Err()
}

// GetDataAt implements DataSource.
func (ds *DuckDBDataSource) GetDataAt(ticker string, t time.Time) (types.Bar, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	if err := ds.guard(t); err != nil {
		return types.Bar{}, err
	}

	builder := ds.selectBars().
		Where(squirrel.Eq{"ticker": ticker}).
		Where(squirrel.Eq{"time": t}).
		Limit(1)

	bars, err := ds.queryBars(builder)
	if err != nil {
		return types.Bar{}, err
	}

	if len(bars) == 0 {
		return types.Bar{}, errors.Newf(errors.ErrCodeDataNotFound, "no bar for %s at %s", ticker, t)
	}

	return bars[0], nil
}

// GetPriceAt implements DataSource.
func (ds *DuckDBDataSource) GetPriceAt(ticker string, t time.Time) (decimal.Decimal, error) {
	bar, err := ds.GetDataAt(ticker, t)
	if err != nil {
		return decimal.Zero, err
	}

	return bar.Close, nil
}

// GetRange implements DataSource.
func (ds *DuckDBDataSource) GetRange(ticker string, start, end time.Time) ([]types.Bar, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	if err := ds.guard(end); err != nil {
		return nil, err
	}

	builder := ds.selectBars().
		Where(squirrel.Eq{"ticker": ticker}).
		Where(squirrel.GtOrEq{"time": start}).
		Where(squirrel.LtOrEq{"time": end}).
		OrderBy("time ASC")

	return ds.queryBars(builder)
}

// Count implements DataSource.
func (ds *DuckDBDataSource) Count(start, end optional.Option[time.Time]) (int, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	builder := ds.sq.Select("COUNT(DISTINCT time)").From("market_data")
	builder = applyTimeBounds(builder, start, end)

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build count query", err)
	}

	var count int
	if err := ds.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "count query failed", err)
	}

	return count, nil
}

// Close implements DataSource.
func (ds *DuckDBDataSource) Close() error {
	return ds.db.Close()
}

func (ds *DuckDBDataSource) selectBars() squirrel.SelectBuilder {
	// prices come back as VARCHAR so they parse into decimals exactly
	return ds.sq.Select(
		"ticker",
		"time",
		"CAST(open AS VARCHAR)",
		"CAST(high AS VARCHAR)",
		"CAST(low AS VARCHAR)",
		"CAST(close AS VARCHAR)",
		"CAST(volume AS VARCHAR)",
	).From("market_data")
}

func (ds *DuckDBDataSource) queryBars(builder squirrel.SelectBuilder) ([]types.Bar, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build bar query", err)
	}

	rows, err := ds.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "bar query failed", err)
	}
	defer rows.Close()

	var out []types.Bar

	for rows.Next() {
		var (
			bar                              types.Bar
			open, high, low, closing, volume string
		)

		if err := rows.Scan(&bar.Ticker, &bar.Time, &open, &high, &low, &closing, &volume); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan bar", err)
		}

		if bar.Open, err = decimal.NewFromString(open); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "bad open price", err)
		}

		if bar.High, err = decimal.NewFromString(high); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "bad high price", err)
		}

		if bar.Low, err = decimal.NewFromString(low); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "bad low price", err)
		}

		if bar.Close, err = decimal.NewFromString(closing); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "bad close price", err)
		}

		if bar.Volume, err = decimal.NewFromString(volume); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "bad volume", err)
		}

		out = append(out, bar)
	}

	return out, rows.Err()
}

func applyTimeBounds(builder squirrel.SelectBuilder, start, end optional.Option[time.Time]) squirrel.SelectBuilder {
	if s, err := start.Take(); err == nil {
		builder = builder.Where(squirrel.GtOrEq{"time": s})
	}

	if e, err := end.Take(); err == nil {
		builder = builder.Where(squirrel.LtOrEq{"time": e})
	}

	return builder
}
