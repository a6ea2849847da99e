package datasource

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/tradesim-lab/tradesim/internal/types"
)

// DataSource serves historical bars to the simulation under a strictly
// monotonic time cursor. Requests for data later than the cursor fail with a
// look-ahead-bias error rather than being silently clamped: a late request
// signals a harness bug, not a data problem.
type DataSource interface {
	// Initialize loads market data from the given path.
	Initialize(path string) error
	// SetCursor advances the simulation clock. Moving the cursor backwards
	// is rejected.
	SetCursor(t time.Time) error
	// Cursor returns the current simulation clock, or None before the
	// first SetCursor.
	Cursor() optional.Option[time.Time]
	// Timestamps returns the ordered distinct bar timestamps in [start,end].
	Timestamps(start, end optional.Option[time.Time]) ([]time.Time, error)
	// Tickers returns the distinct tickers present in the data.
	Tickers() ([]string, error)
	// GetDataAt returns the bar for ticker at exactly t.
	GetDataAt(ticker string, t time.Time) (types.Bar, error)
	// GetPriceAt returns the close price for ticker at exactly t.
	GetPriceAt(ticker string, t time.Time) (decimal.Decimal, error)
	// GetRange returns the bars for ticker in [start,end], time-ordered.
	GetRange(ticker string, start, end time.Time) ([]types.Bar, error)
	// Count returns the number of bars in [start,end].
	Count(start, end optional.Option[time.Time]) (int, error)
	// Close releases any resources held by the source.
	Close() error
}
