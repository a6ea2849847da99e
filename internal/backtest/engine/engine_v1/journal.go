package engine_v1

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/tradesim-lab/tradesim/internal/types"
	"github.com/tradesim-lab/tradesim/pkg/errors"
)

// Journal is the per-run order and trade ledger, backed by an in-process
// DuckDB so a finished run can be exported to Parquet in one statement.
// Monetary values are stored as their exact decimal strings.
type Journal struct {
	db *sql.DB
	sq squirrel.StatementBuilderType
}

func NewJournal() (*Journal, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to open journal database", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR,
			ticker VARCHAR,
			side VARCHAR,
			order_type VARCHAR,
			quantity VARCHAR,
			filled_quantity VARCHAR,
			filled_price VARCHAR,
			status VARCHAR,
			reason VARCHAR,
			created_at TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS trades (
			ticker VARCHAR,
			entry_date TIMESTAMP,
			exit_date TIMESTAMP,
			entry_price VARCHAR,
			exit_price VARCHAR,
			quantity VARCHAR,
			realized_pnl VARCHAR,
			commission VARCHAR,
			holding_days INTEGER,
			is_win BOOLEAN
		);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()

		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to create journal schema", err)
	}

	return &Journal{
		db: db,
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// RecordOrder appends an order in its final state.
func (j *Journal) RecordOrder(order types.Order) error {
	query, args, err := j.sq.
		Insert("orders").
		Columns("id", "ticker", "side", "order_type", "quantity", "filled_quantity",
			"filled_price", "status", "reason", "created_at").
		Values(order.ID, order.Ticker, string(order.Side), string(order.Type),
			order.Quantity.String(), order.FilledQuantity.String(),
			order.FilledPrice.String(), string(order.Status), order.Reason.Reason,
			order.CreatedAt).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build order insert", err)
	}

	if _, err := j.db.Exec(query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to record order", err)
	}

	return nil
}

// RecordTrade appends a closed-trade record.
func (j *Journal) RecordTrade(trade types.TradeRecord) error {
	query, args, err := j.sq.
		Insert("trades").
		Columns("ticker", "entry_date", "exit_date", "entry_price", "exit_price",
			"quantity", "realized_pnl", "commission", "holding_days", "is_win").
		Values(trade.Ticker, trade.EntryDate, trade.ExitDate,
			trade.EntryPrice.String(), trade.ExitPrice.String(),
			trade.Quantity.String(), trade.RealizedPnL.String(),
			trade.Commission.String(), trade.HoldingDays, trade.IsWin).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build trade insert", err)
	}

	if _, err := j.db.Exec(query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to record trade", err)
	}

	return nil
}

// CountOrders returns the number of journaled orders.
func (j *Journal) CountOrders() (int, error) {
	return j.count("orders")
}

// CountTrades returns the number of journaled trades.
func (j *Journal) CountTrades() (int, error) {
	return j.count("trades")
}

func (j *Journal) count(table string) (int, error) {
	query, args, err := j.sq.Select("COUNT(*)").From(table).ToSql()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build count", err)
	}

	var n int
	if err := j.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "journal count failed", err)
	}

	return n, nil
}

// Export writes orders.parquet and trades.parquet into folder.
func (j *Journal) Export(folder string) error {
	// squirrel has no COPY support; the paths come from our own config,
	// not user data.
	tradesPath := filepath.Join(folder, "trades.parquet")
	if _, err := j.db.Exec(fmt.Sprintf(`COPY trades TO '%s' (FORMAT PARQUET)`, tradesPath)); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to export trades", err)
	}

	ordersPath := filepath.Join(folder, "orders.parquet")
	if _, err := j.db.Exec(fmt.Sprintf(`COPY orders TO '%s' (FORMAT PARQUET)`, ordersPath)); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to export orders", err)
	}

	return nil
}

// Close releases the backing database.
func (j *Journal) Close() error {
	return j.db.Close()
}
