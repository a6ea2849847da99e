package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/tradesim-lab/tradesim/pkg/errors"
)

type Side string

type OrderType string

type OrderStatus string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order types form a single tagged variant: the OrderType tag selects which
// of the optional price payloads is meaningful. Every switch over OrderType
// must handle all five tags.
const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStop       OrderType = "STOP"
	OrderTypeStopLimit  OrderType = "STOP_LIMIT"
	OrderTypeTakeProfit OrderType = "TAKE_PROFIT"
)

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

const (
	OrderReasonStrategy     string = "strategy"
	OrderReasonStopLoss     string = "stop_loss"
	OrderReasonTakeProfit   string = "take_profit"
	OrderReasonRiskRejected string = "risk_rejected"
	OrderReasonOutsideHours string = "outside_trading_hours"
	OrderReasonNotTriggered string = "trigger_not_met"
)

type Reason struct {
	Reason  string `yaml:"reason" json:"reason" csv:"reason"`
	Message string `yaml:"message" json:"message" csv:"message"`
}

// Order is a trade intent with a type-tagged trigger rule and fill progress.
// Quantity is always positive; Side carries the direction. Once the status
// reaches a terminal state the order is immutable.
type Order struct {
	ID       string    `yaml:"id" json:"id" csv:"id"`
	Ticker   string    `yaml:"ticker" json:"ticker" csv:"ticker" validate:"required"`
	Side     Side      `yaml:"side" json:"side" csv:"side" validate:"required,oneof=BUY SELL"`
	Type     OrderType `yaml:"type" json:"type" csv:"type" validate:"required,oneof=MARKET LIMIT STOP STOP_LIMIT TAKE_PROFIT"`
	Quantity decimal.Decimal `yaml:"quantity" json:"quantity" csv:"quantity"`
	// LimitPrice is the trigger level for LIMIT and TAKE_PROFIT orders, and
	// the limit leg of STOP_LIMIT orders.
	LimitPrice optional.Option[decimal.Decimal] `yaml:"limit_price" json:"limit_price" csv:"limit_price"`
	// StopPrice is the trigger level for STOP and STOP_LIMIT orders.
	StopPrice optional.Option[decimal.Decimal] `yaml:"stop_price" json:"stop_price" csv:"stop_price"`
	Status    OrderStatus                      `yaml:"status" json:"status" csv:"status"`
	// FilledQuantity and FilledPrice track fill progress across partial fills.
	// FilledPrice is the volume-weighted average of the fills so far.
	FilledQuantity decimal.Decimal `yaml:"filled_quantity" json:"filled_quantity" csv:"filled_quantity"`
	FilledPrice    decimal.Decimal `yaml:"filled_price" json:"filled_price" csv:"filled_price"`
	Reason         Reason          `yaml:"reason" json:"reason" csv:"reason"`
	CreatedAt      time.Time       `yaml:"created_at" json:"created_at" csv:"created_at"`
}

// Validate checks the order's structural invariants and that the price
// payload matches the order type tag.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	if !o.Quantity.IsPositive() {
		return errors.Newf(errors.ErrCodeInvalidQuantity, "order quantity must be positive, got %s", o.Quantity)
	}

	switch o.Type {
	case OrderTypeMarket:
		// no payload
	case OrderTypeLimit, OrderTypeTakeProfit:
		if err := requirePositivePrice(o.LimitPrice, "limit_price", o.Type); err != nil {
			return err
		}
	case OrderTypeStop:
		if err := requirePositivePrice(o.StopPrice, "stop_price", o.Type); err != nil {
			return err
		}
	case OrderTypeStopLimit:
		if err := requirePositivePrice(o.StopPrice, "stop_price", o.Type); err != nil {
			return err
		}

		if err := requirePositivePrice(o.LimitPrice, "limit_price", o.Type); err != nil {
			return err
		}
	default:
		return errors.Newf(errors.ErrCodeInvalidOrder, "unknown order type %q", o.Type)
	}

	return nil
}

func requirePositivePrice(price optional.Option[decimal.Decimal], field string, orderType OrderType) error {
	if price.IsNone() {
		return errors.Newf(errors.ErrCodeInvalidPrice, "%s order requires %s", orderType, field)
	}

	if !price.Unwrap().IsPositive() {
		return errors.Newf(errors.ErrCodeInvalidPrice, "%s must be positive, got %s", field, price.Unwrap())
	}

	return nil
}

// IsTerminal reports whether the order has reached an immutable state.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// RemainingQuantity returns how much of the order is still unfilled.
func (o *Order) RemainingQuantity() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// TransitionTo advances the order status. Transitions are one-directional:
// PENDING -> {PARTIALLY_FILLED, FILLED, CANCELLED, REJECTED} and
// PARTIALLY_FILLED -> {FILLED, CANCELLED}. Terminal states admit nothing.
func (o *Order) TransitionTo(next OrderStatus) error {
	if o.IsTerminal() {
		return errors.Newf(errors.ErrCodeOrderImmutable, "order %s is %s and cannot transition to %s", o.ID, o.Status, next)
	}

	allowed := map[OrderStatus][]OrderStatus{
		OrderStatusPending:         {OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected},
		OrderStatusPartiallyFilled: {OrderStatusFilled, OrderStatusCancelled},
	}

	for _, s := range allowed[o.Status] {
		if s == next {
			o.Status = next

			return nil
		}
	}

	return errors.Newf(errors.ErrCodeInvalidTransition, "cannot transition order %s from %s to %s", o.ID, o.Status, next)
}

// TriggeredAt evaluates the order's trigger rule against a reference price.
// Market orders always fire. Limit orders fire when the price is at or better
// than the limit (buy: px<=limit, sell: px>=limit). Stop orders fire when the
// price crosses the adverse/breakout level (buy: px>=stop, sell: px<=stop).
// Stop-limit orders require the stop leg to fire and the price to still be
// within the limit. Take-profit orders mirror limit semantics.
func (o *Order) TriggeredAt(price decimal.Decimal) (bool, error) {
	switch o.Type {
	case OrderTypeMarket:
		return true, nil
	case OrderTypeLimit, OrderTypeTakeProfit:
		limit := o.LimitPrice.Unwrap()
		if o.Side == SideBuy {
			return price.LessThanOrEqual(limit), nil
		}

		return price.GreaterThanOrEqual(limit), nil
	case OrderTypeStop:
		stop := o.StopPrice.Unwrap()
		if o.Side == SideBuy {
			return price.GreaterThanOrEqual(stop), nil
		}

		return price.LessThanOrEqual(stop), nil
	case OrderTypeStopLimit:
		stop := o.StopPrice.Unwrap()
		limit := o.LimitPrice.Unwrap()

		if o.Side == SideBuy {
			return price.GreaterThanOrEqual(stop) && price.LessThanOrEqual(limit), nil
		}

		return price.LessThanOrEqual(stop) && price.GreaterThanOrEqual(limit), nil
	default:
		return false, errors.Newf(errors.ErrCodeInvalidOrder, "unknown order type %q", o.Type)
	}
}
