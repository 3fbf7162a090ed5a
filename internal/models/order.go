package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderAction distinguishes opening and closing submissions.
type OrderAction string

const (
	// ActionOpen is a sell-to-open spread submission.
	ActionOpen OrderAction = "open"
	// ActionClose is a buy-to-close spread submission.
	ActionClose OrderAction = "close"
)

// OrderType mirrors the broker's multileg order type.
type OrderType string

const (
	// OrderCredit collects premium (entry).
	OrderCredit OrderType = "credit"
	// OrderDebit pays premium (exit).
	OrderDebit OrderType = "debit"
)

// Order is an accepted broker submission tied to a trade.
type Order struct {
	ID            string      `json:"id"`
	TradeID       string      `json:"trade_id"`
	Action        OrderAction `json:"action"`
	Type          OrderType   `json:"type"`
	LimitPrice    float64     `json:"limit_price"`
	Status        string      `json:"status"`
	BrokerOrderID int         `json:"broker_order_id"`
	Raw           string      `json:"raw,omitempty"`
	Ts            time.Time   `json:"ts"`
}

// NewOrder creates an order record for an accepted submission.
func NewOrder(tradeID string, action OrderAction, orderType OrderType, limitPrice float64, status string, brokerOrderID int, raw string, ts time.Time) *Order {
	return &Order{
		ID:            uuid.NewString(),
		TradeID:       tradeID,
		Action:        action,
		Type:          orderType,
		LimitPrice:    limitPrice,
		Status:        status,
		BrokerOrderID: brokerOrderID,
		Raw:           raw,
		Ts:            ts,
	}
}

// Fill is an execution report against an order. The engine does not
// synthesize fills itself; the table exists for broker reconciliation
// and export parity.
type Fill struct {
	ID       string    `json:"id"`
	OrderID  string    `json:"order_id"`
	Price    float64   `json:"price"`
	Quantity int       `json:"quantity"`
	Ts       time.Time `json:"ts"`
}
