package exec

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/schrute_spreads/internal/broker"
	"github.com/eddiefleurent/schrute_spreads/internal/models"
	"github.com/eddiefleurent/schrute_spreads/internal/storage"
)

type mockBroker struct {
	rejectFirst int // reject this many orders before accepting
	failAll     bool
	placed      []broker.SpreadOrder
	nextID      int
}

var _ broker.Broker = (*mockBroker)(nil)

func (m *mockBroker) GetUnderlyingQuote(symbol string) (*broker.Quote, error) {
	return nil, errors.New("not used")
}

func (m *mockBroker) GetOptionChain(symbol string) (*broker.Chain, error) {
	return nil, errors.New("not used")
}

func (m *mockBroker) GetOptionQuote(symbol, expiration string, strike float64, right broker.Right) (*broker.OptionQuote, error) {
	return nil, errors.New("not used")
}

func (m *mockBroker) PlaceSpreadOrder(order broker.SpreadOrder) (*broker.OrderResponse, error) {
	m.placed = append(m.placed, order)
	if m.failAll || len(m.placed) <= m.rejectFirst {
		return nil, &broker.APIError{Status: 400, Body: "order rejected"}
	}
	m.nextID++
	resp := &broker.OrderResponse{}
	resp.Order.ID = 1000 + m.nextID
	resp.Order.Status = "ok"
	return resp, nil
}

func testTrade() *models.Trade {
	exp := time.Date(2024, 4, 19, 0, 0, 0, 0, time.UTC)
	return models.NewTrade("sess", "SPY", exp, 450, 445, 2, 0, "", time.Now())
}

func newTestController(b broker.Broker, store storage.Interface, cfg Config) (*Controller, *[]time.Duration) {
	var pauses []time.Duration
	c := NewController(b, store, cfg, zerolog.Nop()).
		WithSleep(func(d time.Duration) { pauses = append(pauses, d) })
	return c, &pauses
}

func TestOpenSpreadFirstAttemptAccepted(t *testing.T) {
	b := &mockBroker{}
	store := storage.NewMockStorage()
	c, pauses := newTestController(b, store, Config{EntryMaxSlippage: 0.05, AttemptPause: time.Second})

	tr := testTrade()
	p, err := c.OpenSpread(tr.ID, tr, 1.10)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.InDelta(t, 1.10, p.LimitPrice, 1e-9)
	assert.Equal(t, 2, p.Quantity)
	require.Len(t, b.placed, 1)
	assert.False(t, b.placed[0].Close)
	assert.Equal(t, "2024-04-19", b.placed[0].Expiration)
	assert.Empty(t, *pauses)

	orders, err := store.GetAllOrders()
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.ActionOpen, orders[0].Action)
	assert.Equal(t, models.OrderCredit, orders[0].Type)
	assert.Equal(t, p.OrderID, orders[0].BrokerOrderID)
}

func TestOpenSpreadWalksDownOneCentSteps(t *testing.T) {
	b := &mockBroker{rejectFirst: 3}
	store := storage.NewMockStorage()
	c, pauses := newTestController(b, store, Config{EntryMaxSlippage: 0.05, AttemptPause: time.Second})

	tr := testTrade()
	p, err := c.OpenSpread(tr.ID, tr, 1.10)
	require.NoError(t, err)
	require.NotNil(t, p)

	require.Len(t, b.placed, 4)
	assert.InDelta(t, 1.10, b.placed[0].LimitPrice, 1e-9)
	assert.InDelta(t, 1.09, b.placed[1].LimitPrice, 1e-9)
	assert.InDelta(t, 1.08, b.placed[2].LimitPrice, 1e-9)
	assert.InDelta(t, 1.07, b.placed[3].LimitPrice, 1e-9)
	assert.InDelta(t, 1.07, p.LimitPrice, 1e-9)
	assert.Len(t, *pauses, 3)
}

func TestOpenSpreadExhaustsAttempts(t *testing.T) {
	b := &mockBroker{failAll: true}
	store := storage.NewMockStorage()
	c, _ := newTestController(b, store, Config{EntryMaxSlippage: 0.50, AttemptPause: time.Second})

	tr := testTrade()
	p, err := c.OpenSpread(tr.ID, tr, 1.10)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Len(t, b.placed, 5)

	orders, err := store.GetAllOrders()
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestOpenSpreadSlippageBudgetAborts(t *testing.T) {
	b := &mockBroker{failAll: true}
	store := storage.NewMockStorage()
	// Budget of 2 cents: attempts at -0.00, -0.01, -0.02, then abort.
	c, _ := newTestController(b, store, Config{EntryMaxSlippage: 0.02, AttemptPause: time.Second})

	tr := testTrade()
	p, err := c.OpenSpread(tr.ID, tr, 1.10)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Len(t, b.placed, 3)
}

func TestOpenSpreadZeroLimitAborts(t *testing.T) {
	b := &mockBroker{failAll: true}
	store := storage.NewMockStorage()
	c, _ := newTestController(b, store, Config{EntryMaxSlippage: 0.50, AttemptPause: time.Second})

	tr := testTrade()
	// Walk hits zero on the second attempt.
	p, err := c.OpenSpread(tr.ID, tr, 0.01)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Len(t, b.placed, 1)
}

func TestOpenSpreadDisabledNoOp(t *testing.T) {
	b := &mockBroker{}
	store := storage.NewMockStorage()
	c, _ := newTestController(b, store, Config{TradingDisabled: true, EntryMaxSlippage: 0.05})

	tr := testTrade()
	p, err := c.OpenSpread(tr.ID, tr, 1.10)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Empty(t, b.placed)
}

func TestCloseSpreadDisabledNoOp(t *testing.T) {
	b := &mockBroker{}
	store := storage.NewMockStorage()
	c, _ := newTestController(b, store, Config{TradingDisabled: true, EntryMaxSlippage: 0.05})

	tr := testTrade()
	p, err := c.CloseSpread(tr, 0.25)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Empty(t, b.placed)

	orders, err := store.GetAllOrders()
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCloseSpreadSingleAttempt(t *testing.T) {
	b := &mockBroker{}
	store := storage.NewMockStorage()
	c, _ := newTestController(b, store, Config{EntryMaxSlippage: 0.05})

	tr := testTrade()
	p, err := c.CloseSpread(tr, 0.55)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Len(t, b.placed, 1)
	assert.True(t, b.placed[0].Close)
	assert.InDelta(t, 0.55, b.placed[0].LimitPrice, 1e-9)

	orders, err := store.GetAllOrders()
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.ActionClose, orders[0].Action)
	assert.Equal(t, models.OrderDebit, orders[0].Type)
}

func TestCloseSpreadNoRetryOnFailure(t *testing.T) {
	b := &mockBroker{failAll: true}
	store := storage.NewMockStorage()
	c, pauses := newTestController(b, store, Config{EntryMaxSlippage: 0.05, AttemptPause: time.Second})

	tr := testTrade()
	_, err := c.CloseSpread(tr, 0.55)
	require.Error(t, err)
	assert.Len(t, b.placed, 1)
	assert.Empty(t, *pauses)
}

func TestCloseSpreadRejectsNonPositiveDebit(t *testing.T) {
	b := &mockBroker{}
	store := storage.NewMockStorage()
	c, _ := newTestController(b, store, Config{})

	tr := testTrade()
	_, err := c.CloseSpread(tr, 0)
	require.Error(t, err)
	assert.Empty(t, b.placed)
}
