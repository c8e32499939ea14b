package usecase_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bibbank/realizer/internal/application/dto"
	"github.com/bibbank/realizer/internal/application/usecase"
	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/port/porttest"
	"github.com/bibbank/realizer/internal/domain/valueobject"
	"github.com/bibbank/realizer/pkg/testutil"
)

const toDate = "2024-12-31"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture is a stock book holding one USD position whose financial book is
// also the collection's base book.
type fixture struct {
	ledger    *porttest.Ledger
	publisher *porttest.Publisher
	stock     model.Book
	financial model.Book
	position  model.Account
	buy       model.Account
	sell      model.Account
}

type fixtureOption func(*fixture)

func withStockProps(props map[string]string) fixtureOption {
	return func(f *fixture) { f.stock.Properties = props }
}

func withPositionProps(props map[string]string) fixtureOption {
	return func(f *fixture) { f.position.Properties = props }
}

func withExchangeCode(code string) fixtureOption {
	return func(f *fixture) { f.financial.Properties[valueobject.PropExcCode] = code }
}

func withLockDate(day string) fixtureOption {
	return func(f *fixture) {
		d := testutil.Date(day)
		f.stock.LockDate = &d
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	f := &fixture{
		ledger:    porttest.NewLedger(),
		publisher: porttest.NewPublisher(),
		stock: model.Book{
			ID:           testutil.StockBookID,
			Name:         "Stocks",
			CollectionID: testutil.CollectionID,
			Properties:   map[string]string{valueobject.PropStockHistorical: "true"},
		},
		financial: model.Book{
			ID:             testutil.FinancialBookID,
			Name:           "Broker USD",
			CollectionID:   testutil.CollectionID,
			FractionDigits: 2,
			Properties: map[string]string{
				valueobject.PropExcCode: "USD",
				valueobject.PropExcBase: "true",
			},
		},
		position: model.Account{BookID: testutil.StockBookID, Name: "ACME", Type: model.AccountAsset, Groups: []string{"US Stocks"}},
	}
	for _, opt := range opts {
		opt(f)
	}

	f.ledger.AddBook(f.stock)
	f.ledger.AddBook(f.financial)
	f.ledger.AddGroup(model.Group{
		BookID:     testutil.StockBookID,
		Name:       "US Stocks",
		Properties: map[string]string{valueobject.PropStockExcCode: "USD"},
	})
	f.position = f.ledger.AddAccount(f.position)
	f.buy = f.ledger.AddAccount(model.Account{BookID: testutil.StockBookID, Name: "Buy", Type: model.AccountIncoming})
	f.sell = f.ledger.AddAccount(model.Account{BookID: testutil.StockBookID, Name: "Sell", Type: model.AccountOutgoing})
	return f
}

func refOf(acc model.Account) model.AccountRef {
	return model.AccountRef{ID: acc.ID, Name: acc.Name, Type: acc.Type}
}

func (f *fixture) purchase(day, quantity string, props map[string]string) model.Transaction {
	return f.ledger.AddTransaction(model.Transaction{
		BookID:     testutil.StockBookID,
		Date:       testutil.Date(day),
		Amount:     testutil.Dec(quantity),
		Credit:     refOf(f.buy),
		Debit:      refOf(f.position),
		Posted:     true,
		Properties: props,
	})
}

func (f *fixture) sale(day, quantity string, props map[string]string) model.Transaction {
	return f.ledger.AddTransaction(model.Transaction{
		BookID:     testutil.StockBookID,
		Date:       testutil.Date(day),
		Amount:     testutil.Dec(quantity),
		Credit:     refOf(f.position),
		Debit:      refOf(f.sell),
		Posted:     true,
		Properties: props,
	})
}

func (f *fixture) calculateUseCase() *usecase.CalculateRealizedResults {
	return usecase.NewCalculateRealizedResults(f.ledger, f.publisher, valueobject.DefaultConventions(), discardLogger())
}

func (f *fixture) calculate(t *testing.T, autoMtM bool) dto.CalculateRealizedResultsResponse {
	t.Helper()
	resp, err := f.calculateUseCase().Execute(context.Background(), dto.CalculateRealizedResultsRequest{
		StockBookID: testutil.StockBookID,
		PositionID:  f.position.ID,
		AutoMtM:     autoMtM,
		ToDate:      testutil.Date(toDate),
	})
	require.NoError(t, err)
	return resp
}

func (f *fixture) trade(t *testing.T, id string) model.Trade {
	t.Helper()
	tx, ok := f.ledger.Transaction(testutil.StockBookID, id)
	require.True(t, ok, "trade %s not found", id)
	trade, err := model.TradeFromTransaction(tx)
	require.NoError(t, err)
	return trade
}

// children returns the stock records split off parentID.
func (f *fixture) children(t *testing.T, parentID string) []model.Trade {
	t.Helper()
	var out []model.Trade
	for _, tx := range f.ledger.Transactions(testutil.StockBookID) {
		if tx.Properties[valueobject.PropParentID] == parentID {
			trade, err := model.TradeFromTransaction(tx)
			require.NoError(t, err)
			out = append(out, trade)
		}
	}
	return out
}

func (f *fixture) posting(t *testing.T, remoteID string) model.Transaction {
	t.Helper()
	tx, ok := f.ledger.ByRemoteID(testutil.FinancialBookID, remoteID)
	require.True(t, ok, "posting %q not found", remoteID)
	return tx
}

func (f *fixture) positionAccount(t *testing.T) model.Account {
	t.Helper()
	acc, err := f.ledger.GetAccountByID(context.Background(), testutil.StockBookID, f.position.ID)
	require.NoError(t, err)
	return acc
}

func price(key, value string) map[string]string {
	return map[string]string{key: value}
}

type mockLocker struct {
	acquireFunc func(ctx context.Context, key string) (func(context.Context) error, error)
	released    []string
}

func (m *mockLocker) Acquire(ctx context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	if m.acquireFunc != nil {
		return m.acquireFunc(ctx, key)
	}
	return func(context.Context) error {
		m.released = append(m.released, key)
		return nil
	}, nil
}
