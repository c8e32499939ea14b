package grpc

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/bibbank/realizer/internal/application/usecase"
	"github.com/bibbank/realizer/internal/domain/model"
	"github.com/bibbank/realizer/internal/domain/port/porttest"
	"github.com/bibbank/realizer/internal/domain/valueobject"
	"github.com/bibbank/realizer/internal/infrastructure/lock"
	"github.com/bibbank/realizer/pkg/auth"
	"github.com/bibbank/realizer/pkg/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// handlerFixture holds a USD position with one purchase and one full sale.
type handlerFixture struct {
	ledger   *porttest.Ledger
	locker   *lock.LocalLocker
	handler  *RealizerHandler
	position model.Account
	buyID    string
	sellID   string
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	ledger := porttest.NewLedger()
	ledger.AddBook(model.Book{
		ID:           testutil.StockBookID,
		Name:         "Stocks",
		CollectionID: testutil.CollectionID,
		Properties:   map[string]string{valueobject.PropStockHistorical: "true"},
	})
	ledger.AddBook(model.Book{
		ID:             testutil.FinancialBookID,
		Name:           "Broker USD",
		CollectionID:   testutil.CollectionID,
		FractionDigits: 2,
		Properties: map[string]string{
			valueobject.PropExcCode: "USD",
			valueobject.PropExcBase: "true",
		},
	})
	ledger.AddGroup(model.Group{
		BookID:     testutil.StockBookID,
		Name:       "US Stocks",
		Properties: map[string]string{valueobject.PropStockExcCode: "USD"},
	})
	position := ledger.AddAccount(model.Account{BookID: testutil.StockBookID, Name: "ACME", Type: model.AccountAsset, Groups: []string{"US Stocks"}})
	buy := ledger.AddAccount(model.Account{BookID: testutil.StockBookID, Name: "Buy", Type: model.AccountIncoming})
	sell := ledger.AddAccount(model.Account{BookID: testutil.StockBookID, Name: "Sell", Type: model.AccountOutgoing})
	ref := func(a model.Account) model.AccountRef { return model.AccountRef{ID: a.ID, Name: a.Name, Type: a.Type} }

	purchase := ledger.AddTransaction(model.Transaction{
		BookID:     testutil.StockBookID,
		Date:       testutil.Date("2024-01-10"),
		Amount:     testutil.Dec("100"),
		Credit:     ref(buy),
		Debit:      ref(position),
		Posted:     true,
		Properties: map[string]string{valueobject.PropPurchasePrice: "10.00"},
	})
	sale := ledger.AddTransaction(model.Transaction{
		BookID:     testutil.StockBookID,
		Date:       testutil.Date("2024-03-15"),
		Amount:     testutil.Dec("100"),
		Credit:     ref(position),
		Debit:      ref(sell),
		Posted:     true,
		Properties: map[string]string{valueobject.PropSalePrice: "15.00"},
	})

	logger := discardLogger()
	locker := lock.NewLocalLocker()
	calculate := usecase.NewCalculateRealizedResults(ledger, porttest.NewPublisher(), valueobject.DefaultConventions(), logger)
	handler := NewRealizerHandler(
		calculate,
		usecase.NewCalculateBook(ledger, locker, calculate, logger),
		usecase.NewResetRealizedResults(ledger, calculate, logger),
		usecase.NewDeleteTradeResults(ledger, valueobject.DefaultConventions(), logger),
		usecase.NewFlagRebuild(ledger, logger),
		locker,
		logger,
	)
	return &handlerFixture{
		ledger:   ledger,
		locker:   locker,
		handler:  handler,
		position: position,
		buyID:    purchase.ID,
		sellID:   sale.ID,
	}
}

func (f *handlerFixture) calculate(t *testing.T) *CalculationMsg {
	t.Helper()
	resp, err := f.handler.CalculateRealizedResults(context.Background(), &CalculateRealizedResultsRequest{
		StockBookID: testutil.StockBookID,
		PositionID:  f.position.ID,
		ToDate:      "2024-12-31",
	})
	require.NoError(t, err)
	return resp.Calculation
}

func assertCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok, "not a status error: %v", err)
	assert.Equal(t, code, st.Code(), st.Message())
}

func TestRealizerHandler_CalculateRealizedResults(t *testing.T) {
	t.Run("posts the realized gain", func(t *testing.T) {
		f := newHandlerFixture(t)

		calc := f.calculate(t)

		assert.Equal(t, f.position.ID, calc.PositionID)
		assert.NotEmpty(t, calc.Result)
		assert.Equal(t, int32(1), calc.PostingsCreated)
		assert.Equal(t, int32(2), calc.TradesUpdated)
		testutil.AssertDecimal(t, "500", decimal.RequireFromString(calc.RealizedTotals["USD"]))
		assert.Len(t, f.ledger.Transactions(testutil.FinancialBookID), 1)
	})

	t.Run("missing ids", func(t *testing.T) {
		f := newHandlerFixture(t)

		_, err := f.handler.CalculateRealizedResults(context.Background(), &CalculateRealizedResultsRequest{StockBookID: testutil.StockBookID})
		assertCode(t, err, codes.InvalidArgument)

		_, err = f.handler.CalculateRealizedResults(context.Background(), &CalculateRealizedResultsRequest{PositionID: f.position.ID})
		assertCode(t, err, codes.InvalidArgument)
	})

	t.Run("bad date", func(t *testing.T) {
		f := newHandlerFixture(t)

		_, err := f.handler.CalculateRealizedResults(context.Background(), &CalculateRealizedResultsRequest{
			StockBookID: testutil.StockBookID,
			PositionID:  f.position.ID,
			ToDate:      "31/12/2024",
		})
		assertCode(t, err, codes.InvalidArgument)
	})

	t.Run("busy position", func(t *testing.T) {
		f := newHandlerFixture(t)
		release, err := f.locker.Acquire(context.Background(), usecase.LockKey(testutil.StockBookID, f.position.ID), usecase.DefaultLockTTL)
		require.NoError(t, err)
		defer func() { _ = release(context.Background()) }()

		_, err = f.handler.CalculateRealizedResults(context.Background(), &CalculateRealizedResultsRequest{
			StockBookID: testutil.StockBookID,
			PositionID:  f.position.ID,
		})
		assertCode(t, err, codes.Aborted)
		assert.Empty(t, f.ledger.Transactions(testutil.FinancialBookID))
	})

	t.Run("unknown position", func(t *testing.T) {
		f := newHandlerFixture(t)

		_, err := f.handler.CalculateRealizedResults(context.Background(), &CalculateRealizedResultsRequest{
			StockBookID: testutil.StockBookID,
			PositionID:  "nope",
		})
		assertCode(t, err, codes.NotFound)
	})

	t.Run("book outside the caller's claims", func(t *testing.T) {
		f := newHandlerFixture(t)
		ctx := auth.ContextWithClaims(context.Background(), &auth.Claims{
			Roles: []string{auth.RoleOperator},
			Books: []string{"other-book"},
		})

		_, err := f.handler.CalculateRealizedResults(ctx, &CalculateRealizedResultsRequest{
			StockBookID: testutil.StockBookID,
			PositionID:  f.position.ID,
		})
		assertCode(t, err, codes.PermissionDenied)
	})
}

func TestRealizerHandler_CalculateBook(t *testing.T) {
	t.Run("calculates open positions", func(t *testing.T) {
		f := newHandlerFixture(t)

		resp, err := f.handler.CalculateBook(context.Background(), &CalculateBookRequest{
			StockBookID: testutil.StockBookID,
			ToDate:      "2024-12-31",
		})

		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, f.position.ID, resp.Results[0].PositionID)
		assert.Empty(t, resp.Busy)
	})

	t.Run("requires a book", func(t *testing.T) {
		f := newHandlerFixture(t)

		_, err := f.handler.CalculateBook(context.Background(), &CalculateBookRequest{})
		assertCode(t, err, codes.InvalidArgument)
	})
}

func TestRealizerHandler_ResetRealizedResults(t *testing.T) {
	f := newHandlerFixture(t)
	f.calculate(t)

	resp, err := f.handler.ResetRealizedResults(context.Background(), &ResetRealizedResultsRequest{
		StockBookID: testutil.StockBookID,
		PositionID:  f.position.ID,
		ToDate:      "2024-12-31",
	})

	require.NoError(t, err)
	assert.Equal(t, int32(1), resp.PostingsDeleted)
	require.NotNil(t, resp.Calculation)
	assert.Equal(t, int32(1), resp.Calculation.PostingsCreated)
	assert.Len(t, f.ledger.Transactions(testutil.FinancialBookID), 1)
}

func TestRealizerHandler_DeleteTradeResults(t *testing.T) {
	t.Run("deletes the sale's postings", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.calculate(t)

		resp, err := f.handler.DeleteTradeResults(context.Background(), &DeleteTradeResultsRequest{
			StockBookID: testutil.StockBookID,
			PositionID:  f.position.ID,
			TradeID:     f.sellID,
		})

		require.NoError(t, err)
		assert.Equal(t, int32(1), resp.PostingsDeleted)
		assert.Empty(t, f.ledger.Transactions(testutil.FinancialBookID))
	})

	t.Run("requires a trade", func(t *testing.T) {
		f := newHandlerFixture(t)

		_, err := f.handler.DeleteTradeResults(context.Background(), &DeleteTradeResultsRequest{
			StockBookID: testutil.StockBookID,
			PositionID:  f.position.ID,
		})
		assertCode(t, err, codes.InvalidArgument)
	})
}

func TestRealizerHandler_FlagRebuild(t *testing.T) {
	t.Run("unrealized position is not flagged", func(t *testing.T) {
		f := newHandlerFixture(t)

		resp, err := f.handler.FlagRebuild(context.Background(), &FlagRebuildRequest{
			StockBookID: testutil.StockBookID,
			TradeID:     f.buyID,
		})

		require.NoError(t, err)
		assert.Equal(t, f.position.ID, resp.PositionID)
		assert.False(t, resp.Flagged)
	})

	t.Run("trade before the realized date flags the position", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.calculate(t)

		resp, err := f.handler.FlagRebuild(context.Background(), &FlagRebuildRequest{
			StockBookID: testutil.StockBookID,
			TradeID:     f.buyID,
		})

		require.NoError(t, err)
		assert.True(t, resp.Flagged)
	})

	t.Run("unknown trade", func(t *testing.T) {
		f := newHandlerFixture(t)

		_, err := f.handler.FlagRebuild(context.Background(), &FlagRebuildRequest{
			StockBookID: testutil.StockBookID,
			TradeID:     "missing",
		})
		assertCode(t, err, codes.NotFound)
	})
}

func TestServer_OverJSONCodec(t *testing.T) {
	f := newHandlerFixture(t)
	jwtSvc, err := auth.NewJWTService(auth.JWTConfig{Secret: "test-secret", Issuer: "bib-gateway"})
	require.NoError(t, err)

	srv := NewServer(ServerConfig{}, f.handler, discardLogger(), jwtSvc)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.ServeListener(lis) }()
	t.Cleanup(srv.GracefulStop)

	conn, err := grpclib.NewClient("passthrough:///bufnet",
		grpclib.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpclib.WithTransportCredentials(insecure.NewCredentials()),
		grpclib.WithDefaultCallOptions(grpclib.CallContentSubtype(CodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	withToken := func(roles ...string) context.Context {
		token, err := jwtSvc.GenerateToken("ops@bib", roles, nil)
		require.NoError(t, err)
		return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
	}
	req := &CalculateRealizedResultsRequest{StockBookID: testutil.StockBookID, PositionID: f.position.ID, ToDate: "2024-12-31"}

	t.Run("operator may calculate", func(t *testing.T) {
		var resp CalculateRealizedResultsResponse
		require.NoError(t, conn.Invoke(withToken(auth.RoleOperator), FullMethod("CalculateRealizedResults"), req, &resp))
		require.NotNil(t, resp.Calculation)
		assert.Equal(t, f.position.ID, resp.Calculation.PositionID)
	})

	t.Run("auditor is refused", func(t *testing.T) {
		var resp CalculateRealizedResultsResponse
		err := conn.Invoke(withToken(auth.RoleAuditor), FullMethod("CalculateRealizedResults"), req, &resp)
		assertCode(t, err, codes.PermissionDenied)
	})

	t.Run("missing token", func(t *testing.T) {
		var resp CalculateRealizedResultsResponse
		err := conn.Invoke(context.Background(), FullMethod("CalculateRealizedResults"), req, &resp)
		assertCode(t, err, codes.Unauthenticated)
	})
}
