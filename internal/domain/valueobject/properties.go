package valueobject

// Property keys persisted on ledger records. The names are a stable schema
// shared with other tools reading the same books.
const (
	PropPurchasePrice      = "purchase_price"
	PropPurchasePriceHist  = "purchase_price_hist"
	PropPurchaseAmount     = "purchase_amount"
	PropPurchaseExcRate    = "purchase_exc_rate"
	PropFwdPurchasePrice   = "fwd_purchase_price"
	PropFwdPurchaseAmount  = "fwd_purchase_amount"
	PropFwdPurchaseExcRate = "fwd_purchase_exc_rate"
	PropSalePrice          = "sale_price"
	PropSalePriceHist      = "sale_price_hist"
	PropSaleAmount         = "sale_amount"
	PropSaleExcRate        = "sale_exc_rate"
	PropFwdSalePrice       = "fwd_sale_price"
	PropFwdSaleAmount      = "fwd_sale_amount"
	PropFwdSaleExcRate     = "fwd_sale_exc_rate"
	PropSaleDate           = "sale_date"
	PropGainAmount         = "gain_amount"
	PropGainAmountHist     = "gain_amount_hist"
	PropShortSale          = "short_sale"
	PropLiquidationLog     = "liquidation_log"
	PropPurchaseLog        = "purchase_log"
	PropFwdPurchaseLog     = "fwd_purchase_log"
	PropParentID           = "parent_id"
	PropOrder              = "order"
	PropTradeDate          = "trade_date"
	PropTradeExcRate       = "trade_exc_rate"
	PropTradeExcRateHist   = "trade_exc_rate_hist"
	PropOriginalQuantity   = "original_quantity"
	PropOriginalAmount     = "original_amount"
	PropExcAmount          = "exc_amount"
	PropExcCode            = "exc_code"
	PropPrice              = "price"
	PropOpenQuantity       = "open_quantity"

	// Book properties.
	PropExchangeCode    = "exchange_code"
	PropExcBase         = "exc_base"
	PropExcAggregate    = "exc_aggregate"
	PropStockHistorical = "stock_historical"
	PropStockFair       = "stock_fair"

	// Account and group properties.
	PropStockExcCode   = "stock_exc_code"
	PropExcAccount     = "exc_account"
	PropNeedsRebuild   = "needs_rebuild"
	PropRealizedDate   = "realized_date"
	PropLegacyRealized = "stock_realized_date"
)

// Posting descriptions.
const (
	TagStockGain    = "#stock_gain"
	TagStockLoss    = "#stock_loss"
	TagExchangeGain = "#exchange_gain"
	TagExchangeLoss = "#exchange_loss"
	TagMTM          = "#mtm"
	TagInterestMTM  = "#interest_mtm"
)

// HistTag appends the historical suffix to a gain/loss tag when hist is set.
func HistTag(tag string, hist bool) string {
	if hist {
		return tag + "_hist"
	}
	return tag
}
