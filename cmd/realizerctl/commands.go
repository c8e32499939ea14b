package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	realizergrpc "github.com/bibbank/realizer/internal/presentation/grpc"
)

var rpcCommands = []subcommands.Command{
	&calculateCmd{},
	&calculateBookCmd{},
	&resetCmd{},
	&deleteResultsCmd{},
	&flagRebuildCmd{},
}

func missing(names ...string) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "missing required flag(s): %v\n", names)
	return subcommands.ExitUsageError
}

type calculateCmd struct {
	book, position, date string
	autoMtM              bool
}

func (*calculateCmd) Name() string     { return "calculate" }
func (*calculateCmd) Synopsis() string { return "calculate realized results of one position" }
func (*calculateCmd) Usage() string {
	return `realizerctl calculate -book <stock_book_id> -position <position_id> [-date YYYY-MM-DD] [-mtm]

  Matches the position's open sales against its purchases in FIFO order and
  posts the realized results to the linked financial books.
`
}

func (c *calculateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.book, "book", "", "stock book ID")
	f.StringVar(&c.position, "position", "", "position account ID")
	f.StringVar(&c.date, "date", "", "consider trades up to this day (default today)")
	f.BoolVar(&c.autoMtM, "mtm", false, "post mark-to-market valuations")
}

func (c *calculateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.book == "" || c.position == "" {
		return missing("-book", "-position")
	}
	return conn.invoke(ctx, os.Stdout, "CalculateRealizedResults", &realizergrpc.CalculateRealizedResultsRequest{
		StockBookID: c.book,
		PositionID:  c.position,
		AutoMtM:     c.autoMtM,
		ToDate:      c.date,
	}, &realizergrpc.CalculateRealizedResultsResponse{})
}

type calculateBookCmd struct {
	book, date string
	autoMtM    bool
}

func (*calculateBookCmd) Name() string     { return "calculate-book" }
func (*calculateBookCmd) Synopsis() string { return "calculate every position of a stock book" }
func (*calculateBookCmd) Usage() string {
	return `realizerctl calculate-book -book <stock_book_id> [-date YYYY-MM-DD] [-mtm]

  Runs calculate for every position with unchecked trades. Positions held by
  another run are listed as busy.
`
}

func (c *calculateBookCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.book, "book", "", "stock book ID")
	f.StringVar(&c.date, "date", "", "consider trades up to this day (default today)")
	f.BoolVar(&c.autoMtM, "mtm", false, "post mark-to-market valuations")
}

func (c *calculateBookCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.book == "" {
		return missing("-book")
	}
	return conn.invoke(ctx, os.Stdout, "CalculateBook", &realizergrpc.CalculateBookRequest{
		StockBookID: c.book,
		AutoMtM:     c.autoMtM,
		ToDate:      c.date,
	}, &realizergrpc.CalculateBookResponse{})
}

type resetCmd struct {
	book, position, date string
	autoMtM              bool
}

func (*resetCmd) Name() string     { return "reset" }
func (*resetCmd) Synopsis() string { return "delete and recalculate the realized results of a position" }
func (*resetCmd) Usage() string {
	return `realizerctl reset -book <stock_book_id> -position <position_id> [-date YYYY-MM-DD] [-mtm]

  Deletes every generated posting, merges split trades back into their
  originals and calculates the position from scratch.
`
}

func (c *resetCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.book, "book", "", "stock book ID")
	f.StringVar(&c.position, "position", "", "position account ID")
	f.StringVar(&c.date, "date", "", "consider trades up to this day (default today)")
	f.BoolVar(&c.autoMtM, "mtm", false, "post mark-to-market valuations")
}

func (c *resetCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.book == "" || c.position == "" {
		return missing("-book", "-position")
	}
	return conn.invoke(ctx, os.Stdout, "ResetRealizedResults", &realizergrpc.ResetRealizedResultsRequest{
		StockBookID: c.book,
		PositionID:  c.position,
		AutoMtM:     c.autoMtM,
		ToDate:      c.date,
	}, &realizergrpc.ResetRealizedResultsResponse{})
}

type deleteResultsCmd struct {
	book, position, trade string
}

func (*deleteResultsCmd) Name() string     { return "delete-results" }
func (*deleteResultsCmd) Synopsis() string { return "delete the postings generated from one trade" }
func (*deleteResultsCmd) Usage() string {
	return `realizerctl delete-results -book <stock_book_id> -position <position_id> -trade <trade_id>
`
}

func (c *deleteResultsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.book, "book", "", "stock book ID")
	f.StringVar(&c.position, "position", "", "position account ID")
	f.StringVar(&c.trade, "trade", "", "stock trade ID")
}

func (c *deleteResultsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.book == "" || c.position == "" || c.trade == "" {
		return missing("-book", "-position", "-trade")
	}
	return conn.invoke(ctx, os.Stdout, "DeleteTradeResults", &realizergrpc.DeleteTradeResultsRequest{
		StockBookID: c.book,
		PositionID:  c.position,
		TradeID:     c.trade,
	}, &realizergrpc.DeleteTradeResultsResponse{})
}

type flagRebuildCmd struct {
	book, trade string
}

func (*flagRebuildCmd) Name() string     { return "flag-rebuild" }
func (*flagRebuildCmd) Synopsis() string { return "flag a position after a backdated trade" }
func (*flagRebuildCmd) Usage() string {
	return `realizerctl flag-rebuild -book <stock_book_id> -trade <trade_id>

  Marks the trade's position for rebuild when the trade is dated on or before
  the day the position was last realized.
`
}

func (c *flagRebuildCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.book, "book", "", "stock book ID")
	f.StringVar(&c.trade, "trade", "", "stock trade ID")
}

func (c *flagRebuildCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.book == "" || c.trade == "" {
		return missing("-book", "-trade")
	}
	return conn.invoke(ctx, os.Stdout, "FlagRebuild", &realizergrpc.FlagRebuildRequest{
		StockBookID: c.book,
		TradeID:     c.trade,
	}, &realizergrpc.FlagRebuildResponse{})
}
