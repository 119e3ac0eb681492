package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/nmathey/finahack/internal/platform/history"
)

type moversCmd struct {
	app      *App
	rng      string
	currency string
	raw      bool
}

func (*moversCmd) Name() string     { return "movers" }
func (*moversCmd) Synopsis() string { return "show the top gainers and losers" }
func (*moversCmd) Usage() string {
	return `finahack movers [-range last_sync|week|month|year] [-currency EUR] [-raw]

  Compares the latest snapshot with an older one and lists the five largest
  gains and losses per asset, account and category.
`
}

func (c *moversCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.rng, "range", string(history.RangeLastSync), "comparison range: "+rangeList())
	f.StringVar(&c.currency, "currency", "EUR", "currency used to format amounts")
	f.BoolVar(&c.raw, "raw", false, "print markdown without terminal styling")
}

func (c *moversCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	rng, err := history.ParseRange(c.rng)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	defer c.app.Close()

	svc, err := offline(ctx, c.app)
	if err != nil {
		return failf("%v", err)
	}
	report, err := svc.Movers(ctx, rng)
	if err != nil {
		return failf("%s", userMessage(err))
	}

	md := MoversMarkdown(report, strings.ToUpper(c.currency))
	if c.raw {
		fmt.Print(md)
		return subcommands.ExitSuccess
	}
	printMarkdown(md)
	return subcommands.ExitSuccess
}

func rangeList() string {
	names := make([]string, len(history.Ranges))
	for i, r := range history.Ranges {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
