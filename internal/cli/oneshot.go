package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/nmathey/finahack/internal/infra/gateway/finary"
	"github.com/nmathey/finahack/internal/platform/holdings"
	"github.com/nmathey/finahack/internal/platform/session"
	"github.com/nmathey/finahack/internal/platform/sync"
)

// tokenFlag is shared by the commands that call Finary directly.
type tokenFlag struct {
	path string
}

func (t *tokenFlag) register(f *flag.FlagSet, app *App) {
	f.StringVar(&t.path, "token-file", app.Config.FinaryTokenFile,
		"file holding the Finary session token, or a copied 'Authorization: Bearer' header")
}

func (t *tokenFlag) provider() (finary.TokenProvider, error) {
	if t.path == "" {
		return nil, fmt.Errorf("no token file: set FINARY_TOKEN_FILE or pass -token-file")
	}
	return session.NewFileProvider(t.path), nil
}

// offline builds a sync service whose provider is never called.
func offline(ctx context.Context, app *App) (*sync.Service, error) {
	svc, _, err := app.syncService(ctx, app.client(session.NewBroker(app.Logger)))
	return svc, err
}

type syncCmd struct {
	app   *App
	token tokenFlag
}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "refresh holdings from Finary once" }
func (*syncCmd) Usage() string {
	return `finahack sync [-token-file <path>]

  Fetches the holdings, merges them into the asset cache and records a
  snapshot.
`
}

func (c *syncCmd) SetFlags(f *flag.FlagSet) { c.token.register(f, c.app) }

func (c *syncCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	defer c.app.Close()

	provider, err := c.token.provider()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	svc, _, err := c.app.syncService(ctx, c.app.client(provider))
	if err != nil {
		return failf("%v", err)
	}

	res, err := svc.Refresh(ctx)
	if err != nil {
		return failf("%s", userMessage(err))
	}
	fmt.Printf("%d assets cached, snapshot %s\n", res.Assets, res.SnapshotID)
	return subcommands.ExitSuccess
}

type exportCmd struct {
	app    *App
	output string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "write the cached assets as CSV" }
func (*exportCmd) Usage() string {
	return `finahack export [-o <file>]

  Writes the asset cache in the CSV interchange format, to stdout by default.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", "", "output file (default stdout)")
}

func (c *exportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	defer c.app.Close()

	svc, err := offline(ctx, c.app)
	if err != nil {
		return failf("%v", err)
	}
	cache, err := svc.Assets(ctx)
	if err != nil {
		return failf("%s", userMessage(err))
	}

	out := os.Stdout
	if c.output != "" {
		file, err := os.Create(c.output)
		if err != nil {
			return failf("%v", err)
		}
		defer file.Close()
		out = file
	}

	if err := holdings.WriteCSV(out, cache.Assets); err != nil {
		return failf("writing CSV: %v", err)
	}
	return subcommands.ExitSuccess
}

type importCmd struct {
	app *App
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "apply the annotations of an edited CSV export" }
func (*importCmd) Usage() string {
	return `finahack import <file.csv>

  Reads a CSV export and copies its non-empty myAssetType and virtual_envelop
  columns onto the cached assets with the same key.
`
}

func (c *importCmd) SetFlags(*flag.FlagSet) {}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: expected exactly one CSV file")
		return subcommands.ExitUsageError
	}
	defer c.app.Close()

	file, err := os.Open(f.Arg(0))
	if err != nil {
		return failf("%v", err)
	}
	defer file.Close()

	records, err := holdings.ReadCSV(file)
	if err != nil {
		return failf("reading %s: %v", f.Arg(0), err)
	}

	svc, err := offline(ctx, c.app)
	if err != nil {
		return failf("%v", err)
	}
	changed, err := svc.ImportAnnotations(ctx, records)
	if err != nil {
		return failf("%s", userMessage(err))
	}
	fmt.Printf("%d records read, %d cached assets updated\n", len(records), changed)
	return subcommands.ExitSuccess
}

type currencyCmd struct {
	app   *App
	token tokenFlag
}

func (*currencyCmd) Name() string     { return "currency" }
func (*currencyCmd) Synopsis() string { return "change the Finary display currency" }
func (*currencyCmd) Usage() string {
	return `finahack currency [-token-file <path>] <ISO code>

  Sets the display currency of the Finary account, for example EUR or USD,
  and checks that Finary applied it.
`
}

func (c *currencyCmd) SetFlags(f *flag.FlagSet) { c.token.register(f, c.app) }

func (c *currencyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 || len(strings.TrimSpace(f.Arg(0))) != 3 {
		fmt.Fprintln(os.Stderr, "Error: expected one 3-letter currency code")
		return subcommands.ExitUsageError
	}
	provider, err := c.token.provider()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	code := strings.ToUpper(strings.TrimSpace(f.Arg(0)))
	if err := c.app.client(provider).UpdateDisplayCurrency(ctx, code); err != nil {
		return failf("%s", userMessage(finary.ToAppError(err)))
	}
	fmt.Printf("display currency set to %s\n", code)
	return subcommands.ExitSuccess
}
