package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"

	"github.com/nmathey/finahack/internal/platform/history"
	apperrors "github.com/nmathey/finahack/internal/shared/errors"
)

// printMarkdown renders md for the terminal, falling back to plain text.
func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		fmt.Print(md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Fprint(os.Stdout, out)
}

// MoversMarkdown formats a movers report as markdown tables.
func MoversMarkdown(report *history.Report, currency string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Top movers (%s)\n\n", strings.ReplaceAll(string(report.Range), "_", " "))
	fmt.Fprintf(&b, "From %s to %s\n\n",
		report.From.Format("2006-01-02 15:04"), report.To.Format("2006-01-02 15:04"))

	section(&b, "Assets", report.Assets, currency)
	section(&b, "Accounts", report.Accounts, currency)
	section(&b, "Categories", report.Categories, currency)
	return b.String()
}

func section(b *strings.Builder, title string, ranking history.Ranking, currency string) {
	fmt.Fprintf(b, "## %s\n\n", title)
	if len(ranking.Gainers) == 0 && len(ranking.Losers) == 0 {
		b.WriteString("No change.\n\n")
		return
	}

	b.WriteString("| | Name | Change |\n|---|---|---:|\n")
	for _, m := range ranking.Gainers {
		fmt.Fprintf(b, "| ▲ | %s | %s |\n", cell(m), SignedAmount(m.Change, currency))
	}
	for _, m := range ranking.Losers {
		fmt.Fprintf(b, "| ▼ | %s | %s |\n", cell(m), SignedAmount(m.Change, currency))
	}
	b.WriteString("\n")
}

func cell(m history.Mover) string {
	label := m.Label
	if label == "" {
		label = m.Key
	}
	return strings.ReplaceAll(label, "|", "\\|")
}

// Amount formats d in currency, rounded to the currency's minor unit.
// Unknown currencies are printed as a plain number followed by the code.
func Amount(d decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return d.StringFixed(2) + " " + currency
	}
	minor := d.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, currency).Display()
}

// SignedAmount is Amount with an explicit "+" on gains.
func SignedAmount(d decimal.Decimal, currency string) string {
	if d.IsPositive() {
		return "+" + Amount(d, currency)
	}
	return Amount(d, currency)
}

// userMessage is the message shown for err: the AppError message when there is one.
func userMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
