package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"cashflow/internal/aggregate"
	"cashflow/internal/core"
	"cashflow/internal/services"
)

var errUsage = errors.New("usage")

const kindAll = "all"

const usage = `usage: cashflow <command> [flags]

commands:
  add         record a transaction
  edit        change amount or category of a transaction
  list        show transactions grouped by month
  categories  show the category vocabulary
  months      show available years, or the months of one year
`

type app struct {
	ledger       *services.LedgerService
	agg          *aggregate.Aggregator
	loc          *time.Location
	amountFormat string
	out          io.Writer
	errOut       io.Writer
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.errOut, usage)
		return fmt.Errorf("%w: missing command", errUsage)
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "add":
		return a.add(ctx, rest)
	case "edit":
		return a.edit(ctx, rest)
	case "list":
		return a.list(ctx, rest)
	case "categories":
		return a.categories(ctx, rest)
	case "months":
		return a.months(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		fmt.Fprint(a.errOut, usage)
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	return nil
}

func parseAmount(s string) (float64, error) {
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	return core.Money{Cents: cents}.Float(), nil
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := a.newFlagSet("add")
	kind := fs.String("kind", string(core.KindExpense), "expense or income")
	amount := fs.String("amount", "", "amount, e.g. 12.50 or 12,50 (required)")
	category := fs.String("category", "", "optional category")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	k, err := core.ParseKind(*kind)
	if err != nil {
		return err
	}
	if *amount == "" {
		return fmt.Errorf("%w: -amount is required", errUsage)
	}
	value, err := parseAmount(*amount)
	if err != nil {
		return err
	}

	tx, err := a.ledger.Create(ctx, k, core.CreateRequest{Amount: value, Category: *category})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "added %s %s: %s %s (%s)\n",
		tx.Kind, tx.ID, a.formatAmount(tx.Amount), displayCategory(tx), tx.MonthBucket)
	return a.printSnapshot(ctx, k)
}

func (a *app) edit(ctx context.Context, args []string) error {
	fs := a.newFlagSet("edit")
	kind := fs.String("kind", string(core.KindExpense), "expense or income")
	id := fs.String("id", "", "transaction id (required)")
	amount := fs.String("amount", "", "new amount")
	category := fs.String("category", "", `new category; -category "" clears it`)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	k, err := core.ParseKind(*kind)
	if err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: -id is required", errUsage)
	}

	var req core.UpdateRequest
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["amount"] {
		value, err := parseAmount(*amount)
		if err != nil {
			return err
		}
		req.Amount = &value
	}
	if set["category"] {
		req.Category = category
	}

	tx, err := a.ledger.Update(ctx, k, *id, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "updated %s %s: %s %s (%s)\n",
		tx.Kind, tx.ID, a.formatAmount(tx.Amount), displayCategory(tx), tx.MonthBucket)
	return a.printSnapshot(ctx, k)
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := a.newFlagSet("list")
	kind := fs.String("kind", string(core.KindExpense), "expense, income or all")
	search := fs.String("search", "", "match category or amount")
	year := fs.Int("year", 0, "calendar year")
	month := fs.String("month", "", "month bucket YYYY-MM")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *month != "" {
		if _, _, err := core.ParseMonthBucket(*month); err != nil {
			return err
		}
	}

	txs, mode, err := a.load(ctx, *kind)
	if err != nil {
		return err
	}
	view := a.agg.Build(txs, aggregate.Filter{Search: *search, Year: *year, MonthBucket: *month}, mode)

	if view.Empty() {
		if view.Searched {
			fmt.Fprintln(a.out, "No matching transactions.")
		} else {
			fmt.Fprintln(a.out, "No transactions recorded yet.")
		}
		return nil
	}

	showKind := *kind == kindAll
	for i, group := range view.Groups {
		if i > 0 {
			fmt.Fprintln(a.out)
		}
		fmt.Fprintf(a.out, "%s  total %s\n", group.Label, a.formatAmount(group.Total))

		tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
		for _, tx := range group.Transactions {
			cols := []string{tx.Time(a.loc).Format("2006-01-02 15:04")}
			if showKind {
				cols = append(cols, tx.Kind.String())
			}
			cols = append(cols, displayCategory(tx), a.formatAmount(tx.Amount), tx.ID)
			fmt.Fprintln(tw, "  "+strings.Join(cols, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if view.Searched {
		fmt.Fprintf(a.out, "\nFiltered total: %s (%s)\n",
			a.formatAmount(view.Total), pluralize(view.Count, "transaction"))
	}
	return nil
}

func (a *app) categories(ctx context.Context, args []string) error {
	fs := a.newFlagSet("categories")
	kind := fs.String("kind", string(core.KindExpense), "expense or income")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	k, err := core.ParseKind(*kind)
	if err != nil {
		return err
	}
	cats, err := a.ledger.Categories(ctx, k)
	if err != nil {
		return err
	}
	for _, c := range cats {
		fmt.Fprintln(a.out, c)
	}
	return nil
}

func (a *app) months(ctx context.Context, args []string) error {
	fs := a.newFlagSet("months")
	kind := fs.String("kind", string(core.KindExpense), "expense, income or all")
	year := fs.Int("year", 0, "list the months of this year instead of the years")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	txs, _, err := a.load(ctx, *kind)
	if err != nil {
		return err
	}

	if *year == 0 {
		for _, y := range a.agg.AvailableYears(txs) {
			fmt.Fprintln(a.out, y)
		}
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, opt := range a.agg.AvailableMonthBucketsForYear(txs, *year) {
		fmt.Fprintf(tw, "%s\t%s\n", opt.Bucket, opt.Label)
	}
	return tw.Flush()
}

// load returns the transactions of kind, or of every kind for "all", with the
// sign convention suited to the selection.
func (a *app) load(ctx context.Context, kind string) ([]core.Transaction, aggregate.SignMode, error) {
	if kind == kindAll {
		txs, err := a.ledger.All(ctx)
		return txs, aggregate.Signed, err
	}
	k, err := core.ParseKind(kind)
	if err != nil {
		return nil, aggregate.Plain, err
	}
	txs, err := a.ledger.List(ctx, k)
	return txs, aggregate.Plain, err
}

// printSnapshot refetches the ledger of kind after a write and prints its
// size and vocabulary.
func (a *app) printSnapshot(ctx context.Context, kind core.Kind) error {
	snap, err := a.ledger.Snapshot(ctx, kind)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %s, categories: %s\n",
		kind, pluralize(len(snap.Transactions), "transaction"), strings.Join(snap.Categories, ", "))
	return nil
}

func (a *app) formatAmount(m core.Money) string {
	return humanize.FormatFloat(a.amountFormat, m.Float())
}

func displayCategory(tx core.Transaction) string {
	if !tx.HasCategory() {
		return "-"
	}
	return tx.Category
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%s %ss", humanize.Comma(int64(n)), noun)
}
