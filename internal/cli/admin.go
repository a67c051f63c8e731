package cli

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/aussiebroadwan/busfare/pkg/faresdk"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// listing is one administrable resource: the page that guards it and how
// to render it.
type listing struct {
	page  string
	fetch func(ctx context.Context, c *faresdk.Client) (table.Writer, int, error)
}

var listings = map[string]listing{
	"onibus": {"/gerenciar-onibus", func(ctx context.Context, c *faresdk.Client) (table.Writer, int, error) {
		items, err := c.Buses().List(ctx)
		tw := newTable("ID", "Plate", "Model", "Capacity", "Active")
		for _, b := range items {
			tw.AppendRow([]any{b.ID, b.Plate, b.Model, b.Capacity, yesNo(b.Active)})
		}
		return tw, len(items), err
	}},
	"rotas": {"/gerenciar-rotas", func(ctx context.Context, c *faresdk.Client) (table.Writer, int, error) {
		items, err := c.Routes().List(ctx)
		tw := newTable("ID", "Name", "Origin", "Destination", "Fare")
		for _, r := range items {
			tw.AppendRow([]any{r.ID, r.Name, r.Origin, r.Destination, reais(r.Fare)})
		}
		return tw, len(items), err
	}},
	"motoristas": {"/gerenciar-motoristas", func(ctx context.Context, c *faresdk.Client) (table.Writer, int, error) {
		items, err := c.Drivers().List(ctx)
		tw := newTable("ID", "Name", "CPF", "License")
		for _, d := range items {
			tw.AppendRow([]any{d.ID, d.Name, d.CPF, d.License})
		}
		return tw, len(items), err
	}},
	"cobradores": {"/gerenciar-cobradores", func(ctx context.Context, c *faresdk.Client) (table.Writer, int, error) {
		items, err := c.Conductors().List(ctx)
		tw := newTable("ID", "Name", "CPF")
		for _, d := range items {
			tw.AppendRow([]any{d.ID, d.Name, d.CPF})
		}
		return tw, len(items), err
	}},
	"usuarios": {"/gerenciar-usuarios", func(ctx context.Context, c *faresdk.Client) (table.Writer, int, error) {
		items, err := c.Users().List(ctx)
		tw := newTable("ID", "Name", "CPF", "Email", "Role")
		for _, u := range items {
			tw.AppendRow([]any{u.ID, u.Name, u.CPF, u.Email, u.Role})
		}
		return tw, len(items), err
	}},
	"carteirinhas": {"/carteirinha-idoso", func(ctx context.Context, c *faresdk.Client) (table.Writer, int, error) {
		items, err := c.ElderlyCards().List(ctx)
		tw := newTable("ID", "Number", "Name", "CPF", "Issued", "Valid until")
		for _, e := range items {
			tw.AppendRow([]any{e.ID, e.Number, e.Name, e.CPF, e.IssuedAt, e.ValidUntil})
		}
		return tw, len(items), err
	}},
}

var listingAliases = map[string]string{
	"buses":         "onibus",
	"routes":        "rotas",
	"drivers":       "motoristas",
	"conductors":    "cobradores",
	"users":         "usuarios",
	"elderly-cards": "carteirinhas",
}

func listingNames() []string {
	names := make([]string, 0, len(listings))
	for n := range listings {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func newListCmd(c *CLI) *cobra.Command {
	return &cobra.Command{
		Use:       "list <resource>",
		Short:     "List an administrable resource",
		Long:      "List one of: " + strings.Join(listingNames(), ", ") + ".",
		Args:      cobra.ExactArgs(1),
		ValidArgs: listingNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.ToLower(args[0])
			if alias, ok := listingAliases[name]; ok {
				name = alias
			}
			l, ok := listings[name]
			if !ok {
				return fmt.Errorf("unknown resource %q: use one of %s", args[0], strings.Join(listingNames(), ", "))
			}

			ctx := cmd.Context()
			a, err := c.page(ctx, l.page)
			if err != nil {
				return err
			}

			tw, n, err := l.fetch(ctx, a.Client)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(c.out, "Nothing to show.")
				return nil
			}
			printTable(c.out, tw)
			return nil
		},
	}
}

func newElderlyCmd(c *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "elderly",
		Short: "Elderly free-fare cards",
	}

	var req faresdk.IssueElderlyCardRequest
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a free-fare card",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.page(ctx, "/carteirinha-idoso")
			if err != nil {
				return err
			}

			if _, err := time.Parse(time.DateOnly, req.BirthDate); err != nil {
				return fmt.Errorf("--birth must be YYYY-MM-DD: %w", err)
			}
			req.CPF = onlyDigits(req.CPF)

			card, err := a.Client.IssueElderlyCard(ctx, req)
			if err != nil {
				return err
			}

			tw := newTable("ID", "Number", "Name", "CPF", "Valid until")
			tw.AppendRow([]any{card.ID, card.Number, card.Name, card.CPF, card.ValidUntil})
			printTable(c.out, tw)
			return nil
		},
	}
	issue.Flags().StringVar(&req.Name, "name", "", "Full name")
	issue.Flags().StringVar(&req.CPF, "cpf", "", "CPF")
	issue.Flags().StringVar(&req.BirthDate, "birth", "", "Birth date, YYYY-MM-DD")
	_ = issue.MarkFlagRequired("name")
	_ = issue.MarkFlagRequired("cpf")
	_ = issue.MarkFlagRequired("birth")

	cmd.AddCommand(issue)
	return cmd
}

func newReportCmd(c *CLI) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the usage report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.page(ctx, "/relatorios")
			if err != nil {
				return err
			}

			start, err := parseDate("from", from)
			if err != nil {
				return err
			}
			end, err := parseDate("to", to)
			if err != nil {
				return err
			}
			if !start.IsZero() && !end.IsZero() && end.Before(start) {
				return fmt.Errorf("--to %s is before --from %s", to, from)
			}

			rows, err := a.Client.Report(ctx, start, end)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(c.out, "Nothing to show.")
				return nil
			}
			printTable(c.out, reportTable(rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "First day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "Last day, YYYY-MM-DD")
	return cmd
}

// reportTable renders rows whose columns are only known at runtime. Columns
// are the union of all row keys, sorted.
func reportTable(rows []faresdk.ReportRow) table.Writer {
	seen := make(map[string]struct{})
	for _, r := range rows {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	header := make(table.Row, len(cols))
	for i, k := range cols {
		header[i] = k
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	for _, r := range rows {
		row := make(table.Row, len(cols))
		for i, k := range cols {
			if v, ok := r[k]; ok && v != nil {
				row[i] = v
			} else {
				row[i] = ""
			}
		}
		tw.AppendRow(row)
	}
	return tw
}

func parseDate(flag, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be YYYY-MM-DD: %w", flag, err)
	}
	return t, nil
}
