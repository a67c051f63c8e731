package cli

import (
	"fmt"
	"io"
	"math"

	"github.com/aussiebroadwan/busfare/internal/payment"
	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable(headers ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row(headers))
	return tw
}

func printTable(w io.Writer, tw table.Writer) {
	fmt.Fprintln(w, tw.Render())
}

// reais formats a backend decimal amount.
func reais(v float64) string {
	return payment.FormatCents(int64(math.Round(v * 100)))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
