package strategy

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// AveragePrice is the mean price per share paid on buys, 0 before any fill
func (s State) AveragePrice() float64 {
	if s.GrossBought == 0 {
		return 0
	}
	return float64(s.CashSpent) / float64(s.GrossBought)
}

// Render writes the state as a two column table
func (s State) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	rows := [][]string{
		{"Net position", strconv.FormatInt(s.Net, 10)},
		{"Reference price", strconv.FormatInt(s.ReferencePrice, 10)},
		{"Productive buys", strconv.Itoa(s.ProductiveBuys)},
		{"Zero-fill buys", strconv.Itoa(s.ZeroFillCycles)},
		{"Sell cycles", strconv.Itoa(s.SellCycles)},
		{"Gross bought", strconv.FormatInt(s.GrossBought, 10)},
		{"Gross sold", strconv.FormatInt(s.GrossSold, 10)},
		{"Cash spent", strconv.FormatInt(s.CashSpent, 10)},
		{"Cash received", strconv.FormatInt(s.CashReceived, 10)},
		{"Avg buy price", fmt.Sprintf("%.2f", s.AveragePrice())},
	}
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
}
