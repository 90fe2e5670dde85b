package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/odyssey-ledger/internal/invoicing"
)

// NumberSource lists regular invoice numbers in ascending order.
type NumberSource interface {
	InvoiceNumbers(ctx context.Context) ([]int64, error)
}

// NumberingOptions defines the flags of the invoices check-numbering command.
type NumberingOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// NumberingCLI audits the invoice number sequence.
type NumberingCLI struct {
	source NumberSource
}

// NewNumberingCLI constructs the helper.
func NewNumberingCLI(source NumberSource) *NumberingCLI {
	return &NumberingCLI{source: source}
}

// CheckCommand prints the numbering report. It exits 10 when the sequence has holes or repeats.
func (c *NumberingCLI) CheckCommand(ctx context.Context, opts NumberingOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	numbers, err := c.source.InvoiceNumbers(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check-numbering: %v\n", err)
		return 1
	}
	report := invoicing.CheckNumbering(numbers)
	if opts.JSONOutput {
		out := struct {
			OK bool `json:"ok"`
			invoicing.NumberingReport
		}{OK: report.OK(), NumberingReport: report}
		if err := json.NewEncoder(opts.Stdout).Encode(out); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "check-numbering: encode json: %v\n", err)
			return 1
		}
	} else {
		renderNumberingHuman(opts.Stdout, report)
	}
	if !report.OK() {
		return 10
	}
	return 0
}

func renderNumberingHuman(out io.Writer, report invoicing.NumberingReport) {
	_, _ = fmt.Fprintf(out, "invoices: %d, last number: INV-%d\n", report.Count, report.Last)
	if report.OK() {
		_, _ = fmt.Fprintln(out, "sequence OK")
		return
	}
	for _, n := range report.Missing {
		_, _ = fmt.Fprintf(out, "missing   INV-%d\n", n)
	}
	for _, n := range report.Duplicates {
		_, _ = fmt.Fprintf(out, "duplicate INV-%d\n", n)
	}
}
