package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/orderdesk/internal/api"
	"github.com/tonimelisma/orderdesk/internal/artifact"
	"github.com/tonimelisma/orderdesk/internal/records"
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List orders",
		Args:  cobra.NoArgs,
		RunE:  runLs,
	}

	cmd.Flags().Bool("offline", false, "show the last fetched list without contacting the service")

	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one order",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
}

// editFlags maps edit flags onto the patch fields they set.
var editFlags = []struct {
	name  string
	usage string
	field func(*api.OrderPatch) **string
}{
	{"name", "customer name", func(p *api.OrderPatch) **string { return &p.Name }},
	{"date", "service date", func(p *api.OrderPatch) **string { return &p.Date }},
	{"from", "departure address", func(p *api.OrderPatch) **string { return &p.Departure }},
	{"to", "destination address", func(p *api.OrderPatch) **string { return &p.Destination }},
	{"outbound", "outbound time", func(p *api.OrderPatch) **string { return &p.OutboundTime }},
	{"return", "return time", func(p *api.OrderPatch) **string { return &p.ReturnTime }},
	{"duration", "duration", func(p *api.OrderPatch) **string { return &p.Duration }},
	{"capacity", "vehicle capacity", func(p *api.OrderPatch) **string { return &p.Capacity }},
	{"payment-date", "payment date", func(p *api.OrderPatch) **string { return &p.PaymentDate }},
}

func newEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of an order",
		Long:  "Change fields of an order. Only the flags given are sent; amounts are computed by the service.",
		Args:  cobra.ExactArgs(1),
		RunE:  runEdit,
	}

	for _, f := range editFlags {
		cmd.Flags().String(f.name, "", f.usage)
	}

	return cmd
}

func newDiscountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discount <id>",
		Short: "Toggle the discount on an order",
		Args:  cobra.ExactArgs(1),
		RunE:  runDiscount,
	}
}

func newPayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pay <id> <amount>",
		Short: "Record a payment against an order",
		Args:  cobra.ExactArgs(2), //nolint:mnd // id and amount
		RunE:  runPay,
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an order",
		Args:  cobra.ExactArgs(1),
		RunE:  runRm,
	}
}

func newPDFCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdf <id>",
		Short: "Generate the PDF for an order",
		Args:  cobra.ExactArgs(1),
		RunE:  runPDF,
	}

	cmd.Flags().StringP("out", "o", "", "where to save the PDF (default: order_<id>.pdf)")

	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [dir]",
		Short: "Generate PDFs for every order",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExport,
	}

	cmd.Flags().Int("workers", 0, "concurrent renders (default from config)")

	return cmd
}

// parseID parses an order id argument.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, api.Validation("invalid order id %q", s)
	}

	return id, nil
}

// withRecords runs fn with a Sync bound to the current session.
func withRecords(ctx context.Context, cc *CLIContext, fn func(*records.Sync) error) error {
	s := cc.newSession()

	recs, closeRecs := cc.openRecords(ctx, s.client)
	defer closeRecs()

	return fn(recs)
}

// fetchOne fetches the list and returns the order with id.
func fetchOne(ctx context.Context, recs *records.Sync, id int64) (api.Order, error) {
	if _, err := recs.Fetch(ctx); err != nil {
		return api.Order{}, err
	}

	o, ok := recs.Get(id)
	if !ok {
		return api.Order{}, api.Validation("order %d not found", id)
	}

	return o, nil
}

func runLs(cmd *cobra.Command, _ []string) error {
	cc := cliContextFrom(cmd.Context())
	ctx := cmd.Context()
	offline, _ := cmd.Flags().GetBool("offline")

	return withRecords(ctx, cc, func(recs *records.Sync) error {
		var (
			orders []api.Order
			err    error
		)

		if offline {
			orders, err = recs.LoadCached(ctx)
		} else {
			orders, err = recs.Fetch(ctx)
		}

		if err != nil {
			return err
		}

		if cc.Flags.JSON {
			return printJSON(cc.Stdout, orders)
		}

		if len(orders) == 0 {
			cc.Statusf("No orders.\n")
			return nil
		}

		printOrders(cc, orders)

		return nil
	})
}

// printOrders writes the order table.
func printOrders(cc *CLIContext, orders []api.Order) {
	rows := make([][]string, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, []string{
			strconv.FormatInt(o.ID, 10),
			o.DisplayName(),
			deref(o.Date),
			deref(o.Destination),
			formatMoney(o.Total),
			formatMoney(o.Paid),
			formatMoney(o.Balance),
			formatTime(o.CreatedAt.Time),
		})
	}

	printTable(cc.Stdout, []string{
		"ID", "NAME", "DATE", "DESTINATION",
		moneyHeader("TOTAL"), "PAID", "BALANCE", "CREATED",
	}, rows)
}

// printOrder writes one order as labeled lines.
func printOrder(cc *CLIContext, o api.Order) error {
	if cc.Flags.JSON {
		return printJSON(cc.Stdout, o)
	}

	lines := [][2]string{
		{"ID", strconv.FormatInt(o.ID, 10)},
		{"Name", o.DisplayName()},
		{"Date", deref(o.Date)},
		{"From", deref(o.Departure)},
		{"To", deref(o.Destination)},
		{"Outbound", deref(o.OutboundTime)},
		{"Return", deref(o.ReturnTime)},
		{"Duration", deref(o.Duration)},
		{"Capacity", deref(o.Capacity)},
		{"Subtotal", formatMoney(o.Subtotal)},
		{"Discount", formatMoney(o.Discount)},
		{"Total", formatMoney(o.Total)},
		{"Paid", formatMoney(o.Paid)},
		{"Payment date", deref(o.PaymentDate)},
		{"Balance", formatMoney(o.Balance)},
		{"Created", formatTime(o.CreatedAt.Time)},
	}

	for _, l := range lines {
		fmt.Fprintf(cc.Stdout, "%-13s %s\n", l[0]+":", l[1])
	}

	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cc := cliContextFrom(cmd.Context())
	ctx := cmd.Context()

	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	return withRecords(ctx, cc, func(recs *records.Sync) error {
		o, err := fetchOne(ctx, recs, id)
		if err != nil {
			return err
		}

		return printOrder(cc, o)
	})
}

func runEdit(cmd *cobra.Command, args []string) error {
	cc := cliContextFrom(cmd.Context())
	ctx := cmd.Context()

	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	var patch api.OrderPatch

	for _, f := range editFlags {
		if !cmd.Flags().Changed(f.name) {
			continue
		}

		v, _ := cmd.Flags().GetString(f.name)
		*f.field(&patch) = &v
	}

	return withRecords(ctx, cc, func(recs *records.Sync) error {
		o, err := recs.Update(ctx, id, patch)
		if err != nil {
			return err
		}

		return printOrder(cc, o)
	})
}

// printAfterRefetch shows order id from a freshly fetched list.
func printAfterRefetch(cc *CLIContext, orders []api.Order, id int64) error {
	for _, o := range orders {
		if o.ID == id {
			return printOrder(cc, o)
		}
	}

	cc.Statusf("Order %d is no longer listed.\n", id)

	return nil
}

func runDiscount(cmd *cobra.Command, args []string) error {
	cc := cliContextFrom(cmd.Context())
	ctx := cmd.Context()

	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	return withRecords(ctx, cc, func(recs *records.Sync) error {
		orders, err := recs.ToggleDiscount(ctx, id)
		if err != nil {
			return err
		}

		return printAfterRefetch(cc, orders, id)
	})
}

func runPay(cmd *cobra.Command, args []string) error {
	cc := cliContextFrom(cmd.Context())
	ctx := cmd.Context()

	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	amount, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return api.Validation("invalid amount %q", args[1])
	}

	return withRecords(ctx, cc, func(recs *records.Sync) error {
		orders, err := recs.AddPayment(ctx, id, amount)
		if err != nil {
			return err
		}

		return printAfterRefetch(cc, orders, id)
	})
}

func runRm(cmd *cobra.Command, args []string) error {
	cc := cliContextFrom(cmd.Context())
	ctx := cmd.Context()

	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	return withRecords(ctx, cc, func(recs *records.Sync) error {
		if err := recs.Remove(ctx, id); err != nil {
			return err
		}

		cc.Statusf("Deleted order %d.\n", id)

		return nil
	})
}

func runPDF(cmd *cobra.Command, args []string) error {
	cc := cliContextFrom(cmd.Context())
	ctx := cmd.Context()

	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	dst, _ := cmd.Flags().GetString("out")
	if dst == "" {
		dst = records.FileName(id)
	}

	arts, err := cc.openArtifacts()
	if err != nil {
		return err
	}
	defer arts.Close()

	return withRecords(ctx, cc, func(recs *records.Sync) error {
		o, err := fetchOne(ctx, recs, id)
		if err != nil {
			return err
		}

		doc, err := recs.ToDocument(ctx, o)
		if err != nil {
			return err
		}

		h, err := arts.Publish(artifact.SlotRecordPreview, doc)
		if err != nil {
			return err
		}
		defer arts.Release(artifact.SlotRecordPreview)

		if err := arts.SaveAs(artifact.SlotRecordPreview, dst); err != nil {
			return err
		}

		fmt.Fprintf(cc.Stdout, "Saved %s (%s)\n", dst, formatSize(h.Size()))

		return nil
	})
}

// exportOutput is the JSON schema for `export --json`.
type exportOutput struct {
	Written []string      `json:"written"`
	Failed  []exportError `json:"failed"`
}

type exportError struct {
	OrderID int64  `json:"order_id"`
	Error   string `json:"error"`
}

func runExport(cmd *cobra.Command, args []string) error {
	cc := cliContextFrom(cmd.Context())
	ctx := cmd.Context()

	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = cc.Cfg.Records.ExportWorkers
	}

	return withRecords(ctx, cc, func(recs *records.Sync) error {
		orders, err := recs.Fetch(ctx)
		if err != nil {
			return err
		}

		report, err := recs.Export(ctx, orders, dir, workers)
		if err != nil {
			return err
		}

		if cc.Flags.JSON {
			out := exportOutput{Written: append([]string{}, report.Written...), Failed: []exportError{}}
			for _, f := range report.Failed {
				out.Failed = append(out.Failed, exportError{OrderID: f.OrderID, Error: f.Err.Error()})
			}

			if err := printJSON(cc.Stdout, out); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cc.Stdout, "Exported %d of %d orders to %s\n", len(report.Written), len(orders), dir)

			for _, f := range report.Failed {
				fmt.Fprintf(cc.Stderr, "  order %d: %v\n", f.OrderID, f.Err)
			}
		}

		if len(report.Failed) > 0 {
			return fmt.Errorf("%d orders could not be exported", len(report.Failed))
		}

		return nil
	})
}
