package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/mmynk/divvy/internal/cache"
	"github.com/mmynk/divvy/internal/calculator"
	"github.com/mmynk/divvy/internal/config"
	"github.com/mmynk/divvy/internal/models"
	"github.com/mmynk/divvy/internal/rpc"
	"github.com/mmynk/divvy/internal/service"
	"github.com/mmynk/divvy/pkg/logging"
)

// billSource reads bills either from local storage or from a running server.
type billSource struct {
	list   func(ctx context.Context) ([]models.Summary, error)
	get    func(ctx context.Context, id string) (*models.Bill, error)
	splits func(ctx context.Context, id string) (*calculator.Split, error)
	close  func() error
}

func billsCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "server",
			Usage: "base URL of a running server; storage is read directly when empty",
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "owner token for --server",
			EnvVars: []string{"DIVVY_TOKEN"},
		},
	}
	return &cli.Command{
		Name:  "bills",
		Usage: "inspect stored bills",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list bills, newest first",
				Flags: flags,
				Action: func(c *cli.Context) error {
					src, err := openBillSource(c)
					if err != nil {
						return err
					}
					defer src.close()

					bills, err := src.list(c.Context)
					if err != nil {
						return err
					}
					return printSummaries(c.App.Writer, bills)
				},
			},
			{
				Name:      "show",
				Usage:     "print a bill and its splits as JSON",
				ArgsUsage: "<bill-id>",
				Flags:     flags,
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return cli.Exit("bill id is required", 2)
					}
					src, err := openBillSource(c)
					if err != nil {
						return err
					}
					defer src.close()

					bill, err := src.get(c.Context, id)
					if err != nil {
						return err
					}
					split, err := src.splits(c.Context, id)
					if err != nil {
						return err
					}
					enc := json.NewEncoder(c.App.Writer)
					enc.SetIndent("", "  ")
					return enc.Encode(struct {
						Bill  *models.Bill      `json:"bill"`
						Split *calculator.Split `json:"split"`
					}{bill, split})
				},
			},
		},
	}
}

func openBillSource(c *cli.Context) (*billSource, error) {
	if server := c.String("server"); server != "" {
		client := rpc.NewClient(nil, server).WithToken(c.String("token"))
		return &billSource{
			list: client.ListBills,
			get: func(ctx context.Context, id string) (*models.Bill, error) {
				return client.GetBill(ctx, id, true)
			},
			splits: client.CalculateSplits,
			close:  func() error { return nil },
		}, nil
	}

	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return nil, err
	}
	// Keep stdout clean for the listing.
	logging.Setup("warn")

	store, err := openStore(c.Context, cfg)
	if err != nil {
		return nil, err
	}
	svc := service.NewBillService(store, cache.New(),
		service.WithPaymentLinks(calculator.PaymentLinks{
			BaseURL:       cfg.PaymentLinkBase,
			DefaultHandle: cfg.FintocUsername,
		}),
	)
	if _, err := svc.RefreshAll(c.Context); err != nil {
		store.Close()
		return nil, err
	}
	return &billSource{
		list: svc.List,
		get: func(ctx context.Context, id string) (*models.Bill, error) {
			return svc.Get(ctx, id, true)
		},
		splits: svc.CalculateSplits,
		close:  store.Close,
	}, nil
}

func printSummaries(out io.Writer, bills []models.Summary) error {
	if out == nil {
		out = os.Stdout
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tITEMS\tPEOPLE\tTOTAL\tCREATED")
	for _, b := range bills {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.0f\t%s\n",
			b.ID, b.Title, b.Status, b.ItemsCount, b.PeopleCount, b.Total, b.CreatedAt)
	}
	return w.Flush()
}
