package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pricedash/internal/config"
	"pricedash/internal/core"
	"pricedash/internal/log"
	"pricedash/internal/services"
	"pricedash/internal/sources"
	"pricedash/internal/sources/csvfile"
	"pricedash/internal/sources/fake"
	"pricedash/internal/sources/google"
	"pricedash/internal/sources/xlsx"
)

// IngestDeps are the collaborators of the ingestion commands. Publisher
// and Recorder may be nil.
type IngestDeps struct {
	Config    *config.Config
	Logger    *log.Logger
	Stores    services.StoreProvider
	Publisher services.Publisher
	Recorder  services.Recorder
	Out       io.Writer
}

type ingestOptions struct {
	locale    string
	batchSize int
	timeout   time.Duration
}

type ingestApp struct {
	deps IngestDeps
	opts *ingestOptions
}

// NewIngestCommand builds the pricedash-ingest command tree.
func NewIngestCommand(deps IngestDeps) *cobra.Command {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	app := &ingestApp{deps: deps, opts: &ingestOptions{}}

	cmd := &cobra.Command{
		Use:           "pricedash-ingest",
		Short:         "Load price observations into a locale's store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&app.opts.locale, "locale", "l", deps.Config.DefaultLocale, "target locale")
	pf.IntVar(&app.opts.batchSize, "batch-size", services.DefaultIngestConfig().BatchSize, "rows per insert batch")
	pf.DurationVar(&app.opts.timeout, "timeout", 10*time.Minute, "overall operation timeout")

	cmd.AddCommand(
		app.csvCmd(),
		app.xlsxCmd(),
		app.sheetsCmd(),
		app.seedCmd(),
		app.exportCmd(),
	)
	return cmd
}

func (a *ingestApp) csvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "csv <file>",
		Short: "Ingest a CSV export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.ingest(cmd, csvfile.New(args[0]))
		},
	}
}

func (a *ingestApp) xlsxCmd() *cobra.Command {
	var sheet string
	cmd := &cobra.Command{
		Use:   "xlsx <file>",
		Short: "Ingest an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.ingest(cmd, xlsx.New(args[0], sheet))
		},
	}
	cmd.Flags().StringVar(&sheet, "sheet", "", "worksheet name (default: first sheet)")
	return cmd
}

func (a *ingestApp) sheetsCmd() *cobra.Command {
	cfg := a.deps.Config
	gcfg := google.Config{
		CredentialsJSON: cfg.GoogleCredentialsJSON,
		CredentialsFile: cfg.GoogleCredentialsFile,
	}
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Ingest a Google Sheets range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.opts.timeout)
			defer cancel()
			reader, err := google.New(ctx, gcfg, a.deps.Logger)
			if err != nil {
				return err
			}
			return a.ingest(cmd, reader)
		},
	}
	cmd.Flags().StringVar(&gcfg.SpreadsheetID, "spreadsheet", cfg.GoogleSpreadsheetID, "spreadsheet id")
	cmd.Flags().StringVar(&gcfg.Range, "range", cfg.GoogleSheetRange, "A1 range including the header row")
	return cmd
}

func (a *ingestApp) seedCmd() *cobra.Command {
	var opts fake.Options
	var end string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate demo observations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if end != "" {
				d, err := core.ParseDate(end)
				if err != nil {
					return fmt.Errorf("invalid --end: %w", err)
				}
				opts.End = d.Time
			}
			return a.ingest(cmd, fake.New(opts))
		},
	}
	f := cmd.Flags()
	f.Int64Var(&opts.Seed, "seed", 1, "generator seed")
	f.IntVar(&opts.Rows, "rows", 500, "rows to generate")
	f.IntVar(&opts.Provinces, "provinces", 5, "distinct provinces")
	f.IntVar(&opts.Districts, "districts", 3, "districts per province")
	f.IntVar(&opts.Days, "days", 90, "days covered, ending at --end")
	f.Float64Var(&opts.MalformedRatio, "malformed", 0, "share of rows with a non-numeric price")
	f.StringVar(&opts.Currency, "currency", "KHR", "currency code")
	f.StringVar(&end, "end", "", "last date, YYYY-MM-DD (default: today)")
	return cmd
}

func (a *ingestApp) exportCmd() *cobra.Command {
	var sel core.FilterSelection
	var limit int
	cmd := &cobra.Command{
		Use:   "export <file.csv|file.xlsx|->",
		Short: "Write the newest observations of a locale to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.opts.timeout)
			defer cancel()
			return a.export(ctx, args[0], sel, limit)
		},
	}
	f := cmd.Flags()
	f.IntVar(&sel.ProvinceIndex, "province", 0, "province id")
	f.IntVar(&sel.DistrictIndex, "district", 0, "district id within the province")
	f.StringVar(&sel.ItemName, "item", "", "item name")
	f.IntVar(&sel.ItemID, "item-id", 0, "item id")
	f.IntVar(&limit, "limit", 0, "maximum rows (default: DEFAULT_PRICE_LIMIT)")
	return cmd
}

func (a *ingestApp) checkLocale() error {
	if !a.deps.Config.HasLocale(a.opts.locale) {
		return fmt.Errorf("unknown locale %q, configured: %v", a.opts.locale, a.deps.Config.Locales)
	}
	return nil
}

func (a *ingestApp) ingest(cmd *cobra.Command, src sources.Reader) error {
	if err := a.checkLocale(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), a.opts.timeout)
	defer cancel()

	svc := services.NewIngestService(a.deps.Stores, a.deps.Publisher, a.deps.Recorder,
		services.IngestConfig{BatchSize: a.opts.batchSize}, a.deps.Logger)
	report, err := svc.Ingest(ctx, a.opts.locale, src)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(a.deps.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func (a *ingestApp) export(ctx context.Context, path string, sel core.FilterSelection, limit int) error {
	if err := a.checkLocale(); err != nil {
		return err
	}
	cfg := a.deps.Config
	prices := services.NewPriceService(a.deps.Stores, services.PriceServiceConfig{
		DefaultLimit: cfg.DefaultPriceLimit,
		MaxLimit:     cfg.MaxPriceLimit,
	}, a.deps.Recorder, a.deps.Logger)

	res, err := prices.Prices(ctx, a.opts.locale, sel, limit)
	if err != nil {
		return err
	}
	if len(res.Dropped) > 0 {
		a.deps.Logger.Warn("Ignored unresolvable filters", "dropped", strings.Join(res.Dropped, ","))
	}

	write := csvfile.Write
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		write = xlsx.WriteObservations
	}

	if path == "-" {
		return write(a.deps.Out, res.Rows)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	if err := write(f, res.Rows); err != nil {
		f.Close()
		return fmt.Errorf("write export: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export: %w", err)
	}
	a.deps.Logger.Info("Exported observations",
		log.FieldOperation, log.OpExport,
		log.FieldLocale, a.opts.locale,
		log.FieldRowCount, len(res.Rows),
		"path", path)
	return nil
}
