package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flightwatch-io/flightloader/pkg/config"
	"github.com/flightwatch-io/flightloader/pkg/es"
	"github.com/flightwatch-io/flightloader/pkg/flightdata"
)

// Options is the full flag surface of the loader CLI.
type Options struct {
	Config  string
	Mapping string

	DataDir string
	File    string
	All     bool
	Glob    string

	Index           string
	BatchSize       int
	Refresh         bool
	NoDatePartition bool

	AirportsFile      string
	CancellationsFile string

	Status      bool
	DeleteIndex bool
	DeleteAll   bool
	Sample      bool
	CountRows   bool

	MetricsPushAddress string
}

func (o *Options) validate() error {
	if o.Status && (o.DeleteIndex || o.DeleteAll) {
		return fmt.Errorf("--status cannot be combined with --delete-index or --delete-all")
	}
	if o.DeleteIndex && o.DeleteAll {
		return fmt.Errorf("--delete-index and --delete-all cannot be combined")
	}

	selections := 0
	if o.File != "" {
		selections++
	}
	if o.All {
		selections++
	}
	if o.Glob != "" {
		selections++
	}
	if selections > 1 {
		return fmt.Errorf("--file, --all, and --glob are mutually exclusive")
	}

	if o.BatchSize < 1 {
		return fmt.Errorf("--batch-size must be at least 1")
	}
	return nil
}

func Command() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "flightloader",
		Short: "Bulk-load flight on-time performance CSV files into Elasticsearch",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}

			cmd.SilenceUsage = true

			start := time.Now()
			defer func() {
				fmt.Printf("\nTotal time: %s\n", formatElapsed(time.Since(start)))
			}()

			return run(cmd.Context(), logger, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.Config, "config", "c", "config/elasticsearch.yml", "path to the Elasticsearch config YAML")
	flags.StringVarP(&opts.Mapping, "mapping", "m", "config/mappings-flights.json", "path to the index mappings JSON")
	flags.StringVarP(&opts.DataDir, "data-dir", "d", "data", "directory containing data files")
	flags.StringVarP(&opts.File, "file", "f", "", "only import the specified file")
	flags.BoolVarP(&opts.All, "all", "a", false, "import all files found in the data directory")
	flags.StringVarP(&opts.Glob, "glob", "g", "", "import files matching the glob pattern")
	flags.StringVar(&opts.Index, "index", "flights", "base index name")
	flags.IntVar(&opts.BatchSize, "batch-size", defaultBatchSize, "number of documents per bulk request")
	flags.BoolVar(&opts.Refresh, "refresh", false, "request an index refresh after each bulk request")
	flags.BoolVar(&opts.NoDatePartition, "no-date-partition", false, "write every document to the base index instead of per-date indices")
	flags.StringVar(&opts.AirportsFile, "airports-file", "data/airports.csv.gz", "path to the airports CSV file")
	flags.StringVar(&opts.CancellationsFile, "cancellations-file", "data/cancellations.csv", "path to the cancellations CSV file")
	flags.BoolVar(&opts.Status, "status", false, "test the connection and print cluster health")
	flags.BoolVar(&opts.DeleteIndex, "delete-index", false, "delete indices matching the index pattern and exit")
	flags.BoolVar(&opts.DeleteAll, "delete-all", false, "delete all flights-* indices and exit")
	flags.BoolVar(&opts.Sample, "sample", false, "print the first transformed document and exit")
	flags.BoolVar(&opts.CountRows, "count-rows", false, "count data rows in the selected files and exit")
	flags.StringVar(&opts.MetricsPushAddress, "metrics-push-address", "", "push gateway address for run metrics")

	return cmd
}

func run(ctx context.Context, logger *zap.Logger, opts *Options) error {
	if opts.CountRows {
		return runCountRows(logger, opts)
	}
	if opts.Sample {
		return runSample(logger, opts)
	}

	conf, err := config.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client, err := es.NewClient(conf, logger)
	if err != nil {
		return err
	}

	switch {
	case opts.Status:
		return runStatus(ctx, client)
	case opts.DeleteIndex:
		return runDeleteIndices(ctx, logger, client, opts.Index)
	case opts.DeleteAll:
		return runDeleteIndices(ctx, logger, client, "flights-*")
	}

	return runImport(ctx, logger, client, opts)
}

func runImport(ctx context.Context, logger *zap.Logger, client *es.Client, opts *Options) error {
	mapping, err := config.LoadMapping(opts.Mapping)
	if err != nil {
		return fmt.Errorf("loading mapping: %w", err)
	}

	lookups := flightdata.LoadLookups(logger, opts.AirportsFile, opts.CancellationsFile)

	files, err := ResolveFiles(opts.DataDir, opts.File, opts.Glob)
	if err != nil {
		return err
	}

	loader := NewLoader(logger, client, LoaderConfig{
		BaseIndex:     opts.Index,
		BatchSize:     opts.BatchSize,
		Refresh:       opts.Refresh,
		DatePartition: !opts.NoDatePartition,
		Mapping:       mapping,
	}, lookups, flightdata.NewLineCounter())

	start := time.Now()
	err = loader.ImportFiles(ctx, files)

	status := "succeeded"
	if err != nil {
		status = "failed"
	}
	ImportDurationSeconds.WithLabelValues(status).Observe(time.Since(start).Seconds())
	PushMetrics(logger, opts.MetricsPushAddress)

	if err != nil {
		return err
	}

	count, err := client.Count(ctx, loader.Pattern())
	if err != nil {
		logger.Warn("could not verify document count", zap.String("pattern", loader.Pattern()), zap.Error(err))
		return nil
	}
	fmt.Printf("%s documents in %s\n", formatNumber(count), loader.Pattern())
	return nil
}

func runStatus(ctx context.Context, client *es.Client) error {
	health, err := client.ClusterHealth(ctx)
	if err != nil {
		return fmt.Errorf("retrieving cluster status: %w", err)
	}

	fmt.Printf("Cluster status: %s\n", health.Status)
	fmt.Printf("Active shards: %d, node count: %d\n", health.ActiveShards, health.NumberOfNodes)
	return nil
}

func runDeleteIndices(ctx context.Context, logger *zap.Logger, client *es.Client, pattern string) error {
	if !strings.HasSuffix(pattern, "*") {
		pattern += "-*"
	}

	logger.Info("searching for indices", zap.String("pattern", pattern))

	deleted, err := client.DeleteIndicesByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("deleting indices matching %s: %w", pattern, err)
	}

	if len(deleted) == 0 {
		fmt.Printf("No indices found matching pattern: %s\n", pattern)
		return nil
	}
	fmt.Printf("Deleted %d index(es): %s\n", len(deleted), strings.Join(deleted, ", "))
	return nil
}

// runSample never contacts the store: it shows what the first data row of the
// first selected file would index as.
func runSample(logger *zap.Logger, opts *Options) error {
	lookups := flightdata.LoadLookups(logger, opts.AirportsFile, opts.CancellationsFile)

	files, err := ResolveFiles(opts.DataDir, opts.File, opts.Glob)
	if err != nil {
		return err
	}

	doc, err := flightdata.SampleDocument(files[0], lookups)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runCountRows(logger *zap.Logger, opts *Options) error {
	files, err := ResolveFiles(opts.DataDir, opts.File, opts.Glob)
	if err != nil {
		return err
	}

	total := flightdata.CountTotalRecords(logger, flightdata.NewLineCounter(), files)
	fmt.Printf("%s records in %d file(s)\n", formatNumber(total), len(files))
	return nil
}

func formatElapsed(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := d.Seconds() - float64(minutes*60)
	if minutes > 0 {
		return fmt.Sprintf("%dm %.2fs", minutes, seconds)
	}
	return fmt.Sprintf("%.2fs", seconds)
}
