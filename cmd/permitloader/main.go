package main

import (
	"os"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/xerrors"

	"go.nownabe.dev/permitloader"
	"go.nownabe.dev/permitloader/config"
	"go.nownabe.dev/permitloader/secrets"
	"go.nownabe.dev/permitloader/warehouse"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg config.Config
	v := viper.New()

	root := &cobra.Command{
		Use:           "permitloader",
		Short:         "Load monthly Street Manager permit archives into a warehouse",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			c, err := config.New(v)
			if err != nil {
				return err
			}
			cfg = c
			return nil
		},
	}

	root.AddCommand(
		newHistoricCmd(&cfg, v),
		newLatestCmd(&cfg, v),
		newScheduleCmd(&cfg, v),
	)

	return root
}

func newHistoricCmd(cfg *config.Config, v *viper.Viper) *cobra.Command {
	var (
		schema     string
		limit      int
		year       int
		startMonth int
		endMonth   int
	)

	cmd := &cobra.Command{
		Use:   "historic",
		Short: "Load a range of months of one year",
		Example: `  permitloader historic --schema schema_21 --year 2021 --start 1 --end 12
  permitloader historic --schema schema_23 --year 2023 --start 7 --end 12 --limit 50000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit == 0 {
				limit = cfg.LimitNumber
			}

			l, err := newLoader(*cfg, v)
			if err != nil {
				return err
			}

			_, err = l.RunHistoric(cmd.Context(), schema, limit, year, startMonth, endMonth)
			return err
		},
	}

	cmd.Flags().StringVar(&schema, "schema", "", "schema key in the credentials, e.g. schema_21")
	cmd.Flags().IntVar(&limit, "limit", 0, "rows per insert (default LIMIT_NUMBER)")
	cmd.Flags().IntVar(&year, "year", 0, "year to load")
	cmd.Flags().IntVar(&startMonth, "start", 1, "first month to load")
	cmd.Flags().IntVar(&endMonth, "end", 12, "last month to load (inclusive)")
	_ = cmd.MarkFlagRequired("schema")
	_ = cmd.MarkFlagRequired("year")

	return cmd
}

func newLatestCmd(cfg *config.Config, v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Load the last completed month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := newLoader(*cfg, v)
			if err != nil {
				return err
			}

			_, err = l.RunLatest(cmd.Context())
			return err
		},
	}
}

func newScheduleCmd(cfg *config.Config, v *viper.Viper) *cobra.Command {
	var expr string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the latest month load on a cron schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if expr == "" {
				expr = cfg.Schedule
			}

			l, err := newLoader(*cfg, v)
			if err != nil {
				return err
			}

			s := gocron.NewScheduler(time.UTC)
			s.SingletonModeAll()

			ctx := cmd.Context()
			if _, err := s.Cron(expr).Do(func() {
				if _, err := l.RunLatest(ctx); err != nil {
					log.Error().Err(err).Msg("scheduled load failed")
				}
			}); err != nil {
				return xerrors.Errorf("invalid schedule %q: %w", expr, err)
			}

			log.Info().Str("schedule", expr).Msg("scheduler started")
			s.StartBlocking()

			return nil
		},
	}

	cmd.Flags().StringVar(&expr, "cron", "", "cron expression in UTC (default SCHEDULE)")

	return cmd
}

func newLoader(cfg config.Config, v *viper.Viper) (*permitloader.Loader, error) {
	opts := []permitloader.Option{
		permitloader.WithLogLevel(cfg.LogLevel),
		permitloader.WithLinkGenerator(permitloader.MonthlyLinks{BaseURL: cfg.BaseURL}),
		permitloader.WithSampleSize(cfg.SampleSize),
		permitloader.WithLatest(cfg.LatestSchema, cfg.LimitNumber),
		permitloader.WithConcurrency(max(cfg.Concurrency, 1)),
	}

	if cfg.PrettyLogs {
		opts = append(opts, permitloader.WithPrettyLogging())
	}

	switch cfg.SecretSource {
	case config.SecretSourceEnv:
		opts = append(opts, permitloader.WithCredentials(&secrets.Env{V: v}))
	default:
		opts = append(opts, permitloader.WithCredentials(&secrets.AWSSecretsManager{
			Name:   cfg.SecretName,
			Region: cfg.AWSRegion,
		}))
	}

	switch cfg.Warehouse {
	case config.WarehouseDuckDB:
		opts = append(opts, permitloader.WithConnector(warehouse.DuckDB(cfg.DuckDBPath)))
	case config.WarehousePostgres:
		opts = append(opts, permitloader.WithConnector(warehouse.Postgres(cfg.PostgresDSN)))
	case config.WarehouseBigQuery:
		opts = append(opts, permitloader.WithConnector(warehouse.BigQuery(cfg.BigQueryProject)))
	default:
		opts = append(opts, permitloader.WithConnector(warehouse.MotherDuck()))
	}

	if cfg.SlackToken != "" && cfg.SlackChannel != "" {
		opts = append(opts, permitloader.WithNotifier(&permitloader.SlackNotifier{
			Token:   cfg.SlackToken,
			Channel: cfg.SlackChannel,
		}))
	}

	return permitloader.New(opts...)
}
