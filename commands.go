package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"andon-board/internal/config"
	"andon-board/internal/db"
	"andon-board/internal/logging"
	stationapp "andon-board/internal/stations/application"
	stationpg "andon-board/internal/stations/infrastructure/postgres"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and realtime server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			database, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer database.Close()
			return migrate(cmd.Context(), database, logger)
		},
	}
}

func newSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import the station catalogue",
		Long: `Import stations from a YAML catalogue. Existing stations keep their
current status; name, zone and description are refreshed.

Without --file the seed_file from config is used, and without that the
built-in catalogue.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.SeedFile
			}
			database, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer database.Close()
			if cfg.Database.AutoMigrate {
				if err := migrate(cmd.Context(), database, logger); err != nil {
					return err
				}
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			svc, err := stationapp.NewService(stationpg.NewRepository(database),
				stationapp.WithLocation(loc),
				stationapp.WithLogger(logging.WithComponent("stations")),
			)
			if err != nil {
				return err
			}
			_, err = seedStations(cmd.Context(), svc, file, logger)
			return err
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "catalogue YAML file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprint(cmd.OutOrStdout(), versionText())
		},
	}
}

// bootstrap loads and validates configuration and initialises logging.
func bootstrap(configPath string) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, JSONOutput: cfg.Log.JSON})
	return cfg, logging.WithComponent("andon"), nil
}

func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	database, err := db.Open(ctx, db.Config{
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return database, nil
}

func migrate(ctx context.Context, database *sql.DB, logger zerolog.Logger) error {
	applied, err := db.Migrate(ctx, database)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if len(applied) == 0 {
		logger.Info().Msg("schema up to date")
		return nil
	}
	logger.Info().Strs("applied", applied).Msg("migrations applied")
	return nil
}

func seedStations(ctx context.Context, svc *stationapp.Service, file string, logger zerolog.Logger) (int, error) {
	catalogue, err := db.LoadCatalogue(file)
	if err != nil {
		return 0, err
	}
	n, err := svc.ImportStations(ctx, catalogue.Stations())
	if err != nil {
		return n, fmt.Errorf("seed stations: %w", err)
	}
	source := file
	if source == "" {
		source = "built-in"
	}
	logger.Info().Int("stations", n).Str("catalogue", source).Msg("stations seeded")
	return n, nil
}
