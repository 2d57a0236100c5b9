package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Geniuskaa/kids_competition/internal/config"
	"github.com/Geniuskaa/kids_competition/internal/logging"
	"github.com/Geniuskaa/kids_competition/pkg/bracket"
	"github.com/Geniuskaa/kids_competition/pkg/database"
	"github.com/Geniuskaa/kids_competition/pkg/parser"
	"github.com/Geniuskaa/kids_competition/pkg/seed"
	"github.com/Geniuskaa/kids_competition/pkg/sports/karate"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

type env struct {
	logger *zap.Logger
	db     *database.Postgres
}

func main() {
	cliApp := &cli.App{
		Name:  "seeder",
		Usage: "schema, demo data and roster import for the competition database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to the env config file",
				Value:   config.DefaultConfigFile,
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "create the tables",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "reset", Usage: "drop the tables first"},
				},
				Action: func(c *cli.Context) error {
					return withEnv(c, func(ctx context.Context, e env) error {
						return e.db.Migrate(ctx, c.Bool("reset"))
					})
				},
			},
			{
				Name:  "generate",
				Usage: "fill the database with a random demo competition",
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "seed", Usage: "random seed, current time when 0"},
					&cli.BoolFlag{Name: "reset", Usage: "drop and recreate the tables first"},
				},
				Action: func(c *cli.Context) error {
					return withEnv(c, func(ctx context.Context, e env) error {
						if err := e.db.Migrate(ctx, c.Bool("reset")); err != nil {
							return err
						}

						s := c.Uint64("seed")
						if s == 0 {
							s = uint64(time.Now().UnixNano())
						}
						e.logger.Info("generating demo data", zap.Uint64("seed", s))

						return seed.Persist(ctx, karate.NewRepository(e.db), seed.NewGenerator(s).Generate(), e.logger)
					})
				},
			},
			{
				Name:  "import",
				Usage: "import a roster spreadsheet",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "path to the xlsx roster", Required: true},
				},
				Action: func(c *cli.Context) error {
					return withEnv(c, func(ctx context.Context, e env) error {
						return importRoster(ctx, e, c.String("file"))
					})
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger, _, lerr := logging.New(config.Logging{})
		if lerr != nil {
			logger = zap.NewNop()
		}
		logger.Error("seeder failed", zap.Strings("args", os.Args[1:]), zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func withEnv(c *cli.Context, fn func(ctx context.Context, e env) error) error {
	conf, err := config.NewConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, _, err := logging.New(config.Logging{Level: conf.Log.Level})
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := database.Connect(c.Context, logger, conf.DB.DSN(), conf.DB)
	if err != nil {
		return err
	}
	db := database.NewPostgres(pool)
	defer db.Close()

	return fn(c.Context, env{logger: logger, db: db})
}

func importRoster(ctx context.Context, e env, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("os.Open failed: %w", err)
	}
	defer f.Close()

	resp, err := parser.Impl{}.ParseXlsx(f)
	if err != nil {
		return err
	}
	for _, row := range resp.Failed {
		e.logger.Warn("row skipped", zap.Int("row", row.Row), zap.Error(row.Err))
	}

	serv := karate.NewService(karate.NewRepository(e.db), bracket.Default(), e.logger, nil)
	n, err := serv.ImportRoster(ctx, resp.Entries)
	if err != nil {
		return err
	}

	e.logger.Info("roster imported", zap.String("file", path), zap.Int("imported", n),
		zap.Int("failed", len(resp.Failed)), zap.Int("percent_errs", resp.PercentErrs))
	return nil
}
