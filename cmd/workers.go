package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tradingbot/broker"
	"tradingbot/bus"
	"tradingbot/config"
	"tradingbot/daemon"
	"tradingbot/database"
	"tradingbot/feed"
	"tradingbot/ingest"
	"tradingbot/logging"
	"tradingbot/profit"
	"tradingbot/query"
	"tradingbot/saver"
	"tradingbot/trend"
)

// runner is a worker main loop with its dependencies already wired.
type runner func(ctx context.Context, cfg *config.Config, log *zap.Logger) error

// workerCommand builds the start|stop|restart command for one worker.
func workerCommand(name, short string, run runner) *cobra.Command {
	return &cobra.Command{
		Use:       name + " [start|stop|restart]",
		Short:     short,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"start", "stop", "restart"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "start"
			if len(args) > 0 {
				action = args[0]
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			manager := daemon.New(cfg.Run.Path)

			switch action {
			case "stop":
				return manager.Stop(name)
			case "restart":
				// a worker that was not running is fine, we start it anyway
				_ = manager.Stop(name)
			}

			log, err := logging.New(cfg.Log.Path, name, cfg.Log.Level)
			if err != nil {
				return err
			}
			defer log.Sync()

			log.Info("starting worker", zap.String("worker", name))
			return manager.Start(name, func(ctx context.Context) error {
				return run(ctx, cfg, log)
			})
		},
	}
}

func runIngest(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	symbols, err := feed.DiscoverSymbols(cfg.Symbols.Path, cfg.Symbols.Mask)
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols found under %s", cfg.Symbols.Path)
	}

	b, err := bus.New(cfg.Bus.Host, cfg.Bus.Port, cfg.Bus.Password, log)
	if err != nil {
		return err
	}
	defer b.Close()

	client := feed.NewClient(cfg.API.URL, cfg.API.Token, log)
	worker := ingest.New(client, b, symbols, cfg.API.Buffer,
		time.Duration(cfg.API.Respawn)*time.Second, log)
	return worker.Run(ctx)
}

func runSaver(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	repo, cleanup, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	b, err := bus.New(cfg.Bus.Host, cfg.Bus.Port, cfg.Bus.Password, log)
	if err != nil {
		return err
	}
	defer b.Close()

	sink := saver.New(repo, log)
	return bus.NewConsumer(b, bus.QueueDatabaseSave, sink.Handle, log).Run(ctx)
}

func runQuery(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	repo, cleanup, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	b, err := bus.New(cfg.Bus.Host, cfg.Bus.Port, cfg.Bus.Password, log)
	if err != nil {
		return err
	}
	defer b.Close()

	worker := query.New(repo, b, cfg.Broker.Budget,
		cfg.Orders.Lookahead, cfg.Orders.Lookbehind, log)
	return bus.NewConsumer(b, bus.QueueDatabaseRead, worker.Handle, log).Run(ctx)
}

func runTrends(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	b, err := bus.New(cfg.Bus.Host, cfg.Bus.Port, cfg.Bus.Password, log)
	if err != nil {
		return err
	}
	defer b.Close()

	evaluator := trend.New(b, cfg.Buy.Trend, log)
	return bus.NewConsumer(b, bus.QueueRequestedTrends, evaluator.Handle, log).Run(ctx)
}

func runProfit(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	b, err := bus.New(cfg.Bus.Host, cfg.Bus.Port, cfg.Bus.Password, log)
	if err != nil {
		return err
	}
	defer b.Close()

	evaluator := profit.New(b, cfg.Sell.Cooldown, cfg.Sell.Margin, log)
	return bus.NewConsumer(b, bus.QueueRequestedProfit, evaluator.Handle, log).Run(ctx)
}

func runBroker(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	repo, cleanup, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	b, err := bus.New(cfg.Bus.Host, cfg.Bus.Port, cfg.Bus.Password, log)
	if err != nil {
		return err
	}
	defer b.Close()

	engine := broker.New(repo, cfg.Broker, cfg.Orders.Lookahead, log)
	return bus.NewConsumer(b, bus.QueueOrdersMake, engine.Handle, log).Run(ctx)
}

// runAll hosts every worker in one process. Meant for development and
// small deployments; production runs one process per worker.
func runAll(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	repo, cleanup, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	b, err := bus.New(cfg.Bus.Host, cfg.Bus.Port, cfg.Bus.Password, log)
	if err != nil {
		return err
	}
	defer b.Close()

	group, ctx := errgroup.WithContext(ctx)

	consumers := map[string]bus.Handler{
		bus.QueueDatabaseSave:    saver.New(repo, log).Handle,
		bus.QueueDatabaseRead:    query.New(repo, b, cfg.Broker.Budget, cfg.Orders.Lookahead, cfg.Orders.Lookbehind, log).Handle,
		bus.QueueRequestedTrends: trend.New(b, cfg.Buy.Trend, log).Handle,
		bus.QueueRequestedProfit: profit.New(b, cfg.Sell.Cooldown, cfg.Sell.Margin, log).Handle,
		bus.QueueOrdersMake:      broker.New(repo, cfg.Broker, cfg.Orders.Lookahead, log).Handle,
	}
	for queue, handler := range consumers {
		consumer := bus.NewConsumer(b, queue, handler, log)
		group.Go(func() error { return consumer.Run(ctx) })
	}

	symbols, err := feed.DiscoverSymbols(cfg.Symbols.Path, cfg.Symbols.Mask)
	if err != nil {
		return err
	}
	if len(symbols) > 0 {
		client := feed.NewClient(cfg.API.URL, cfg.API.Token, log)
		worker := ingest.New(client, b, symbols, cfg.API.Buffer,
			time.Duration(cfg.API.Respawn)*time.Second, log)
		group.Go(func() error { return worker.Run(ctx) })
	} else {
		log.Warn("no symbols found, ingest disabled", zap.String("path", cfg.Symbols.Path))
	}

	return group.Wait()
}

// openRepository connects to the configured database and migrates the
// schema.
func openRepository(cfg *config.Config) (*database.Repository, func(), error) {
	db, err := database.Connect(cfg.DB.Driver, cfg.DB.Host, cfg.DB.Database,
		cfg.DB.Username, cfg.DB.Password)
	if err != nil {
		return nil, nil, err
	}
	repo := database.NewRepository(db)
	if err := repo.InitSchema(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return repo, func() { db.Close() }, nil
}

func init() {
	rootCmd.AddCommand(
		workerCommand("ingest", "Consume the market data stream and buffer trades onto the bus", runIngest),
		workerCommand("saver", "Persist database.save messages into the store", runSaver),
		workerCommand("query", "Serve database.read snapshot requests", runQuery),
		workerCommand("trends", "Evaluate rising trends and propose buy orders", runTrends),
		workerCommand("profit", "Evaluate holdings and propose sell orders", runProfit),
		workerCommand("broker", "Fulfil pending orders against observed transactions", runBroker),
		workerCommand("all", "Run every worker in one process", runAll),
	)
}
