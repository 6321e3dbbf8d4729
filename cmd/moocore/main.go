package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"moocore/config"
	"moocore/scheduler"
	"moocore/session"
	"moocore/storage"
	"moocore/worldstate"
)

func main() {
	app := &cli.App{
		Name:  "moocore",
		Usage: "a LambdaMOO-style object database and task scheduler",
		Commands: []*cli.Command{
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the object store and task scheduler",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a moocore.yaml config file"},
			&cli.StringFlag{Name: "db", Usage: "override the world-state database path"},
			&cli.StringFlag{Name: "listen", Usage: "override the listen address"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if db := c.String("db"); db != "" {
		cfg.DBPath = db
	}
	if listen := c.String("listen"); listen != "" {
		cfg.Listen = listen
	}

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("moocore: building logger: %w", err)
	}
	defer log.Sync()

	provider, err := storage.OpenBoltProvider(cfg.DBPath, "objects", log)
	if err != nil {
		return fmt.Errorf("moocore: opening world-state database: %w", err)
	}
	defer provider.Stop()

	eventKey, err := cfg.EventLogKey()
	if err != nil {
		return err
	}
	eventProvider, err := storage.OpenBoltProvider(cfg.EventLogPath, "events", log)
	if err != nil {
		return fmt.Errorf("moocore: opening event log database: %w", err)
	}
	defer eventProvider.Stop()
	eventLog, err := session.NewEventLog(eventKey, eventProvider)
	if err != nil {
		return fmt.Errorf("moocore: initializing event log: %w", err)
	}

	world := worldstate.New(storage.NewStore(), provider)

	sched := scheduler.New(world, scheduler.Config{
		MaxRetries: cfg.MaxRetries,
		MaxWorkers: cfg.MaxWorkers,
		TickLimit:  cfg.TickLimit,
		TimeLimit:  cfg.TimeLimit,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)
	log.Info("moocore serving",
		zap.String("listen", cfg.Listen),
		zap.String("db_path", cfg.DBPath),
		zap.Int("max_workers", cfg.MaxWorkers),
		zap.Bool("event_log_ready", eventLog != nil),
	)

	// TODO: the connection/transport layer (server.Connection, adapted to
	// hand player input to sched.DeliverLine and drain session.Session
	// output) is not wired up yet, so serve currently runs the scheduler
	// with no way for a client to connect. Listen/Accept wiring is next.

	<-ctx.Done()
	log.Info("shutting down")
	sched.Stop()
	return nil
}
