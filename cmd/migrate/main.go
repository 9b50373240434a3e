package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"order-intake-gateway/config"
	pgStorage "order-intake-gateway/internal/adapter/storage/postgres"
	"order-intake-gateway/pkg/logger"

	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	steps := flag.Int("steps", 0, "number of migrations to apply with the steps command (negative rolls back)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: migrate [-config path] [-steps n] up|down|steps\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	if err := run(cfg.Database.DSN(), flag.Arg(0), *steps, log); err != nil {
		log.Error().Err(err).Msg("Migration failed")
		os.Exit(1)
	}
}

func run(dsn, cmd string, steps int, log zerolog.Logger) error {
	m, err := pgStorage.NewMigrator(dsn, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close migrator")
		}
	}()

	switch cmd {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "steps":
		if steps == 0 {
			return errors.New("steps command requires a non-zero -steps value")
		}
		return m.Steps(steps)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
