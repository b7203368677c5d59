package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stemsi/quizrunner/internal/config"
	"github.com/stemsi/quizrunner/internal/logger"
)

func main() {
	var migrationDir string
	flag.StringVar(&migrationDir, "path", "migrations", "Path to migration files")
	flag.Usage = printUsage
	flag.Parse()

	cfg := config.Load()
	log := logger.New(os.Stderr, cfg.LogLevel, "pretty")

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(2)
	}

	m, err := migrate.New("file://"+migrationDir, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("path", migrationDir).Msg("Migration failed to initialize")
	}
	defer m.Close()

	switch args[0] {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal().Err(err).Msg("Up failed")
		}
		log.Info().Msg("Migrated up")
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal().Err(err).Msg("Down failed")
		}
		log.Info().Msg("Migrated down")
	case "steps":
		n := intArg(args, "steps")
		if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal().Err(err).Int("steps", n).Msg("Steps failed")
		}
		log.Info().Int("steps", n).Msg("Migrated")
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info().Msg("No migration applied yet")
			return
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Version failed")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Schema version")
	case "force":
		v := intArg(args, "force")
		if err := m.Force(v); err != nil {
			log.Fatal().Err(err).Msg("Force failed")
		}
		log.Info().Int("version", v).Msg("Forced version")
	default:
		printUsage()
		os.Exit(2)
	}
}

func intArg(args []string, command string) int {
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "%s requires a numeric argument\n", command)
		os.Exit(2)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s argument %q: %v\n", command, args[1], err)
		os.Exit(2)
	}
	return n
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate [flags] <command>")
	fmt.Fprintln(os.Stderr, "Commands: up, down, steps <n>, version, force <version>")
	fmt.Fprintln(os.Stderr, "Flags:")
	flag.PrintDefaults()
}
