package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/example/dshauth/internal/config"
	"github.com/example/dshauth/internal/logging"
	"github.com/example/dshauth/internal/migrate"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, version, force")
		steps   = flag.Int("steps", 0, "Number of migration steps (for up/down)")
		version = flag.Uint("version", 0, "Target version (for force command)")
		dir     = flag.String("dir", "", "Migrations directory (defaults to MIGRATIONS_DIR)")
	)
	flag.Parse()

	cfg, err := config.NewDatabase()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	log, zl, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer zl.Sync()

	fatal := func(err error, msg string, kv ...any) {
		log.Error(err, msg, kv...)
		_ = zl.Sync()
		os.Exit(1)
	}

	if cfg.DBAdapter != "postgres" {
		fatal(fmt.Errorf("adapter %s", cfg.DBAdapter), "migrations only work with PostgreSQL")
	}
	migrationsDir := cfg.MigrationsDir
	if *dir != "" {
		migrationsDir = *dir
	}

	mg, err := migrate.New(migrationsDir, cfg.PostgresDSN)
	if err != nil {
		fatal(err, "cannot open migrations", "dir", migrationsDir)
	}
	defer mg.Close()

	switch *command {
	case "up":
		if *steps > 0 {
			err = mg.Steps(*steps)
		} else {
			err = mg.Up(log)
		}
		if err != nil {
			fatal(err, "migration up failed")
		}
		log.Info("migrations applied")
	case "down":
		if *steps > 0 {
			err = mg.Steps(-*steps)
		} else {
			err = mg.Down()
		}
		if err != nil {
			fatal(err, "migration down failed")
		}
		log.Info("migrations rolled back")
	case "version":
		v, dirty, err := mg.Version()
		if err != nil {
			fatal(err, "failed to get version")
		}
		if dirty {
			fatal(fmt.Errorf("dirty version %d", v), "database is in a dirty state")
		}
		fmt.Printf("Current migration version: %d\n", v)
	case "force":
		if *version == 0 {
			fatal(fmt.Errorf("missing -version"), "version required for force command")
		}
		if err := mg.Force(int(*version)); err != nil {
			fatal(err, "force migration failed")
		}
		log.Info("forced database version", "version", *version)
	default:
		fatal(fmt.Errorf("unknown command %q", *command), "supported commands: up, down, version, force")
	}
}
