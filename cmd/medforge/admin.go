package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/Strob0t/MedForge/internal/adapter/postgres"
	"github.com/Strob0t/MedForge/internal/config"
	"github.com/Strob0t/MedForge/internal/middleware"
)

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: medforge [command] [options]

Commands:
  serve            Run the consultation API (default)
  migrate          Apply, roll back or inspect audit store migrations
  hash-key         Hash an API key for auth.api_key_hashes
  help             Show this help message

Examples:
  medforge migrate up
  medforge migrate down --steps 2
  medforge migrate version
  medforge hash-key
  medforge hash-key --key my-secret-key --cost 12
`)
}

// runMigrate dispatches migrate subcommands (up, down, version).
func runMigrate(args []string) error {
	if len(args) == 0 {
		printUsage()
		return errors.New("migrate requires a subcommand: up, down or version")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is not configured")
	}
	ctx := context.Background()

	switch args[0] {
	case "up":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return err
		}
		fmt.Println("Migrations applied.")
	case "down":
		fs := flag.NewFlagSet("migrate down", flag.ContinueOnError)
		steps := fs.Int("steps", 1, "number of migrations to roll back")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *steps < 1 {
			return errors.New("--steps must be at least 1")
		}
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
			return err
		}
		fmt.Printf("Rolled back %d migration(s).\n", *steps)
	case "version":
		v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "DATABASE\tVERSION")
		_, _ = fmt.Fprintf(w, "%s\t%d\n", redactDSN(cfg.Postgres.DSN), v)
		return w.Flush()
	default:
		printUsage()
		return fmt.Errorf("unknown migrate command: %s", args[0])
	}
	return nil
}

// runHashKey prints the bcrypt hash of an API key. The key is prompted for
// when not given as a flag.
func runHashKey(args []string) error {
	fs := flag.NewFlagSet("hash-key", flag.ContinueOnError)
	key := fs.String("key", "", "API key to hash (prompted if omitted)")
	cost := fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *key == "" {
		k, err := promptSecret("API key: ")
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		confirm, err := promptSecret("Confirm API key: ")
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		if k != confirm {
			return errors.New("keys do not match")
		}
		*key = k
	}
	if len(*key) < 16 {
		return errors.New("API key must be at least 16 characters")
	}

	h, err := middleware.HashKey(*key, *cost)
	if err != nil {
		return err
	}
	fmt.Println(h)
	return nil
}

// redactDSN hides the password in a postgres URL.
func redactDSN(dsn string) string {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return "(unparseable dsn)"
	}
	return fmt.Sprintf("%s@%s:%d/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)
}

// promptSecret reads a secret from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)                         // newline after input
	if err != nil {
		return "", err
	}
	return string(b), nil
}
