// cmd/tools/compliance-admin/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"ipo-compliance/internal/common/config"
	"ipo-compliance/internal/common/database"
	"ipo-compliance/internal/common/logger"
	"ipo-compliance/internal/compliance"
	"ipo-compliance/internal/store"
	"ipo-compliance/internal/subscription"
	"ipo-compliance/pkg/registry"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		help(stderr)
		return 1
	}

	switch args[0] {
	case "sweep":
		cmd := flag.NewFlagSet("sweep", flag.ContinueOnError)
		cmd.SetOutput(stderr)
		timeout := cmd.Duration("timeout", time.Minute, "Maximum run time")
		if err := cmd.Parse(args[1:]); err != nil {
			return 1
		}
		return withStore(stderr, *timeout, func(ctx context.Context, cfg *config.Config, repo *store.Postgres) error {
			log := logger.NewZapAdapter(logger.New(cfg.Logging.Level, cfg.Logging.Format, "stderr"))
			ids, err := compliance.NewSweeper(repo, cfg.Reconciliation.StaleAfter(), log).Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Failed %d stale generation cycle(s)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(stdout, "  %s\n", id)
			}
			return nil
		})

	case "quota":
		cmd := flag.NewFlagSet("quota", flag.ContinueOnError)
		cmd.SetOutput(stderr)
		companyID := cmd.String("company", "", "Company ID")
		attempted := cmd.Bool("attempted", false, "Evaluate as if a generation was attempted")
		if err := cmd.Parse(args[1:]); err != nil {
			return 1
		}
		if *companyID == "" {
			fmt.Fprintln(stderr, "Error: -company is required for quota.")
			cmd.Usage()
			return 1
		}
		return withStore(stderr, 30*time.Second, func(ctx context.Context, _ *config.Config, repo *store.Postgres) error {
			_, decision, err := subscription.NewChecker(repo).Check(ctx, *companyID, *attempted)
			if err != nil {
				return err
			}
			return printJSON(stdout, decision)
		})

	case "invalidate-plan":
		cmd := flag.NewFlagSet("invalidate-plan", flag.ContinueOnError)
		cmd.SetOutput(stderr)
		userID := cmd.String("user", "", "User ID whose plan changed")
		if err := cmd.Parse(args[1:]); err != nil {
			return 1
		}
		if *userID == "" {
			fmt.Fprintln(stderr, "Error: -user is required for invalidate-plan.")
			cmd.Usage()
			return 1
		}
		return withRedis(stderr, func(ctx context.Context, rdb *database.RedisClient) error {
			if err := subscription.InvalidatePlan(ctx, rdb.Client, *userID); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Plan cache cleared for %s\n", *userID)
			return nil
		})

	case "validate-registry":
		cmd := flag.NewFlagSet("validate-registry", flag.ContinueOnError)
		cmd.SetOutput(stderr)
		path := cmd.String("path", "", "Path to registry file (default: embedded registry)")
		if err := cmd.Parse(args[1:]); err != nil {
			return 1
		}
		reg, err := registry.Load(*path)
		if err == nil {
			err = reg.Validate()
		}
		if err != nil {
			fmt.Fprintf(stderr, "Registry invalid: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Registry %s is valid (%d activities)\n", reg.Version, len(reg.Activities))
		return 0

	default:
		help(stderr)
		return 1
	}
}

func withStore(stderr io.Writer, timeout time.Duration, fn func(context.Context, *config.Config, *store.Postgres) error) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fmt.Fprintf(stderr, "Error connecting to postgres: %v\n", err)
		return 1
	}
	defer pg.Close()

	if err := fn(ctx, cfg, store.NewPostgres(pg.DB)); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func withRedis(stderr io.Writer, fn func(context.Context, *database.RedisClient) error) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		fmt.Fprintf(stderr, "Error connecting to redis: %v\n", err)
		return 1
	}
	defer rdb.Close()

	if err := fn(ctx, rdb); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func help(w io.Writer) {
	fmt.Fprintln(w, "Usage: compliance-admin <command> [options]")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  sweep              Fail pending generation cycles older than the staleness threshold")
	fmt.Fprintln(w, "  quota              Evaluate the generation gate for a company")
	fmt.Fprintln(w, "  invalidate-plan    Drop a user's cached plan after a plan change")
	fmt.Fprintln(w, "  validate-registry  Validate the activity registry")
}
