package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/tutorly/tutorly/cmd/tutorlyctl/cli"
	"github.com/tutorly/tutorly/internal/app"
	"github.com/tutorly/tutorly/internal/platform/db"
	"github.com/tutorly/tutorly/jobs"
)

const usage = `usage: tutorlyctl <command> [flags]

commands:
  migrate up                apply pending schema migrations
  migrate down -steps N     revert N migrations
  migrate version           print the applied schema version
  jobs trigger <job>        enqueue finance:calculate (-session) or finance:summary_warmup (-months)
  jobs stats                print default queue counters as JSON
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	switch args[0] {
	case "migrate":
		return runMigrate(cfg, args[1], args[2:], stdout, stderr)
	case "jobs":
		return runJobs(ctx, cfg, args[1], args[2:], stdout, stderr)
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
}

func runMigrate(cfg *app.Config, sub string, args []string, stdout, stderr io.Writer) int {
	switch sub {
	case "up":
		if err := db.Migrate(cfg.PGDSN); err != nil {
			_, _ = fmt.Fprintf(stderr, "migrate up: %v\n", err)
			return 1
		}
	case "down":
		fs := flag.NewFlagSet("migrate down", flag.ContinueOnError)
		fs.SetOutput(stderr)
		steps := fs.Int("steps", 1, "number of migrations to revert")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		if err := db.Rollback(cfg.PGDSN, *steps); err != nil {
			_, _ = fmt.Fprintf(stderr, "migrate down: %v\n", err)
			return 1
		}
	case "version":
		version, dirty, err := db.Version(cfg.PGDSN)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "migrate version: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "version=%d dirty=%t\n", version, dirty)
		return 0
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	_, _ = fmt.Fprintln(stdout, "ok")
	return 0
}

func runJobs(ctx context.Context, cfg *app.Config, sub string, args []string, stdout, stderr io.Writer) int {
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs: %v\n", err)
		return 1
	}
	defer jobsCLI.Close()

	switch sub {
	case "trigger":
		if len(args) == 0 {
			_, _ = fmt.Fprint(stderr, usage)
			return 2
		}
		name := args[0]
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		fs.SetOutput(stderr)
		sessionID := fs.Int64("session", 0, "session id for "+jobs.TaskFinanceCalculate)
		months := fs.Int("months", 2, "months to warm for "+jobs.TaskFinanceSummaryWarmup)
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, name, cli.TriggerOptions{SessionID: *sessionID, Months: *months})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs stats: %v\n", err)
			return 1
		}
		if err := json.NewEncoder(stdout).Encode(stats); err != nil {
			return 1
		}
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	return 0
}
