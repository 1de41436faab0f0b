// Command signupctl runs operator tasks against the signup stack.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/odyssey-signup/cmd/signupctl/cli"
	"github.com/odyssey-erp/odyssey-signup/internal/platform/cache"
)

const usage = `usage: signupctl [flags] <command>

commands:
  migrate     apply database migrations (PG_DSN)
  sweep       enqueue a confirmation sweep now
  queue       print queue counters
  scheduled   list scheduled tasks

flags:
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("signupctl", flag.ContinueOnError)
	redisAddr := fs.String("redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "redis address")
	dsn := fs.String("dsn", os.Getenv("PG_DSN"), "postgres connection string")
	jsonOut := fs.Bool("json", false, "print JSON")
	size := fs.Int("n", 20, "number of scheduled tasks to list")
	fs.Usage = func() {
		_, _ = fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := cli.OutputOptions{JSONOutput: *jsonOut}
	command := fs.Arg(0)
	if command == "migrate" {
		return cli.MigrateCommand(ctx, *dsn, opts)
	}

	jobsCLI := cli.NewJobsCLI(cache.Options{Addr: *redisAddr}.AsynqOptions())
	defer func() { _ = jobsCLI.Close() }()

	switch command {
	case "sweep":
		return jobsCLI.SweepCommand(ctx, opts)
	case "queue":
		return jobsCLI.QueueCommand(ctx, opts)
	case "scheduled":
		return jobsCLI.ScheduledCommand(ctx, *size, opts)
	default:
		_, _ = fmt.Fprintf(os.Stderr, "signupctl: unknown command %q\n", command)
		fs.Usage()
		return 2
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
