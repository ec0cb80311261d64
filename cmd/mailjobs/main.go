// Command mailjobs runs the account background jobs and offers a small
// command line for managing accounts and sending mail.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nhle/mailjobs/internal/model"
)

const usage = `usage: mailjobs [-config path] <command> [flags]

commands:
  run                          run the job dispatcher until interrupted
  train -account N             train the importance classifier of one account now
  jobs                         list the job list entries
  account add [flags]          provision an account
  account remove -account N    delete an account
  classification -user U -enabled=BOOL
                               enable or disable classification for a user
  send -account N [flags]      compose and send a message
`

func main() {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("mailjobs", flag.ExitOnError)
	configPath := fs.String("config", model.DefaultConfigPath(), "path to YAML configuration file")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.run(ctx, fs.Args()); err != nil {
		logger.Error("command failed", "command", fs.Arg(0), "error", err)
		a.Close()
		os.Exit(1)
	}
}

// newLogger builds the process logger from the log settings.
func newLogger(cfg model.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
