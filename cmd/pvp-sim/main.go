package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/gridduel/internal/config"
	"github.com/okian/gridduel/internal/simulate"
)

// Default configuration constants.
const (
	defaultBots    = "alice:0.95:120ms,bob:0.85:150ms"
	defaultTimeout = 10 * time.Minute
)

func main() {
	var (
		mode       = flag.String("mode", "blind", "Match mode: blind or live")
		bots       = flag.String("bots", defaultBots, "Comma separated id[:accuracy[:think]] list")
		backend    = flag.String("backend", "", "Store backend: memory or redis")
		redisAddr  = flag.String("redis", "", "Redis address for the redis backend")
		prefix     = flag.String("prefix", "", "Redis key prefix")
		difficulty = flag.String("difficulty", "", "Puzzle difficulty")
		timeout    = flag.Duration("timeout", defaultTimeout, "Upper bound for the whole run")
		format     = flag.String("format", "tint", "Log format: text, json or tint")
		logFile    = flag.String("log", "", "Log file for simulator output (default: pvp_sim_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	closer, err := simulate.SetupLogging(*logFile, *format, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svcCfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("Failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *backend != "" {
		svcCfg.StoreBackend = *backend
	}
	if *redisAddr != "" {
		svcCfg.RedisAddr = *redisAddr
	}
	if *prefix != "" {
		svcCfg.RedisPrefix = *prefix
	}
	if *difficulty != "" {
		svcCfg.PvpDifficulty = *difficulty
	}

	m, err := simulate.ParseMode(*mode)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	botCfgs, err := simulate.ParseBots(*bots)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	cfg := &simulate.Config{
		Service: svcCfg,
		Mode:    m,
		Bots:    botCfgs,
		Timeout: *timeout,
		LogFile: *logFile,
		Verbose: *verbose,
	}
	if _, err := simulate.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
