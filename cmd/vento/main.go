package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/linasofi13/wind-gis-tech-validation/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, args []string) error
}

var commands []command

// commands is filled in init because info lists it.
func init() {
	commands = []command{
		{"serve", "run the HTTP API, event subscriber and scheduler", runServe},
		{"compute-wsi", "compute the wind suitability index for the configured AOI", runComputeWSI},
		{"generate-report", "regenerate the viability report of a finished run", runGenerateReport},
		{"validate-config", "check configuration, input layers and engine availability", runValidateConfig},
		{"info", "show engines, commands and host resources", runInfo},
		{"version", "print the version", runVersion},
	}
}

func main() {
	// a missing .env file is normal
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	name := os.Args[1]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(ctx, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "vento %s: %v\n", name, err)
			stop()
			os.Exit(1)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "vento: unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: vento <command> [flags]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "commands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-16s %s\n", c.name, c.usage)
	}
}

// commonFlags are shared by every command that reads configuration.
type commonFlags struct {
	configPath string
	verbose    bool
}

func newFlagSet(name string, cf *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&cf.configPath, "config", "", "path to config file (.yaml or .toml)")
	fs.BoolVar(&cf.verbose, "v", false, "verbose (debug) logging")
	return fs
}

func loadConfig(cf commonFlags) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cf.configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg.Logging, cf.verbose)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(lc config.LoggingConfig, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
