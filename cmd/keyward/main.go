// Package main is the entry point for the keyward API key server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/vyrodovalexey/keyward/internal/config"
	"github.com/vyrodovalexey/keyward/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags(os.Args[1:])

	if flags.showVersion {
		printVersion()
		return
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting keyward",
		observability.String("version", version),
		observability.String("config", flags.configPath),
		observability.String("store", string(cfg.Store.Type)),
		observability.Bool("signature_required", cfg.Signature.Required),
		observability.Bool("rate_limit", cfg.RateLimit.Enabled),
	)

	app, err := newApplication(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", observability.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}

	if err := app.run(); err != nil {
		logger.Error("keyward stopped with error", observability.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// parseFlags parses command line flags.
func parseFlags(args []string) cliFlags {
	fs := flag.NewFlagSet("keyward", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (env "+config.EnvConfigPath+")")
	logLevel := fs.String("log-level", "", "Log level override (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "Log format override (json, console)")
	showVersion := fs.Bool("version", false, "Show version information")
	_ = fs.Parse(args)

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// loadConfig resolves the file, loads it and applies the flag overrides.
func loadConfig(flags cliFlags) (*config.Config, error) {
	path, err := config.ResolveConfigPath(flags.configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if flags.logLevel != "" {
		cfg.Logging.Level = strings.ToLower(flags.logLevel)
	}
	if flags.logFormat != "" {
		cfg.Logging.Format = flags.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("keyward version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}
