// Package main is the keyward admin CLI. It manages API keys directly in
// the configured credential store; do not run it against a store that a
// live keyward server is writing to. Use the server's /v1/keys routes
// instead.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/vyrodovalexey/keyward/internal/auth/apikey"
	"github.com/vyrodovalexey/keyward/internal/config"
	"github.com/vyrodovalexey/keyward/internal/credential"
	"github.com/vyrodovalexey/keyward/internal/observability"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// errUsage is returned after usage has been printed.
var errUsage = errors.New("invalid usage")

// cli carries the shared state of one invocation.
type cli struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	// managerOpts are appended to the configured manager options.
	managerOpts []apikey.ManagerOption
}

func main() {
	c := &cli{stdout: os.Stdout, stderr: os.Stderr}
	if err := c.run(context.Background(), os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) {
			color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func (c *cli) printUsage() {
	yellow := color.New(color.FgYellow)

	fmt.Fprintln(c.stderr, "Usage: keywardctl [-config path] <command> [args]")
	fmt.Fprintln(c.stderr)
	yellow.Fprintln(c.stderr, "Commands:")
	fmt.Fprintln(c.stderr, "  generate -name <name> [-permissions a,b] [-expires-days n] [-json]")
	fmt.Fprintln(c.stderr, "                          Create a key and print it once")
	fmt.Fprintln(c.stderr, "  list [-json]            List all keys")
	fmt.Fprintln(c.stderr, "  show <id> [-json]       Show one key")
	fmt.Fprintln(c.stderr, "  revoke <id>             Revoke a key")
	fmt.Fprintln(c.stderr)
	yellow.Fprintln(c.stderr, "Environment:")
	fmt.Fprintf(c.stderr, "  %-24s Configuration file\n", config.EnvConfigPath)
	fmt.Fprintf(c.stderr, "  %-24s Credential store path override\n", config.EnvAPIKeysFile)
}

// run parses global flags and dispatches the command.
func (c *cli) run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("keywardctl", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.StringVar(&c.configPath, "config", c.configPath, "Path to configuration file")
	fs.Usage = c.printUsage
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	rest := fs.Args()
	if len(rest) == 0 {
		c.printUsage()
		return errUsage
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "generate":
		return c.cmdGenerate(ctx, cmdArgs)
	case "list":
		return c.cmdList(ctx, cmdArgs)
	case "show":
		return c.cmdShow(ctx, cmdArgs)
	case "revoke":
		return c.cmdRevoke(ctx, cmdArgs)
	case "help", "-h", "--help":
		c.printUsage()
		return nil
	default:
		fmt.Fprintf(c.stderr, "Unknown command: %s\n", cmd)
		c.printUsage()
		return errUsage
	}
}

// openManager loads the configuration and opens the key manager over the
// configured store.
func (c *cli) openManager(ctx context.Context) (*apikey.Manager, error) {
	path, err := config.ResolveConfigPath(c.configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(observability.LogConfig{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		return nil, err
	}

	store, err := credential.Open(cfg.Store.Type, cfg.Store.Path, logger)
	if err != nil {
		return nil, err
	}

	opts := append([]apikey.ManagerOption{
		apikey.WithConfig(cfg.KeyConfig()),
		apikey.WithManagerLogger(logger),
	}, c.managerOpts...)

	manager, err := apikey.NewManager(ctx, store, opts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return manager, nil
}

// withManager opens the manager, runs fn and closes the manager.
func (c *cli) withManager(ctx context.Context, fn func(*apikey.Manager) error) (err error) {
	manager, err := c.openManager(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, manager.Close(ctx))
	}()
	return fn(manager)
}

func (c *cli) cmdGenerate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	name := fs.String("name", "", "Key name (required)")
	permissions := fs.String("permissions", "", "Comma separated permissions (default process,health)")
	expiresDays := fs.Int("expires-days", 0, "Expire after this many days (0 never expires)")
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if strings.TrimSpace(*name) == "" {
		return errors.New("-name is required")
	}
	if *expiresDays < 0 {
		return errors.New("-expires-days must not be negative")
	}

	var perms []string
	if *permissions != "" {
		perms = strings.Split(*permissions, ",")
	}

	return c.withManager(ctx, func(m *apikey.Manager) error {
		var opts []apikey.GenerateOption
		if *expiresDays > 0 {
			opts = append(opts, apikey.WithExpiresInDays(*expiresDays))
		}
		key, err := m.Generate(ctx, *name, perms, opts...)
		if err != nil {
			return err
		}
		if *asJSON {
			return writeJSON(c.stdout, key)
		}

		green := color.New(color.FgGreen, color.Bold)
		yellow := color.New(color.FgYellow)

		fmt.Fprintln(c.stdout)
		green.Fprintln(c.stdout, "  API key generated")
		fmt.Fprintf(c.stdout, "  ID:           %s\n", key.ID)
		fmt.Fprintf(c.stdout, "  Name:         %s\n", key.Name)
		fmt.Fprintf(c.stdout, "  Permissions:  %s\n", strings.Join(key.Permissions, ", "))
		fmt.Fprintf(c.stdout, "  Expires:      %s\n", formatTime(key.ExpiresAt))
		fmt.Fprintf(c.stdout, "  Key:          %s\n", key.Key)
		fmt.Fprintln(c.stdout)
		yellow.Fprintln(c.stdout, "  Store this key now. It cannot be shown again.")
		fmt.Fprintln(c.stdout)
		return nil
	})
}

func (c *cli) cmdList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	return c.withManager(ctx, func(m *apikey.Manager) error {
		keys := m.List(ctx)
		if *asJSON {
			return writeJSON(c.stdout, map[string]interface{}{"api_keys": keys, "total": len(keys)})
		}
		if len(keys) == 0 {
			fmt.Fprintln(c.stdout, "No API keys found.")
			return nil
		}

		w := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tPERMISSIONS\tUSAGE\tLAST USED\tCREATED")
		fmt.Fprintln(w, "--\t----\t------\t-----------\t-----\t---------\t-------")
		for i := range keys {
			k := &keys[i]
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				k.ID, k.Name, k.Status(), strings.Join(k.Permissions, ","),
				k.UsageCount, formatTime(k.LastUsedAt), k.CreatedAt.Format(timeLayout))
		}
		return w.Flush()
	})
}

func (c *cli) cmdShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	asJSON := fs.Bool("json", false, "Print JSON")
	id, err := parseWithID(fs, args)
	if err != nil {
		return err
	}

	return c.withManager(ctx, func(m *apikey.Manager) error {
		info, err := m.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
		if *asJSON {
			return writeJSON(c.stdout, info)
		}

		status := color.New(color.FgGreen)
		if !info.Active {
			status = color.New(color.FgRed)
		}

		fmt.Fprintf(c.stdout, "ID:           %s\n", info.ID)
		fmt.Fprintf(c.stdout, "Name:         %s\n", info.Name)
		fmt.Fprint(c.stdout, "Status:       ")
		status.Fprintln(c.stdout, info.Status())
		fmt.Fprintf(c.stdout, "Permissions:  %s\n", strings.Join(info.Permissions, ", "))
		fmt.Fprintf(c.stdout, "Created:      %s\n", info.CreatedAt.Format(timeLayout))
		fmt.Fprintf(c.stdout, "Expires:      %s\n", formatTime(info.ExpiresAt))
		fmt.Fprintf(c.stdout, "Last used:    %s\n", formatTime(info.LastUsedAt))
		fmt.Fprintf(c.stdout, "Usage count:  %d\n", info.UsageCount)
		return nil
	})
}

func (c *cli) cmdRevoke(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	id, err := parseWithID(fs, args)
	if err != nil {
		return err
	}

	return c.withManager(ctx, func(m *apikey.Manager) error {
		found, err := m.Revoke(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s: %w", id, apikey.ErrNotFound)
		}
		color.New(color.FgGreen).Fprintf(c.stdout, "API key %s revoked\n", id)
		return nil
	})
}

// parseWithID parses fs and expects exactly one positional key id. Flags may
// come before or after the id.
func parseWithID(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", errUsage
	}
	rest := fs.Args()
	if len(rest) > 0 {
		if err := fs.Parse(rest[1:]); err != nil {
			return "", errUsage
		}
		if fs.NArg() == 0 {
			return rest[0], nil
		}
	}
	return "", fmt.Errorf("%s requires exactly one key id", fs.Name())
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "Never"
	}
	return t.Format(timeLayout)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
