package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/consumer-contracts/internal/config"
	"github.com/ShayCichocki/consumer-contracts/internal/logging"
	"github.com/ShayCichocki/consumer-contracts/internal/version"
)

// flagKeys maps config keys to the persistent flags that override them.
var flagKeys = map[string]string{
	"contracts.dir":   "dir",
	"run.concurrency": "concurrency",
	"request.timeout": "timeout",
	"output.format":   "format",
	"output.color":    "color",
	"log.level":       "log-level",
}

// exitError ends the process with code. A nil err prints nothing.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// cli holds state shared by subcommands once the root has loaded config.
type cli struct {
	configFile string
	cfg        *config.Config
	logger     logr.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{logger: logr.Discard()}

	rootCmd := &cobra.Command{
		Use:   "consumer-contracts",
		Short: "Validate consumer-driven contracts against live services",
		Long: `consumer-contracts checks that the HTTP services you depend on still
answer the way your application expects.

Each contract describes a request and a schema for the response. Contracts
are YAML files, by default under ./contracts.

Configuration is read from ~/.config/consumer-contracts/config.yaml, then
.consumer-contracts.yaml in the current directory or a parent, then
CONSUMER_CONTRACTS_* environment variables, then flags.`,
		Version:       version.Get(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "Project config file (default: search for "+config.ProjectConfigName+")")
	flags.String("dir", "", "Directory searched for contracts when no files are given")
	flags.Int("concurrency", 0, "Contracts validated at once")
	flags.Duration("timeout", 0, "Request timeout for contracts that set none")
	flags.String("format", "", "Report format: text or json")
	flags.String("color", "", "Color the report: auto, always or never")
	flags.String("log-level", "", "Log level: error, warn, info, verbose, debug or trace")

	rootCmd.AddCommand(newRunCmd(c))
	rootCmd.AddCommand(newWatchCmd(c))
	rootCmd.AddCommand(newConfigCmd(c))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// init loads configuration and installs the logger into the command
// context.
func (c *cli) init(cmd *cobra.Command) error {
	opts := []config.LoadOption{config.WithFlags(cmd.Flags(), flagKeys)}
	if c.configFile != "" {
		opts = append(opts, config.WithProjectConfig(c.configFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = logger

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logging.IntoContext(ctx, logger))
	return nil
}

// execute runs the command tree with args and returns the exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", exit.err)
		}
		return exit.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}
