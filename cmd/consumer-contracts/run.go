package main

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/consumer-contracts/internal/contract"
	"github.com/ShayCichocki/consumer-contracts/internal/formatter"
	"github.com/ShayCichocki/consumer-contracts/internal/loader"
	"github.com/ShayCichocki/consumer-contracts/internal/logging"
	"github.com/ShayCichocki/consumer-contracts/internal/runner"
	"github.com/ShayCichocki/consumer-contracts/internal/transport"
)

func newRunCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run [files...]",
		Short: "Run the contracts in the contracts directory (or just the files specified)",
		Long: `Run validates every contract once and prints a report.

With no files, every contract file under contracts.dir is run. The exit
status is 1 when any contract fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			contracts, err := c.load(c.newLoader(), args)
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			out := cmd.OutOrStdout()
			f, err := c.formatter(out)
			if err != nil {
				return err
			}

			r := runner.New(runner.WithConcurrency(c.cfg.Run.Concurrency), runner.WithLogger(c.logger))
			batch := r.Run(cmd.Context(), contracts)
			if err := f.Format(out, batch); err != nil {
				return err
			}
			if code := batch.ExitCode(); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

// contractFiles returns args, or the contract files under the configured
// directory when no args are given.
func (c *cli) contractFiles(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	return loader.Discover(c.cfg.Contracts.Dir, c.cfg.Contracts.Extensions)
}

// newLoader returns a loader whose contracts share one pooled HTTP client.
// Callers that load repeatedly keep the loader so connections are reused.
func (c *cli) newLoader() *loader.Loader {
	client := transport.Normalize(transport.NewHTTPClient(transport.HTTPConfig{
		MaxIdleConnsPerHost: c.cfg.Request.MaxIdleConnsPerHost,
	}))
	return loader.New(
		loader.WithClient(client),
		loader.WithDefaultTimeout(c.cfg.Request.Timeout),
	)
}

// load reads the contracts named by args with l.
func (c *cli) load(l *loader.Loader, args []string) ([]*contract.Contract, error) {
	files, err := c.contractFiles(args)
	if err != nil {
		return nil, err
	}
	c.logger.V(logging.VERBOSE).Info("Loading contracts", "files", len(files))
	return l.LoadFiles(files)
}

func (c *cli) formatter(w io.Writer) (formatter.Formatter, error) {
	return formatter.New(c.cfg.Output.Format, c.cfg.Output.UseColor(isTerminal(w)))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
