package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/consumer-contracts/internal/contract"
	"github.com/ShayCichocki/consumer-contracts/internal/logging"
	"github.com/ShayCichocki/consumer-contracts/internal/metrics"
	"github.com/ShayCichocki/consumer-contracts/internal/runner"
	"github.com/ShayCichocki/consumer-contracts/internal/watch"
)

func newWatchCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [files...]",
		Short: "Continuously validate contracts",
		Long: `Watch runs the contracts now, then again every watch.interval and
whenever a contract file under contracts.dir changes. A report is printed
after every run.

With watch.metrics_addr set, results are exported for Prometheus at
http://<addr>/metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			interval := c.cfg.Watch.Interval
			if cmd.Flags().Changed("interval") {
				interval, _ = cmd.Flags().GetDuration("interval")
			}
			addr := c.cfg.Watch.MetricsAddr
			if cmd.Flags().Changed("metrics-addr") {
				addr, _ = cmd.Flags().GetString("metrics-addr")
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			m, err := metrics.New(reg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			f, err := c.formatter(out)
			if err != nil {
				return err
			}

			var w *watch.Watcher
			opts := []watch.Option{
				watch.WithInterval(interval),
				watch.WithReport(func(b *runner.BatchResult) {
					c.logger.V(logging.DEBUG).Info("Reporting watch run", "contracts", len(w.Contracts()), "results", b.TotalCompleted)
					if err := f.Format(out, b); err != nil {
						c.logger.Error(err, "Writing report failed")
					}
				}),
			}
			// Explicit files are re-read on the interval only.
			if len(args) == 0 {
				opts = append(opts, watch.WithDir(c.cfg.Contracts.Dir))
			}
			l := c.newLoader()
			w = watch.New(
				func(context.Context) ([]*contract.Contract, error) { return c.load(l, args) },
				runner.New(
					runner.WithConcurrency(c.cfg.Run.Concurrency),
					runner.WithRecorder(m),
					runner.WithLogger(c.logger),
				),
				opts...,
			)

			g, ctx := errgroup.WithContext(cmd.Context())
			if addr != "" {
				g.Go(func() error { return metrics.Serve(ctx, addr, reg, c.logger) })
			}
			g.Go(func() error { return w.Run(ctx) })
			if err := g.Wait(); err != nil {
				return &exitError{code: 1, err: err}
			}
			return nil
		},
	}
	cmd.Flags().Duration("interval", 0, "Time between runs (default from watch.interval)")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}
