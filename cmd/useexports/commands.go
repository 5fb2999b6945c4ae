package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/elliots/useexports/internal/config"
	"github.com/elliots/useexports/internal/driver"
	"github.com/elliots/useexports/internal/metrics"
	"github.com/elliots/useexports/internal/server"
)

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func newServeCmd(f *flags) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer transform requests on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(f)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			m := metrics.New()
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", m.Handler())
				srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						e.logger.Error("metrics server stopped", "err", err)
					}
				}()
				defer srv.Close()
				e.logger.Info("serving metrics", "addr", metricsAddr)
			}

			s := server.New(&server.Options{
				In:      cmd.InOrStdin(),
				Out:     cmd.OutOrStdout(),
				Cwd:     f.cwd,
				Config:  e.config,
				Logger:  e.logger,
				Metrics: m,
			})
			return s.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}

type transformFlags struct {
	emit              string
	output            string
	outDir            string
	sourceMaps        bool
	concurrency       int
	watch             bool
	exportsIdentifier string
	functionVariables bool
	ignore            []string
}

func (tf *transformFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("emit") {
		cfg.Emit = tf.emit
	}
	if fl.Changed("output") {
		cfg.Output = tf.output
	}
	if fl.Changed("out-dir") {
		cfg.OutDir = tf.outDir
	}
	if fl.Changed("source-maps") {
		cfg.SourceMaps = tf.sourceMaps
	}
	if fl.Changed("concurrency") {
		cfg.Concurrency = tf.concurrency
	}
	if fl.Changed("exports-identifier") {
		cfg.ExportsIdentifier = tf.exportsIdentifier
	}
	if fl.Changed("function-variables") {
		cfg.FunctionVariables = tf.functionVariables
	}
	cfg.IgnoreNames = append(cfg.IgnoreNames, tf.ignore...)
}

func newTransformCmd(f *flags) *cobra.Command {
	tf := &transformFlags{}
	cmd := &cobra.Command{
		Use:   "transform [files...]",
		Short: "Rewrite files, or the project's files when none are given",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(f)
			if err != nil {
				return err
			}
			tf.apply(cmd, e.config)
			if e.config.OutDir == "" && e.project != nil {
				e.config.OutDir = e.project.OutDir
			}
			if err := e.config.Validate(); err != nil {
				return err
			}
			t, err := e.transformer()
			if err != nil {
				return err
			}
			files, err := e.files(f.cwd, args)
			if err != nil {
				return err
			}

			opts := driver.Options{
				Emit:        e.config.Emit,
				Output:      e.config.Output,
				OutDir:      e.config.OutDir,
				SourceMaps:  e.config.SourceMaps,
				Concurrency: e.config.Concurrency,
			}
			if e.project != nil {
				opts.RootDir = e.project.RootDir
			}
			if opts.RootDir == "" {
				opts.RootDir = f.cwd
			}
			d := driver.New(t, opts, driver.WithLogger(e.logger), driver.WithStdout(cmd.OutOrStdout()))

			ctx, cancel := signalContext(cmd)
			defer cancel()
			if tf.watch {
				return d.Watch(ctx, files, nil)
			}
			results, err := d.Run(ctx, files)
			if err != nil {
				return err
			}
			return failures(results)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&tf.emit, "emit", config.EmitSource, "source or commonjs")
	fl.StringVarP(&tf.output, "output", "o", config.OutputStdout, "stdout, dir or diff")
	fl.StringVar(&tf.outDir, "out-dir", "", "output directory for --output dir (default: compilerOptions.outDir)")
	fl.BoolVar(&tf.sourceMaps, "source-maps", false, "write source maps for rewritten sources")
	fl.IntVarP(&tf.concurrency, "concurrency", "j", 0, "files transformed in parallel (default: GOMAXPROCS)")
	fl.BoolVarP(&tf.watch, "watch", "w", false, "transform again when files change")
	fl.StringVar(&tf.exportsIdentifier, "exports-identifier", "", "identifier of the exports table")
	fl.BoolVar(&tf.functionVariables, "function-variables", false, "also rewrite exported const functions")
	fl.StringSliceVar(&tf.ignore, "ignore", nil, "exported names to leave alone, glob patterns")
	return cmd
}

func newCheckCmd(f *flags) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "check [files...]",
		Short: "Report what transform would rewrite and what it leaves alone",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(f)
			if err != nil {
				return err
			}
			t, err := e.transformer()
			if err != nil {
				return err
			}
			files, err := e.files(f.cwd, args)
			if err != nil {
				return err
			}

			d := driver.New(t, driver.Options{Output: driver.OutputNone, Concurrency: e.config.Concurrency}, driver.WithLogger(e.logger))
			ctx, cancel := signalContext(cmd)
			defer cancel()
			results, err := d.Run(ctx, files)
			if err != nil {
				return err
			}
			report(cmd, f.cwd, results, verbose)
			return failures(results)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every occurrence left alone")
	return cmd
}

func report(cmd *cobra.Command, cwd string, results []*driver.FileResult, verbose bool) {
	w := cmd.OutOrStdout()
	for _, r := range results {
		name := r.FileName
		if rel, err := filepath.Rel(cwd, name); err == nil {
			name = rel
		}
		if r.Err != nil {
			fmt.Fprintf(w, "%s: error: %v\n", name, r.Err)
			continue
		}
		res := r.Output.Result
		fmt.Fprintf(w, "%s: %d exported, %d rewritten, %d left alone\n", name, len(res.Exports), len(res.Rewritten), len(res.Rejected))
		if !verbose {
			continue
		}
		for _, rej := range res.Rejected {
			line, col := r.Output.File.LineCol(rej.Pos)
			fmt.Fprintf(w, "  %d:%d %s (%s)\n", line, col+1, rej.LocalName, rej.Reason)
		}
	}
}

func failures(results []*driver.FileResult) error {
	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return errors.Newf("%d of %d files failed", failed, len(results))
	}
	return nil
}
