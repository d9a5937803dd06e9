/*
ewbik solves rig files and prints the corrected pose. With -watch it keeps
solving and reloads rigs when they change; with -demo it runs the testbed.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spaghettifunk/ewbik/engine"
	"github.com/spaghettifunk/ewbik/engine/assets/loaders"
	"github.com/spaghettifunk/ewbik/engine/core"
	"github.com/spaghettifunk/ewbik/testbed"
)

type options struct {
	rigs        []string
	format      string
	printChains bool
	watch       bool
	demo        bool
	metricsAddr string
	logLevel    string
	tickRate    float64
	workers     int
	seed        uint64
	traceFits   bool
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("ewbik", flag.ContinueOnError)
	rigs := fs.String("rig", "", "comma separated rig files or URLs (.toml, .yaml, .json)")
	fs.StringVar(&opts.format, "format", loaders.FormatJSON, "pose output format: json, yaml or toml")
	fs.BoolVar(&opts.printChains, "print-chains", false, "print the segment tree of every rig")
	fs.BoolVar(&opts.watch, "watch", false, "keep solving and reload rigs when their files change")
	fs.BoolVar(&opts.demo, "demo", false, "run the two-armed testbed demo")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, e.g. :9090")
	fs.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	fs.Float64Var(&opts.tickRate, "tick-rate", 60, "ticks per second with -watch or -demo")
	fs.IntVar(&opts.workers, "workers", 0, "rigs solved in parallel, 0 for one per CPU")
	fs.Uint64Var(&opts.seed, "seed", 1, "random seed of the demo targets")
	fs.BoolVar(&opts.traceFits, "trace-fits", false, "log every bone fit at debug level")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *rigs != "" {
		for _, r := range strings.Split(*rigs, ",") {
			if r = strings.TrimSpace(r); r != "" {
				opts.rigs = append(opts.rigs, r)
			}
		}
	}
	if len(opts.rigs) == 0 && !opts.demo {
		return nil, fmt.Errorf("no rig given, use -rig or -demo")
	}
	return opts, nil
}

func (o *options) config() (*engine.ApplicationConfig, error) {
	level, err := core.ParseLogLevel(o.logLevel)
	if err != nil {
		return nil, err
	}
	return &engine.ApplicationConfig{
		Name:      "ewbik",
		LogLevel:  level,
		Rigs:      o.rigs,
		Watch:     o.watch,
		TickRate:  o.tickRate,
		Workers:   o.workers,
		TraceFits: o.traceFits,
	}, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// signal channel to capture system calls
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, opts); err != nil {
		core.LogFatal(err.Error())
	}
}

func run(ctx context.Context, opts *options) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}

	if opts.metricsAddr != "" {
		srv := serveMetrics(opts.metricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	host := &engine.Host{ApplicationConfig: cfg}
	if opts.demo {
		host = testbed.NewDemo(cfg, opts.seed).Host
	} else if opts.watch {
		host.FnSolved = logResults
	}

	e, err := engine.New(host)
	if err != nil {
		return err
	}
	defer e.Shutdown()

	if err := e.Initialize(ctx); err != nil {
		return err
	}

	if opts.printChains {
		for _, rig := range e.Rigs() {
			fmt.Printf("%s:\n%s", rig.Name, rig.Task.Root().DebugString())
		}
	}

	if opts.demo || opts.watch {
		return e.Run(ctx)
	}

	results, err := e.Tick(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
		core.LogInfo("rig '%s': residual %.6f -> %.6f in %d iteration(s)", r.Rig, r.Stats.Initial, r.Stats.Residual, r.Stats.Iterations)
		out, err := loaders.ExportPose(e.Rig(r.Rig).Skeleton, opts.format)
		if err != nil {
			return err
		}
		os.Stdout.Write(out)
	}
	return nil
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			core.LogError("metrics server stopped: %s", err.Error())
		}
	}()
	core.LogInfo("serving metrics on %s/metrics", addr)
	return srv
}

func logResults(results []engine.SolveResult, deltaTime float64) error {
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		core.LogDebug("rig '%s' (task %s): residual %.6f", r.Rig, r.Task.Short(), r.Stats.Residual)
	}
	return nil
}
