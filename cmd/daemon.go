package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"proxfw.dev/proxfw/internal/compiler"
	"proxfw.dev/proxfw/internal/config"
	"proxfw.dev/proxfw/internal/logging"
	"proxfw.dev/proxfw/internal/metrics"
	"proxfw.dev/proxfw/internal/nft"
)

// RunDaemon reconciles on-disk config with the kernel until the
// process is told to stop. Every tick reads a fresh snapshot, compiles
// it and applies the result; a failed cycle leaves the previous
// ruleset in place.
func RunDaemon(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	setupLogging(cfg)
	log := logging.Default().WithComponent("daemon")

	interval, err := cfg.Interval()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		server := &http.Server{Addr: cfg.MetricsListen, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics listener failed", "error", err)
			}
		}()
		defer server.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := newLoader(cfg)
	client := nft.NewClient()

	log.Info("reconcile loop starting", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		reconcile(ctx, loader, client, m, log)

		select {
		case <-ctx.Done():
			log.Info("reconcile loop stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// reconcile runs one compile-and-apply cycle. Cancellation is only
// honored between cycles; a cycle in progress runs to completion.
func reconcile(ctx context.Context, loader *config.Loader, client *nft.Client, m *metrics.Metrics, log *logging.Logger) {
	start := time.Now()
	cycleLog := log.With("cycle", uuid.NewString())

	fail := func(stage string, err error) {
		m.CyclesTotal.WithLabelValues("error").Inc()
		cycleLog.Error("reconcile cycle failed", "stage", stage, "error", err)
	}

	input, err := loader.Snapshot()
	if err != nil {
		fail("load", err)
		return
	}

	commands, err := compiler.New(input).Compile()
	if err != nil {
		fail("compile", err)
		return
	}

	if err := client.Apply(context.WithoutCancel(ctx), commands); err != nil {
		fail("apply", err)
		return
	}

	m.CyclesTotal.WithLabelValues("ok").Inc()
	m.CycleDuration.Observe(time.Since(start).Seconds())
	m.RulesetSize.Set(float64(commands.Len()))

	cycleLog.Debug("reconcile cycle finished",
		"commands", commands.Len(),
		"duration", time.Since(start).String())
}
