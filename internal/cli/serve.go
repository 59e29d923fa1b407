package cli

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/sanonone/irishnsw/internal/server"
	"github.com/sanonone/irishnsw/pkg/engine"
	"github.com/sanonone/irishnsw/pkg/iris"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

type serveFlags struct {
	addr          string
	qps           float64
	flushInterval time.Duration
}

func (a *app) serveCmd() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:     "serve-metrics",
		Aliases: []string{"serve"},
		Short:   "Serve /metrics, /stats and experiment endpoints over HTTP",
		Long: `Open the database and serve it over HTTP until interrupted.

Endpoints:
  GET  /healthz                 liveness
  GET  /metrics                 Prometheus metrics
  GET  /stats                   index parameters, layers and counters
  POST /probe                   search with a noisy copy of an enrolled template
  POST /system/save             write a snapshot
  POST /experiments/threshold   start a background identification run
  GET  /tasks/{id}              poll a background run

With --qps, a load generator keeps identifying noisy probes so the search
metrics move.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.addr == "" {
				f.addr = a.cfg.Metrics.Addr
			}
			return a.runServe(cmd.Context(), f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.addr, "addr", "", "listen address (defaults to metrics.addr)")
	fl.Float64Var(&f.qps, "qps", 0, "probes per second of the load generator (0 disables it)")
	fl.DurationVar(&f.flushInterval, "flush-interval", 5*time.Second, "how often index counters are published")
	return cmd
}

func (a *app) runServe(ctx context.Context, f serveFlags) error {
	eng, err := a.openEngine(true)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			a.logger.Error("failed to close engine", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := server.NewServer(eng, f.addr, a.cfg.Search, a.logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	if f.qps > 0 {
		go a.generateLoad(ctx, eng, f.qps)
	}

	ticker := time.NewTicker(max(f.flushInterval, 100*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case err := <-errCh:
			return err
		case <-ticker.C:
			eng.FlushMetrics()
		case <-ctx.Done():
			err := srv.Shutdown(context.Background())
			eng.FlushMetrics()
			return err
		}
	}
}

// generateLoad identifies noisy probes of random enrolled templates at qps
// until ctx is done.
func (a *app) generateLoad(ctx context.Context, eng *engine.Engine, qps float64) {
	limiter := rate.NewLimiter(rate.Limit(qps), 1)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	search := a.cfg.Search
	maxRot := eng.Matcher().MaxRotation()

	var probes, hits int
	for {
		if err := limiter.Wait(ctx); err != nil {
			a.logger.Info("load generator stopped", "probes", probes, "identified", hits)
			return
		}
		n := eng.Len()
		if n == 0 {
			continue
		}
		target := uint32(rng.Intn(n))
		tpl, err := eng.Template(target)
		if err != nil {
			a.logger.Warn("load generator", "error", err)
			continue
		}
		if maxRot > 0 {
			tpl = tpl.Rotated(rng.Intn(2*maxRot+1) - maxRot)
		}
		m, found, err := eng.Identify(iris.WithNoise(rng, tpl, search.NoiseLevel), search.Ef, search.Threshold)
		if errors.Is(err, engine.ErrClosed) {
			return
		}
		if err != nil {
			a.logger.Warn("load generator", "error", err)
			continue
		}
		probes++
		if found && m.ID == target {
			hits++
		}
	}
}
