package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/brane-run/brane/checker"
	"github.com/brane-run/brane/config"
	"github.com/brane-run/brane/emit"
	"github.com/brane-run/brane/planner"
	"github.com/brane-run/brane/registry"
	"github.com/brane-run/brane/session"
	"github.com/brane-run/brane/transport/api"
	"github.com/brane-run/brane/transport/drv"
	"github.com/brane-run/brane/transport/job"
	"github.com/brane-run/brane/transport/plr"
	"github.com/brane-run/brane/transport/reg"
	"github.com/brane-run/brane/wir"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the services this node's kind names (spec.md §6)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logEmitter := emit.NewLogEmitter(os.Stdout, true)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	var emitter emit.Emitter = logEmitter
	if cfg.MetricsBind != "" {
		metricsReg := prometheus.NewRegistry()
		metrics := emit.NewPrometheusMetrics(metricsReg)
		emitter = emit.NewMultiEmitter(logEmitter, metrics)
		g.Go(func() error {
			return serveHTTP(gctx, cfg.MetricsBind, promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
		})
	}

	switch cfg.Kind {
	case config.KindCentral:
		g.Go(func() error { return serveCentral(gctx, cfg, emitter) })
	case config.KindWorker:
		g.Go(func() error { return serveWorker(gctx, cfg, emitter) })
	default:
		return fmt.Errorf("braned: serving a %q node is not yet supported", cfg.Kind)
	}
	return g.Wait()
}

// serveCentral starts the central node's three services: api, drv, plr
// (spec.md §6, §2). All three share one registry.Client, pointed at the
// api service's own external address, since the central node is its own
// source of truth for locations and capabilities.
func serveCentral(ctx context.Context, cfg *config.Config, emitter emit.Emitter) error {
	regs, err := api.LoadInfraList(cfg.InfraListPath)
	if err != nil {
		return err
	}
	infra := api.NewInfraStore()
	universe := make([]wir.Location, 0, len(regs))
	for _, r := range regs {
		infra.Register(r)
		universe = append(universe, r.Location)
	}

	keys, err := loadKeySet(cfg.PolicySecretPath)
	if err != nil {
		return err
	}

	regClient := registry.NewClient(cfg.Services.API.External)
	regClient.TTL = cfg.LocationCacheTTL.Duration
	checkerClient := checker.NewHTTPClient(keys, "braned", string(config.KindCentral), regClient)
	pl := planner.New(regClient, checkerClient)
	pl.Emitter = emitter

	sessions := session.NewRegistry(cfg.SessionIdleTimeout.Duration, time.Minute)
	jobDialer := job.NewDialer(regClient)
	packages := api.NewPackageStore()
	datasets := api.NewDatasetStore()

	drvServer := drv.NewServer(sessions, pl, jobDialer, regClient, packages, universe)
	plrServer := plr.NewServer(pl, emitter)
	apiServer := api.NewServer(packages, datasets, infra, emitter)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serveHTTP(gctx, cfg.Services.API.Bind, apiServer) })
	g.Go(func() error { return serveHTTP(gctx, cfg.Services.Plr.Bind, plrServer) })
	g.Go(func() error { return serveGRPC(gctx, cfg.Services.Drv.Bind, &drv.ServiceDesc, drvServer) })
	return g.Wait()
}

// serveWorker starts a worker node's three services: reg, job, chk
// (spec.md §6, §2). Its registry.Client dials the central node named by
// CentralAPIAddr to resolve other domains' addresses.
func serveWorker(ctx context.Context, cfg *config.Config, emitter emit.Emitter) error {
	keys, err := loadKeySet(cfg.PolicySecretPath)
	if err != nil {
		return err
	}
	policyDoc, err := os.ReadFile(cfg.PolicyDocPath)
	if err != nil {
		return fmt.Errorf("braned: reading policy doc %s: %w", cfg.PolicyDocPath, err)
	}
	policies, err := checker.NewPolicySet(policyDoc)
	if err != nil {
		return fmt.Errorf("braned: loading policy doc %s: %w", cfg.PolicyDocPath, err)
	}

	regClient := registry.NewClient(cfg.CentralAPIAddr)
	regClient.TTL = cfg.LocationCacheTTL.Duration
	checkerClient := checker.NewHTTPClient(keys, "braned", cfg.Location, regClient)

	domain := wir.Location(cfg.Location)
	regServer := reg.NewServer(domain, reg.NewMemStore(), reg.NewMemStore(), checkerClient, emitter)

	dispatcher := job.NewDispatcher(
		&job.ContainerExecutor{WorkDir: cfg.DataDir},
		job.UnsupportedExecutor{Kind: "inline"},
		job.UnsupportedExecutor{Kind: "cwl"},
	)
	jobServer := job.NewServer(dispatcher, emitter)
	chkServer := checker.NewServer(keys, policies, emitter)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serveHTTP(gctx, cfg.Services.Reg.Bind, regServer) })
	g.Go(func() error { return serveHTTP(gctx, cfg.Services.Chk.Bind, chkServer) })
	g.Go(func() error { return serveGRPC(gctx, cfg.Services.Job.Bind, &job.ServiceDesc, jobServer) })
	return g.Wait()
}

func loadKeySet(path string) (*checker.KeySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("braned: reading policy secret %s: %w", path, err)
	}
	keys, err := checker.LoadKeySet(data)
	if err != nil {
		return nil, fmt.Errorf("braned: loading policy secret %s: %w", path, err)
	}
	return keys, nil
}

// serveHTTP runs an HTTP server on addr until ctx is cancelled, then drains
// it with a bounded grace period (spec.md §6's exit-code contract expects a
// clean shutdown, not an abrupt kill).
func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("braned: serving %s: %w", addr, err)
		}
		return nil
	}
}

// serveGRPC runs a hand-rolled gRPC service (drv or job) on addr until ctx
// is cancelled.
func serveGRPC(ctx context.Context, addr string, desc *grpc.ServiceDesc, impl interface{}) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("braned: listening on %s: %w", addr, err)
	}
	srv := grpc.NewServer()
	srv.RegisterService(desc, impl)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	select {
	case <-ctx.Done():
		srv.GracefulStop()
		return nil
	case err := <-errCh:
		return fmt.Errorf("braned: serving %s: %w", addr, err)
	}
}
