// Command console runs the decision console: it holds the decision state,
// history archive and report tooling behind a JSON and WebSocket API, and
// talks to the analysis service for verdicts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	otelpyroscope "github.com/grafana/otel-profiling-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/health"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/metrics"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/otelx"
	"github.com/linnemanlabs/go-core/prof"
	v "github.com/linnemanlabs/go-core/version"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/boardroom/internal/analysisclient"
	vc "github.com/linnemanlabs/boardroom/internal/cfg"
	"github.com/linnemanlabs/boardroom/internal/consoleapi"
	"github.com/linnemanlabs/boardroom/internal/history"
	"github.com/linnemanlabs/boardroom/internal/orchestrator"
	"github.com/linnemanlabs/boardroom/internal/report"
	"github.com/linnemanlabs/boardroom/internal/sdnotify"
	"github.com/linnemanlabs/boardroom/internal/supervisor"
)

const appName = "boardroom"
const component = "console"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component
	vi := v.Get()

	var (
		appCfg    vc.ConsoleConfig
		httpCfg   httpserver.Config
		httpmwCfg httpmw.Config
		logCfg    log.Config
		opsCfg    opshttp.Config
		profCfg   prof.Config
		traceCfg  otelx.Config
	)

	appCfg.RegisterFlags(flag.CommandLine)
	httpCfg.RegisterFlags(flag.CommandLine)
	httpmwCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	opsCfg.RegisterFlags(flag.CommandLine)
	profCfg.RegisterFlags(flag.CommandLine)
	traceCfg.RegisterFlags(flag.CommandLine)
	var showVersion bool
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")

	flag.Parse()
	if showVersion {
		fmt.Printf(
			"%s (%s) %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		return nil
	}

	// env vars with prefix CONSOLE_ fill whatever the command line left unset
	cfg.FillFromEnv(flag.CommandLine, "CONSOLE_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(
		appCfg.Validate(),
		httpCfg.Validate(),
		httpmwCfg.Validate(),
		logCfg.Validate(),
		opsCfg.Validate(),
		profCfg.Validate(),
		traceCfg.Validate(),
	); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if appCfg.HTTPPort == opsCfg.Port {
		return fmt.Errorf("http and admin ports must differ (both %d)", appCfg.HTTPPort)
	}

	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	L := lg.With("component", vi.Component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"http_port", appCfg.HTTPPort,
		"admin_port", opsCfg.Port,
		"analysis_url", appCfg.AnalysisURL,
		"analysis_auth", appCfg.AnalysisToken != "",
		"analysis_timeout_seconds", appCfg.AnalysisTimeoutSeconds,
		"export_dir", appCfg.ExportDir,
		"clipboard", appCfg.Clipboard,
		"enable_tracing", traceCfg.EnableTracing,
		"enable_pyroscope", profCfg.EnablePyroscope,
	)

	profOpts := profCfg.ToOptions()
	profOpts.AppName = v.AppName
	profOpts.Tags = map[string]string{
		"app":       v.AppName,
		"component": v.Component,
		"version":   vi.Version,
		"commit":    vi.Commit,
		"build_id":  vi.BuildId,
		"source":    "lmlabs-go-agent",
	}
	stopProf, profErr := prof.Start(ctx, profOpts)
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", profCfg.PyroServer)
	}
	if stopProf != nil {
		defer stopProf()
	}

	traceOpts := traceCfg.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version
	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	if shutdownOtelx != nil {
		defer func() { _ = shutdownOtelx(context.Background()) }()
	}

	// tag spans with profile ids so traces link to pyroscope flame graphs
	if profErr == nil && profCfg.EnablePyroscope {
		otel.SetTracerProvider(otelpyroscope.NewTracerProvider(otel.GetTracerProvider()))
	}

	var m = metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, &vi)
	m.SetProfilingActive(profErr == nil && profCfg.EnablePyroscope)

	// draining during shutdown, fallback once the supervisor trips; either
	// fails readiness so the process gets replaced
	var shutdownGate, fallbackGate health.ShutdownGate
	readiness := health.All(
		shutdownGate.Probe(),
		fallbackGate.Probe(),
	)
	liveness := health.Fixed(true, "")

	// The supervisor lives for the whole process. Once tripped every API
	// call answers with the fallback document until restart.
	fallbackActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "boardroom_console_fallback",
		Help: "1 once the console has entered fallback mode after an unhandled panic.",
	})
	m.Registry().MustRegister(fallbackActive)
	sup := supervisor.New(L, func() {
		fallbackActive.Set(1)
		fallbackGate.Set("fallback")
	})

	client := analysisclient.New(appCfg.AnalysisURL,
		analysisclient.WithToken(appCfg.AnalysisToken),
		analysisclient.WithTimeout(time.Duration(appCfg.AnalysisTimeoutSeconds)*time.Second),
	)

	archive := history.NewIndex(client, L, history.NewMetrics(m.Registry()).Hooks())

	orchHooks := orchestrator.NewMetrics(m.Registry()).Hooks()
	orchHooks.OnPanic = sup.Capture
	orch := orchestrator.New(client, archive, L, orchHooks)

	apiOpts := consoleapi.Options{
		Hooks: consoleapi.NewMetrics(m.Registry()).Hooks(),
	}
	if appCfg.ExportDir != "" {
		apiOpts.Exporter = report.DirExporter{Dir: appCfg.ExportDir}
	}
	if appCfg.Clipboard {
		apiOpts.Clipboard = report.SystemClipboard{}
	}
	consoleHTTP := consoleapi.New(L, orch, archive, apiOpts)

	// initial history load, off the startup path
	sup.Go(ctx, func() {
		n := len(archive.Refresh(ctx))
		L.Info(ctx, "history loaded", "entries", n)
	})

	opsOpts := opsCfg.ToOptions()
	opsOpts.Metrics = m.Handler()
	opsOpts.Health = liveness
	opsOpts.Readiness = readiness
	opsOpts.UseRecoverMW = true
	opsOpts.OnPanic = m.IncHttpPanic

	opsHTTPStop, err := opshttp.Start(ctx, L, opsOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}
	defer func() {
		if err := opsHTTPStop(context.Background()); err != nil {
			L.Error(ctx, err, "failed to stop ops http listener")
		}
	}()

	r := chi.NewRouter()
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())

	r.Get("/-/healthy", health.HealthzHandler(liveness))
	r.Get("/-/ready", health.ReadyzHandler(readiness))

	// everything the console serves goes through the supervisor
	r.Group(func(r chi.Router) {
		r.Use(sup.Middleware)

		// the event stream hijacks the connection, so it stays outside
		// compression and the body limit
		consoleHTTP.RegisterEvents(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5, "application/json", "text/markdown"))
			r.Use(httpmw.MaxBody(6 << 20))
			consoleHTTP.RegisterRoutes(r)
		})
	})

	var h http.Handler = r
	h = httpmw.WithLogger(L)(h)
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/-/healthy" && r.URL.Path != "/-/ready"
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	h = m.Middleware(h)
	h = httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{
		TrustedHops: httpmwCfg.TrustedProxyHops,
	})(h)
	h = httpmw.RequestID("X-Request-Id")(h)
	h = httpmw.Recover(L, nil)(h)
	h = httpmw.SecurityHeaders(h)

	serverOpts, err := httpCfg.ToOptions()
	if err != nil {
		L.Error(ctx, err, "invalid http config")
		return err
	}

	consoleHTTPStop, err := httpserver.Start(ctx, fmt.Sprintf(":%d", appCfg.HTTPPort), h, L, serverOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start console http listener")
		return err
	}
	defer func() {
		if err := consoleHTTPStop(context.Background()); err != nil {
			L.Error(ctx, err, "failed to stop console http listener")
		}
	}()

	if err := sdnotify.Ready(); err != nil {
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()

	L.Info(context.Background(), "shutdown signal received")
	_ = sdnotify.Stopping()
	shutdownGate.Set("draining")

	drainDuration := time.Duration(appCfg.DrainSeconds) * time.Second
	L.Info(context.Background(), "sleeping for drain period", "drain_seconds", appCfg.DrainSeconds)
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainDuration):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	stopFns := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"console http server", consoleHTTPStop},
		{"orchestrator", func(ctx context.Context) error { return waitIdle(ctx, orch) }},
		{"ops http server", opsHTTPStop},
		{"otel", shutdownOtelx},
	}

	budget := time.Duration(appCfg.ShutdownBudgetSeconds) * time.Second
	perComponent := budget / time.Duration(len(stopFns))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	for _, s := range stopFns {
		if s.fn == nil {
			continue
		}
		cctx, ccancel := context.WithTimeout(shutdownCtx, perComponent)
		if err := s.fn(cctx); err != nil {
			L.Error(context.Background(), err, s.name+" shutdown")
		}
		ccancel()
	}

	L.Info(context.Background(), "shutdown complete")
	return nil
}

// waitIdle waits for background analysis and history goroutines, giving up
// when ctx ends. An abandoned analysis result is simply lost.
func waitIdle(ctx context.Context, orch *orchestrator.Orchestrator) error {
	done := make(chan struct{})
	go func() {
		orch.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("analysis still in flight: %w", ctx.Err())
	}
}
