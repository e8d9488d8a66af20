package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nao1215/darkcrawl/internal/config"
	"github.com/nao1215/darkcrawl/internal/correlation"
	"github.com/nao1215/darkcrawl/internal/crawler"
	"github.com/nao1215/darkcrawl/internal/database"
	"github.com/nao1215/darkcrawl/internal/dedup"
	"github.com/nao1215/darkcrawl/internal/discovery"
	"github.com/nao1215/darkcrawl/internal/frontier"
	"github.com/nao1215/darkcrawl/internal/metrics"
	"github.com/nao1215/darkcrawl/internal/model"
	"github.com/nao1215/darkcrawl/internal/pipeline"
	"github.com/nao1215/darkcrawl/internal/report"
	"github.com/nao1215/darkcrawl/internal/scheduler"
	"github.com/nao1215/darkcrawl/internal/transport"
)

// errNothingToCrawl is returned when there are no seeds and nothing pending.
var errNothingToCrawl = errors.New("nothing to crawl: no seeds given and no pending addresses in the database")

// crawlOptions are the crawl flags that are not part of config.Config.
type crawlOptions struct {
	seeds       []string
	embeddedTor bool
	torTimeout  time.Duration
	untilIdle   bool
	clearDead   bool
	reportPath  string
}

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed...]",
		Short: "Crawl the enabled networks starting from seed addresses",
		Long: `Crawl fetches seed addresses and everything discovered from them across
the enabled networks, one worker pool per network.

Seeds may be any address the crawler recognizes: http://<onion>/,
<name>.b32.i2p, USK@.../site/1/, <name>.loki. The network of each seed must
be enabled. State is stored as the crawl goes; an interrupted crawl resumes
its pending addresses on the next run, with or without new seeds.

Press Ctrl+C to stop. Fetches in flight are finished and stored first.

Examples:
  # Crawl from seeds in a file (one per line, # starts a comment)
  darkcrawl crawl --seeds seeds.txt

  # Resume a previous crawl and stop once nothing is left
  darkcrawl crawl --until-idle

  # Crawl only I2P and Hyphanet, exposing Prometheus metrics
  darkcrawl crawl --network i2p,hyphanet --metrics-addr 127.0.0.1:9100 USK@.../index/3/

  # Start a private Tor daemon instead of using a running one
  darkcrawl crawl --embedded-tor http://<onion>/`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	cmd.Flags().StringP("seeds", "s", "", "File of seed addresses, one per line (- for stdin)")
	cmd.Flags().IntP("depth", "d", 0, "Maximum link depth (overrides general.max_depth)")
	cmd.Flags().StringSliceP("network", "n", nil,
		"Crawl only these networks (overrides enabled in the configuration)")
	cmd.Flags().Bool("embedded-tor", false, "Start an embedded Tor daemon for the tor network")
	cmd.Flags().Duration("tor-timeout", transport.DefaultEmbeddedStartupTimeout,
		"Timeout for embedded Tor startup")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics.listen)")
	cmd.Flags().Bool("until-idle", false, "Stop once every queue is empty and no fetch is in flight")
	cmd.Flags().Bool("clear-dead", false, "Clear the dead letters of every enabled network before crawling")
	cmd.Flags().String("report", "", "Also write the final status to this file (.md, .json or .txt)")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts, err := applyCrawlFlags(cmd, cfg, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	logger := newLogger(cmd, cfg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, finishing fetches in flight...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runCrawl(ctx, cfg, opts, logger, cmd.OutOrStdout())
}

// applyCrawlFlags applies the crawl flags to cfg and collects the rest.
func applyCrawlFlags(cmd *cobra.Command, cfg *config.Config, args []string) (crawlOptions, error) {
	flags := cmd.Flags()
	opts := crawlOptions{seeds: args}

	seedFile, err := flags.GetString("seeds")
	if err != nil {
		return opts, err
	}
	if seedFile != "" {
		seeds, err := readSeedFile(seedFile, cmd.InOrStdin())
		if err != nil {
			return opts, err
		}
		opts.seeds = append(opts.seeds, seeds...)
	}

	depth, err := flags.GetInt("depth")
	if err != nil {
		return opts, err
	}
	if depth > 0 {
		cfg.General.MaxDepth = depth
	}

	networks, err := flags.GetStringSlice("network")
	if err != nil {
		return opts, err
	}
	if len(networks) > 0 {
		if err := selectNetworks(cfg, networks); err != nil {
			return opts, err
		}
	}

	listen, err := flags.GetString("metrics-addr")
	if err != nil {
		return opts, err
	}
	if listen != "" {
		cfg.Metrics.Listen = listen
	}

	if opts.embeddedTor, err = flags.GetBool("embedded-tor"); err != nil {
		return opts, err
	}
	if opts.torTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return opts, err
	}
	if opts.untilIdle, err = flags.GetBool("until-idle"); err != nil {
		return opts, err
	}
	if opts.clearDead, err = flags.GetBool("clear-dead"); err != nil {
		return opts, err
	}
	if opts.reportPath, err = flags.GetString("report"); err != nil {
		return opts, err
	}
	return opts, nil
}

// selectNetworks enables exactly the named networks.
func selectNetworks(cfg *config.Config, names []string) error {
	selected := make(map[string]bool, len(names))
	for _, name := range names {
		network, err := model.ParseNetwork(strings.TrimSpace(name))
		if err != nil {
			return err
		}
		selected[network.String()] = true
	}
	for name := range selected {
		if _, ok := cfg.Networks[name]; !ok {
			cfg.Networks[name] = config.NetworkConfig{}
		}
	}
	for name, nc := range cfg.Networks {
		nc.Enabled = selected[name]
		cfg.Networks[name] = nc
	}
	return nil
}

// readSeedFile reads one seed per line. Blank lines and lines starting with
// # are skipped. "-" reads stdin.
func readSeedFile(path string, stdin io.Reader) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("failed to open seed file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var seeds []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return seeds, nil
}

// runCrawl wires the crawler together, restores the previous run, queues
// the seeds and runs until ctx is canceled or, with untilIdle, until there
// is nothing left to fetch.
func runCrawl(ctx context.Context, cfg *config.Config, opts crawlOptions, logger *slog.Logger, out io.Writer) error {
	db, err := database.Open(cfg.General.DataDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	logger.Info("database opened", "path", db.Path())

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	if cfg.Metrics.Listen != "" {
		stop, err := serveMetrics(cfg.Metrics.Listen, registry, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	enabled := cfg.EnabledNetworks()
	concurrency := make(map[model.Network]int, len(enabled))
	for _, network := range enabled {
		nc, _ := cfg.Network(network)
		concurrency[network] = nc.MaxConcurrency
	}

	seen := dedup.New(cfg.Frontier.BloomCapacity, cfg.Frontier.BloomFPRate,
		dedup.WithStore(db),
		dedup.WithLogger(logger),
		dedup.WithFalsePositiveHook(m.FalsePositive),
	)
	front := frontier.New(frontier.Config{
		MaxDepth:              cfg.General.MaxDepth,
		MaxPagesPerDomain:     cfg.General.MaxPagesPerDomain,
		BackpressureThreshold: cfg.Frontier.BackpressureThreshold,
		Networks:              concurrency,
	}, seen, frontier.WithLogger(logger), frontier.WithMetrics(m))
	defer front.Close()

	d := cfg.Discovery
	p := pipeline.NewCrawlPipeline(pipeline.Deps{
		Discovery: discovery.New(discovery.Config{
			ExplicitLinks:       d.ExplicitLinks,
			SourceMining:        d.SourceMining,
			HeaderAliases:       d.HeaderAliases,
			FormSpidering:       d.FormSpidering,
			InfrastructureProbe: d.InfrastructureProbe,
			PatternMutation:     d.PatternMutation,
			MaxFormVariants:     d.MaxFormVariants,
			MaxEnumerate:        d.MaxEnumerate,
		},
			discovery.WithScope(crawler.NewScope(d.IgnorePatterns, d.FollowPatterns)),
			discovery.WithLogger(logger),
		),
		Correlation: correlation.New(correlation.WithLogger(logger)),
		Frontier:    front,
		Store:       db,
		Tracker:     seen,
		Metrics:     m,
		Logger:      logger,
	})

	var embedded *transport.EmbeddedTor
	if opts.embeddedTor && slices.Contains(enabled, model.NetworkTor) {
		fmt.Fprintln(out, "Starting embedded Tor daemon (this may take a few minutes)...")
		embedded = transport.NewEmbeddedTor(transport.WithStartupTimeout(opts.torTimeout))
		if err := embedded.Start(ctx); err != nil {
			return err
		}
		defer func() {
			logger.Info("stopping embedded Tor daemon...")
			if err := embedded.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}()
		logger.Info("embedded Tor started", "socks", embedded.SocksAddr())
	}

	pools := make(map[model.Network]scheduler.NetworkConfig, len(enabled))
	for _, network := range enabled {
		pc, err := poolConfig(cfg, network, embedded, logger)
		if err != nil {
			return err
		}
		pools[network] = pc
	}

	sched, err := scheduler.New(scheduler.Config{
		Networks:     pools,
		StopWhenIdle: opts.untilIdle,
	}, scheduler.Deps{
		Frontier: front,
		Seen:     seen,
		Store:    db,
		Pipeline: p,
		Metrics:  m,
	}, scheduler.WithLogger(logger))
	if err != nil {
		return err
	}

	clearNetworks := cfg.ClearDeadNetworks()
	if opts.clearDead {
		clearNetworks = enabled
	}
	restored, err := sched.Restore(ctx, clearNetworks...)
	if err != nil {
		return err
	}
	queued, err := sched.Seed(ctx, opts.seeds)
	if err != nil {
		return err
	}

	pending := 0
	for _, network := range enabled {
		pending += front.Len(network)
	}
	if pending == 0 {
		return errNothingToCrawl
	}

	runID, err := db.StartRun(ctx, queued)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Crawling %s: %d seed(s) queued, %d address(es) resumed\n",
		joinNetworks(enabled), queued, restored.Pending)
	start := time.Now()

	runErr := sched.Run(ctx)

	// The run is recorded even when ctx was canceled.
	finishCtx := context.WithoutCancel(ctx)
	if err := db.FinishRun(finishCtx, runID); err != nil {
		logger.Error("failed to finish run", "error", err)
	}
	fmt.Fprintf(out, "Crawl stopped after %s\n\n", time.Since(start).Round(time.Second))

	if err := writeFinalStatus(finishCtx, db, opts.reportPath, out); err != nil {
		logger.Error("failed to write status", "error", err)
	}
	return runErr
}

// poolConfig builds the scheduler pool of network: one fetcher per proxy
// endpoint, or the embedded daemon for tor when it runs.
func poolConfig(cfg *config.Config, network model.Network, embedded *transport.EmbeddedTor, logger *slog.Logger) (scheduler.NetworkConfig, error) {
	nc, _ := cfg.Network(network)

	clientOpts := []transport.ClientOption{
		transport.WithConnectTimeout(nc.ConnectTimeout()),
		transport.WithRequestTimeout(nc.RequestTimeout()),
		transport.WithMaxBodySize(cfg.MaxBodySize()),
		transport.WithUserAgent(cfg.General.UserAgent),
		transport.WithLogger(logger),
	}
	if nc.Cookie != "" {
		clientOpts = append(clientOpts, transport.WithCookie(nc.Cookie))
	}
	if len(nc.Headers) > 0 {
		clientOpts = append(clientOpts, transport.WithHeaders(nc.Headers))
	}

	pc := scheduler.NetworkConfig{
		Concurrency:  nc.MaxConcurrency,
		MinDelay:     nc.MinDelay(),
		MaxRetries:   cfg.MaxRetries(network),
		WaitForProxy: nc.WaitForProxy,
	}

	if network == model.NetworkTor && embedded != nil {
		client, err := embedded.NewClient(clientOpts...)
		if err != nil {
			return pc, err
		}
		pc.Fetchers = []transport.Fetcher{client}
		return pc, nil
	}

	for _, endpoint := range nc.Endpoints(network) {
		client, err := transport.NewClient(network, endpoint, clientOpts...)
		if err != nil {
			return pc, fmt.Errorf("%s proxy %s: %w", network, endpoint, err)
		}
		pc.Fetchers = append(pc.Fetchers, client)
	}
	return pc, nil
}

// serveMetrics serves the registry on addr until the returned stop function
// is called.
func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) (func(), error) {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics: %w", err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "address", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// writeFinalStatus prints the status to out and, when path is set, writes
// it to path in the format of its extension.
func writeFinalStatus(ctx context.Context, db *database.CrawlDB, path string, out io.Writer) error {
	status, err := buildStatus(ctx, db)
	if err != nil {
		return err
	}

	writers := []report.Writer{report.NewSimpleWriter(out)}
	if path != "" {
		f, err := createFile(path)
		if err != nil {
			return err
		}
		defer f.Close()
		fw, err := report.NewWriter(formatForPath(path), f)
		if err != nil {
			return err
		}
		writers = append(writers, fw)
	}

	_, err = report.NewMultiWriter(writers...).WriteStatus(status)
	return err
}

func joinNetworks(networks []model.Network) string {
	names := make([]string, len(networks))
	for i, n := range networks {
		names[i] = n.String()
	}
	return strings.Join(names, ", ")
}
