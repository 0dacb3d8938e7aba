package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"grimm.is/pfw/internal/api"
	"grimm.is/pfw/internal/config"
	"grimm.is/pfw/internal/events"
	"grimm.is/pfw/internal/logging"
	"grimm.is/pfw/internal/metrics"
	"grimm.is/pfw/internal/ratelimit"
	"grimm.is/pfw/internal/rules"
	"grimm.is/pfw/internal/store"
)

var serveFlags struct {
	listen    string
	storeKind string
	storePath string
	strict    bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rule store service",
	Long: `Serve the rule store HTTP API until interrupted.

Rules are kept in memory, in a JSON file or in SQLite depending on the
store block of the config file or --store. Flags override the config file,
which overrides the environment defaults.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := applyServeFlags(cmd, cfg); err != nil {
			return err
		}
		logger, err := newLogger(cfg, os.Stderr)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return RunServe(ctx, ServeOptions{
			Config:  cfg,
			Logger:  logger,
			Metrics: metrics.Get(),
		})
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveFlags.listen, "listen", "l", "", "Listen address (host:port)")
	f.StringVar(&serveFlags.storeKind, "store", "", "Store backend: memory, file or sqlite")
	f.StringVar(&serveFlags.storePath, "path", "", "Rules file or database path")
	f.BoolVar(&serveFlags.strict, "strict", false, "Reject rules with unknown actions, protocols or bad addresses")
}

// applyServeFlags copies changed flags over cfg and re-validates.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("listen") {
		cfg.Server.Listen = serveFlags.listen
	}
	if f.Changed("store") {
		if cfg.Store.Kind != serveFlags.storeKind && !f.Changed("path") {
			cfg.Store.Path = ""
		}
		cfg.Store.Kind = serveFlags.storeKind
	}
	if f.Changed("path") {
		cfg.Store.Path = serveFlags.storePath
	}
	if f.Changed("strict") {
		cfg.Store.Strict = serveFlags.strict
	}
	cfg.ApplyDefaults()
	if errs := cfg.Validate().Errors(); errs.HasErrors() {
		return fmt.Errorf("invalid config: %w", errs)
	}
	return nil
}

// ServeOptions configures RunServe.
type ServeOptions struct {
	Config  *config.Config
	Logger  *logging.Logger
	Metrics *metrics.Registry
	// Ready, when set, is called with the bound address before serving.
	Ready func(net.Addr)
}

// RunServe opens the store and serves the API until ctx is canceled.
func RunServe(ctx context.Context, opts ServeOptions) error {
	cfg, logger, reg := opts.Config, opts.Logger, opts.Metrics
	if logger == nil {
		logger = logging.Default()
	}
	if reg == nil {
		reg = metrics.NewIsolated()
	}
	for _, w := range cfg.Validate().Warnings() {
		logger.Warn("config warning", "field", w.Field, "message", w.Message)
	}

	st, err := store.Open(store.Options{Kind: store.Kind(cfg.Store.Kind), Path: cfg.Store.Path})
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Kind, err)
	}
	defer st.Close()
	if n, err := st.Len(ctx); err == nil {
		reg.SetRuleCount(n)
	}

	var limiter *ratelimit.Limiter
	if n, every := cfg.Server.RateLimit.Limit(); n > 0 {
		limiter = ratelimit.NewLimiter(n, every, nil)
		reg.RegisterRateLimitKeys(limiter.Len)
	}
	mode := rules.Lenient
	if cfg.Store.Strict {
		mode = rules.Strict
	}

	hub := events.NewHub()
	reg.RegisterEventStats(hub.Stats)
	reg.RegisterUptime(time.Now())

	srv, err := api.NewServer(api.ServerOptions{
		Store:       store.WithRecorder(st, reg),
		Hub:         hub,
		Logger:      logger.WithComponent("api"),
		Metrics:     reg,
		Limiter:     limiter,
		Keys:        api.NewKeyChecker(cfg.Server.APIKeys),
		Config:      api.ServerConfigFrom(cfg.Server),
		CORSOrigins: cfg.Server.CORSOrigins,
		Mode:        mode,
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Listen, err)
	}
	if cfg.Server.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConnections)
	}
	logger.Info("rule store ready",
		"addr", ln.Addr().String(),
		"store", cfg.Store.Kind,
		"path", cfg.Store.Path,
		"mode", mode.String(),
		"auth", len(cfg.Server.APIKeys) > 0,
	)
	if opts.Ready != nil {
		opts.Ready(ln.Addr())
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ctx, ln)
	})
	if limiter != nil {
		g.Go(func() error {
			limiter.RunCleanup(ctx, time.Minute, 10*time.Minute)
			return nil
		})
	}
	return g.Wait()
}
