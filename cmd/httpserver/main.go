package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruteri/redact-client/cmd/flags"
	"github.com/ruteri/redact-client/cryptoutils"
	"github.com/ruteri/redact-client/httpserver"
	"github.com/ruteri/redact-client/interfaces"
	"github.com/ruteri/redact-client/kms"
	"github.com/ruteri/redact-client/metrics"
	"github.com/ruteri/redact-client/relayer"
	"github.com/ruteri/redact-client/render"
	"github.com/ruteri/redact-client/resolver"
	"github.com/ruteri/redact-client/session"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

var serverFlags = []cli.Flag{
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "listen-addr",
		Value:   "127.0.0.1:8080",
		EnvVars: flags.EnvVars("LISTEN_ADDR"),
		Usage:   "address to listen on for pages",
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "tls-cert",
		EnvVars: flags.EnvVars("TLS_CERT"),
		Usage:   "certificate file; serves HTTPS together with --tls-key",
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "tls-key",
		EnvVars: flags.EnvVars("TLS_KEY"),
		Usage:   "key for --tls-cert",
	}),
	altsrc.NewBoolFlag(&cli.BoolFlag{
		Name:    "cookie-secure",
		Value:   true,
		EnvVars: flags.EnvVars("COOKIE_SECURE"),
		Usage:   "mark the session cookie Secure; browsers accept such cookies over plain HTTP only from loopback addresses, so disable it or set --tls-cert/--tls-key when listening elsewhere",
	}),
	altsrc.NewDurationFlag(&cli.DurationFlag{
		Name:    "session-ttl",
		Value:   session.DefaultTTL,
		EnvVars: flags.EnvVars("SESSION_TTL"),
		Usage:   "lifetime of a session and its token",
	}),
	altsrc.NewBoolFlag(&cli.BoolFlag{
		Name:    "single-use-tokens",
		Value:   false,
		EnvVars: flags.EnvVars("SINGLE_USE_TOKENS"),
		Usage:   "replace the session after every secure request",
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "redis-url",
		EnvVars: flags.EnvVars("REDIS_URL"),
		Usage:   "keep sessions in redis instead of process memory",
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "templates-dir",
		EnvVars: flags.EnvVars("TEMPLATES_DIR"),
		Usage:   "directory with unsecure and secure templates overriding the built-in ones",
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "relay-client-cert",
		EnvVars: flags.EnvVars("RELAY_CLIENT_CERT"),
		Usage:   "client certificate for relay and proxy requests; a throwaway one is generated when empty",
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "relay-client-key",
		EnvVars: flags.EnvVars("RELAY_CLIENT_KEY"),
		Usage:   "key for --relay-client-cert",
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "relay-ca",
		EnvVars: flags.EnvVars("RELAY_CA"),
		Usage:   "CA bundle used to verify relay hosts",
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "relay-user-id",
		Value:   "redact-client",
		EnvVars: flags.EnvVars("RELAY_USER_ID"),
		Usage:   "userId sent with relay notifications",
	}),
	altsrc.NewDurationFlag(&cli.DurationFlag{
		Name:    "relay-timeout",
		Value:   10 * time.Second,
		EnvVars: flags.EnvVars("RELAY_TIMEOUT"),
		Usage:   "timeout of relay and proxy requests",
	}),
	altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
		Name:    "allowed-origins",
		EnvVars: flags.EnvVars("ALLOWED_ORIGINS"),
		Usage:   "CORS origins allowed to call the proxy route; empty allows any",
	}),
	altsrc.NewBoolFlag(&cli.BoolFlag{
		Name:    "bootstrap-default-key",
		Value:   true,
		EnvVars: flags.EnvVars("BOOTSTRAP_DEFAULT_KEY"),
		Usage:   "create the default key at startup when it is missing",
	}),
}

func allFlags() []cli.Flag {
	all := []cli.Flag{flags.ConfigFlag}
	all = append(all, serverFlags...)
	all = append(all, flags.StoreFlags...)
	all = append(all, flags.CommonFlags...)
	return all
}

func main() {
	all := allFlags()
	app := &cli.App{
		Name:   "redact-client",
		Usage:  "Serve private data into third-party pages",
		Flags:  all,
		Before: flags.LoadConfigFile(all),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx := cCtx.Context

	records, err := flags.OpenRecordStore(cCtx, logger)
	if err != nil {
		logger.Error("Failed to open storage", "err", err)
		return err
	}

	engineCfg, err := flags.EngineConfig(cCtx)
	if err != nil {
		return err
	}

	if engineCfg.DefaultKeyPath != "" && cCtx.Bool("bootstrap-default-key") {
		deriver, err := flags.BuildKMS(cCtx)
		if err != nil {
			logger.Error("Failed to set up KMS", "err", err)
			return err
		}
		if _, err := kms.BootstrapDefaultKey(ctx, records, engineCfg.DefaultKeyPath, engineCfg.DefaultAlgorithm, deriver, logger); err != nil {
			logger.Error("Failed to bootstrap default key", "err", err)
			return err
		}
	}

	engine := resolver.NewEngine(records, cryptoutils.NewSuite(), engineCfg, logger)

	sessionStore, closeStore, err := openSessionStore(ctx, cCtx.String("redis-url"), logger)
	if err != nil {
		logger.Error("Failed to open session store", "err", err)
		return err
	}
	defer closeStore()
	sessions := session.NewManager(sessionStore, cCtx.Duration("session-ttl"), logger)

	renderer, err := render.NewTemplateRenderer(cCtx.String("templates-dir"))
	if err != nil {
		logger.Error("Failed to load templates", "err", err)
		return err
	}

	relayTLS, err := relayTLSConfig(cCtx)
	if err != nil {
		logger.Error("Failed to configure relay TLS", "err", err)
		return err
	}
	relay := relayer.NewMutualTLSRelayer(relayTLS, cCtx.String("relay-user-id"), cCtx.Duration("relay-timeout"), logger)

	cfg := flags.ConfigureServer(cCtx, logger, cCtx.String("listen-addr"))
	cfg.TLSCertFile = cCtx.String("tls-cert")
	cfg.TLSKeyFile = cCtx.String("tls-key")
	cfg.AllowedOrigins = cCtx.StringSlice("allowed-origins")
	if cCtx.Bool("cookie-secure") && cfg.TLSCertFile == "" && !isLoopbackListener(cfg.ListenAddr) {
		logger.Warn("Secure session cookie over plain HTTP on a non-loopback address; browsers will drop it",
			"listenAddr", cfg.ListenAddr)
	}
	cfg.HealthCheck = func(ctx context.Context) error {
		if !records.Backend().Available(ctx) {
			return interfaces.ErrBackendUnavailable
		}
		return nil
	}

	handlerCfg := httpserver.HandlerConfig{
		CookieMaxAge:    cCtx.Duration("session-ttl"),
		CookieSecure:    cCtx.Bool("cookie-secure"),
		SingleUseTokens: cCtx.Bool("single-use-tokens"),
	}

	server, err := httpserver.New(cfg, func(collectors *metrics.Collectors) *httpserver.Handler {
		return httpserver.NewHandler(sessions, engine, renderer, relay, collectors, handlerCfg, logger)
	})
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

// isLoopbackListener reports whether addr only accepts connections from the
// local machine, where browsers treat plain HTTP as a secure context.
func isLoopbackListener(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func openSessionStore(ctx context.Context, redisURL string, logger *slog.Logger) (interfaces.SessionStore, func(), error) {
	if redisURL != "" {
		store, err := session.NewRedisStoreFromURL(ctx, redisURL, session.DefaultRedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using redis session store")
		return store, func() { _ = store.Close() }, nil
	}

	store := session.NewMemoryStore()
	sweepCtx, cancel := context.WithCancel(ctx)
	go store.RunSweeper(sweepCtx, time.Minute)
	logger.Info("Using in-memory session store")
	return store, cancel, nil
}

func relayTLSConfig(cCtx *cli.Context) (*tls.Config, error) {
	certFile, keyFile := cCtx.String("relay-client-cert"), cCtx.String("relay-client-key")
	if certFile != "" || keyFile != "" {
		return cryptoutils.ClientTLSConfig(certFile, keyFile, cCtx.String("relay-ca"))
	}
	if cCtx.String("relay-ca") != "" {
		return nil, errors.New("--relay-ca requires --relay-client-cert and --relay-client-key")
	}

	cert, err := cryptoutils.RandomCert("redact-client")
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
