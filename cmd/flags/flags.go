package flags

import (
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/redact-client/common"
	"github.com/ruteri/redact-client/cryptoutils"
	"github.com/ruteri/redact-client/httpserver"
	"github.com/ruteri/redact-client/interfaces"
	"github.com/ruteri/redact-client/kms"
	"github.com/ruteri/redact-client/resolver"
	"github.com/ruteri/redact-client/storage"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

// EnvVars returns the environment variable bound to a flag.
func EnvVars(name string) []string {
	return []string{"REDACT_" + name}
}

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// OpenRecordStore builds the descriptor store over the configured storage
// URIs.
func OpenRecordStore(cCtx *cli.Context, logger *slog.Logger) (*storage.RecordStore, error) {
	var locations []interfaces.StorageBackendLocation
	for _, uri := range cCtx.StringSlice(StorageFlag.Name) {
		location, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, err
		}
		locations = append(locations, location)
	}
	if len(locations) == 0 {
		return nil, errors.New("at least one --storage location is required")
	}

	var factory interfaces.StorageBackendFactory = storage.NewStorageBackendFactory(logger)
	certFile, keyFile := cCtx.String(StorageClientCertFlag.Name), cCtx.String(StorageClientKeyFlag.Name)
	if certFile != "" && keyFile != "" {
		factory = factory.WithTLSAuth(func() (tls.Certificate, error) {
			return tls.LoadX509KeyPair(certFile, keyFile)
		})
	}

	backend, err := factory.CreateMultiBackend(locations)
	if err != nil {
		return nil, err
	}
	return storage.NewRecordStore(backend), nil
}

// BuildKMS returns the key deriver configured by --kms-seed or --kms-shares,
// or nil when neither is set.
func BuildKMS(cCtx *cli.Context) (interfaces.KMS, error) {
	seedHex := cCtx.String(KMSSeedFlag.Name)
	shares := cCtx.StringSlice(KMSSharesFlag.Name)

	var seed []byte
	switch {
	case seedHex != "" && len(shares) > 0:
		return nil, errors.New("--kms-seed and --kms-shares are mutually exclusive")
	case seedHex != "":
		decoded, err := hex.DecodeString(seedHex)
		if err != nil {
			return nil, fmt.Errorf("invalid --kms-seed: %w", err)
		}
		seed = decoded
	case len(shares) > 0:
		parsed, err := kms.ParseHexShares(shares)
		if err != nil {
			return nil, err
		}
		seed, err = kms.SeedFromShares(parsed)
		if err != nil {
			return nil, err
		}
	default:
		return nil, nil
	}

	return kms.NewSimpleKMS(seed)
}

// EngineConfig reads the resolution settings.
func EngineConfig(cCtx *cli.Context) (resolver.Config, error) {
	cfg := resolver.DefaultConfig()
	cfg.MaxDepth = cCtx.Int(MaxDepthFlag.Name)
	if media := cCtx.StringSlice(AllowedMediaFlag.Name); len(media) > 0 {
		cfg.AllowedMediaTypes = media
	}

	if raw := cCtx.String(DefaultKeyPathFlag.Name); raw != "" {
		path, err := interfaces.NewDataPath(raw)
		if err != nil {
			return cfg, fmt.Errorf("invalid --default-key-path: %w", err)
		}
		cfg.DefaultKeyPath = path
		cfg.DefaultAlgorithm = interfaces.Algorithm(cCtx.String(DefaultKeyAlgorithmFlag.Name))
	}
	return cfg, nil
}

var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	EnvVars: EnvVars("CONFIG"),
	Usage:   "YAML file with flag values",
}

var LogJsonFlag = altsrc.NewBoolFlag(&cli.BoolFlag{
	Name:    "log-json",
	Value:   false,
	EnvVars: EnvVars("LOG_JSON"),
	Usage:   "log in JSON format",
})
var LogDebugFlag = altsrc.NewBoolFlag(&cli.BoolFlag{
	Name:    "log-debug",
	Value:   false,
	EnvVars: EnvVars("LOG_DEBUG"),
	Usage:   "log debug messages",
})
var LogUidFlag = altsrc.NewBoolFlag(&cli.BoolFlag{
	Name:    "log-uid",
	Value:   false,
	EnvVars: EnvVars("LOG_UID"),
	Usage:   "generate a uuid and add to all log messages",
})
var LogServiceFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "log-service",
	Value:   "redact-client",
	EnvVars: EnvVars("LOG_SERVICE"),
	Usage:   "add 'service' tag to logs",
})

var PprofFlag = altsrc.NewBoolFlag(&cli.BoolFlag{
	Name:    "pprof",
	Value:   false,
	EnvVars: EnvVars("PPROF"),
	Usage:   "enable pprof debug endpoint",
})
var DrainSecondsFlag = altsrc.NewInt64Flag(&cli.Int64Flag{
	Name:    "drain-seconds",
	Value:   45,
	EnvVars: EnvVars("DRAIN_SECONDS"),
	Usage:   "seconds to wait in drain HTTP request",
})
var MetricsAddrFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "metrics-addr",
	Value:   "127.0.0.1:8090",
	EnvVars: EnvVars("METRICS_ADDR"),
	Usage:   "address to listen on for Prometheus metrics",
})

var StorageFlag = altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
	Name:    "storage",
	Value:   cli.NewStringSlice("file:///var/lib/redact"),
	EnvVars: EnvVars("STORAGE"),
	Usage:   "storage location URI (file://, s3://, ipfs://, vault://, http(s)://); repeat for fallbacks",
})
var StorageClientCertFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "storage-client-cert",
	EnvVars: EnvVars("STORAGE_CLIENT_CERT"),
	Usage:   "client certificate presented to vault and http storage",
})
var StorageClientKeyFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "storage-client-key",
	EnvVars: EnvVars("STORAGE_CLIENT_KEY"),
	Usage:   "key for --storage-client-cert",
})

var KMSSeedFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "kms-seed",
	EnvVars: EnvVars("KMS_SEED"),
	Usage:   "hex-encoded master seed (at least 32 bytes) used to derive keys",
})
var KMSSharesFlag = altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
	Name:    "kms-shares",
	EnvVars: EnvVars("KMS_SHARES"),
	Usage:   "hex-encoded Shamir shares of the master seed; repeat once per share",
})

var MaxDepthFlag = altsrc.NewIntFlag(&cli.IntFlag{
	Name:    "max-depth",
	Value:   resolver.DefaultMaxDepth,
	EnvVars: EnvVars("MAX_DEPTH"),
	Usage:   "maximum fetches plus decryptions per resolution",
})
var AllowedMediaFlag = altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
	Name:    "allowed-media-types",
	Value:   cli.NewStringSlice("image/jpeg"),
	EnvVars: EnvVars("ALLOWED_MEDIA_TYPES"),
	Usage:   "MIME types accepted for media values",
})
var DefaultKeyPathFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "default-key-path",
	Value:   string(kms.DefaultKeyPath),
	EnvVars: EnvVars("DEFAULT_KEY_PATH"),
	Usage:   "key used to seal new values; empty stores new values unsealed",
})
var DefaultKeyAlgorithmFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "default-key-algorithm",
	Value:   string(cryptoutils.AlgorithmSecretbox),
	EnvVars: EnvVars("DEFAULT_KEY_ALGORITHM"),
	Usage:   "algorithm of the default key (secretbox, ecies-p256, age-x25519)",
})

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}

var StoreFlags = []cli.Flag{
	StorageFlag,
	StorageClientCertFlag,
	StorageClientKeyFlag,
	KMSSeedFlag,
	KMSSharesFlag,
	MaxDepthFlag,
	AllowedMediaFlag,
	DefaultKeyPathFlag,
	DefaultKeyAlgorithmFlag,
}

// LoadConfigFile returns a Before hook that reads flag values from the YAML
// file named by --config, when given.
func LoadConfigFile(flags []cli.Flag) cli.BeforeFunc {
	load := altsrc.InitInputSourceWithContext(flags, altsrc.NewYamlSourceFromFlagFunc(ConfigFlag.Name))
	return func(cCtx *cli.Context) error {
		if cCtx.String(ConfigFlag.Name) == "" {
			return nil
		}
		return load(cCtx)
	}
}
