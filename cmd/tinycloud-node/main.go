package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/blobstore"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/config"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/core"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/httpapi"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/log"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/metrics"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

var (
	// Version is set via ldflags during build.
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "tinycloud-node",
	Short:   "TinyCloud node — a per-user data host over capability tokens and content-addressed event logs",
	Version: Version,
}

// logLevelValue is a pflag.Value restricting --log-level to the levels
// pkg/log actually understands, so a typo fails at flag-parse time
// instead of silently falling through to zerolog's default level.
type logLevelValue string

func (v *logLevelValue) String() string { return string(*v) }

func (v *logLevelValue) Type() string { return "level" }

func (v *logLevelValue) Set(s string) error {
	switch log.Level(s) {
	case log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel:
		*v = logLevelValue(s)
		return nil
	default:
		return fmt.Errorf("invalid log level %q (want debug, info, warn, or error)", s)
	}
}

var logLevel = logLevelValue(log.InfoLevel)

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("tinycloud-node %s (%s)\n", Version, Commit))

	var flags *pflag.FlagSet = rootCmd.PersistentFlags()
	flags.Var(&logLevel, "log-level", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(peerCmd)
}

func initLogging() {
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel.String()), JSONOutput: logJSON})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the §6 HTTP surface: /healthz, /peer/generate, /delegate, /invoke",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address for the §6 surface")
	serveCmd.Flags().String("metrics-listen", "127.0.0.1:9090", "HTTP listen address for /metrics, /health, /ready, /live")
	serveCmd.Flags().String("metadb-path", ":memory:", "Path to the metadata SQLite database (':memory:' for ephemeral)")
	serveCmd.Flags().String("blobstore-path", "", "Filesystem root for content-addressed blobs (empty uses an in-memory store)")
	serveCmd.Flags().Int64("max-space-bytes", 0, "Per-space blob storage quota in bytes (0 is unlimited)")
	serveCmd.Flags().String("secret", "", "Hex-encoded 32-byte server secret (falls back to TINYCLOUD_SECRET)")
}

func runServe(cmd *cobra.Command, args []string) error {
	listen, _ := cmd.Flags().GetString("listen")
	metricsListen, _ := cmd.Flags().GetString("metrics-listen")
	metaDBPath, _ := cmd.Flags().GetString("metadb-path")
	blobStorePath, _ := cmd.Flags().GetString("blobstore-path")
	maxSpaceBytes, _ := cmd.Flags().GetInt64("max-space-bytes")
	secretHex, _ := cmd.Flags().GetString("secret")

	cfg := config.ApplyEnv(config.Config{
		ListenAddr:    listen,
		MetricsAddr:   metricsListen,
		MetaDBPath:    metaDBPath,
		BlobStorePath: blobStorePath,
		MaxSpaceBytes: maxSpaceBytes,
	})
	secret, err := config.ParseSecret(secretHex)
	if err != nil {
		return err
	}
	cfg.Secret = secret

	logger := log.WithComponent("serve")

	var store blobstore.Store
	if cfg.BlobStorePath == "" {
		logger.Warn().Msg("no --blobstore-path given, using in-memory blob store (data does not survive restart)")
		store = blobstore.NewMemory()
	} else {
		store = blobstore.NewFilesystem(cfg.BlobStorePath)
	}

	c, err := core.New(core.Config{
		MetaDBPath:    cfg.MetaDBPath,
		Store:         store,
		Secret:        cfg.Secret,
		MaxSpaceBytes: cfg.MaxSpaceBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to start core: %w", err)
	}
	defer c.Close()
	logger.Info().Msg("core started")

	collector := core.NewMetricsCollector(c)
	collector.Start()
	defer collector.Stop()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("metadb", true, "open")
	metrics.RegisterComponent("blobstore", true, "open")
	metrics.RegisterComponent("httpapi", false, "starting")

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(metricsListen, mux); err != nil {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	logger.Info().Str("addr", metricsListen).Msg("metrics endpoint listening")

	router := httpapi.NewRouter(c)
	server := &http.Server{Addr: cfg.ListenAddr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	metrics.RegisterComponent("httpapi", true, "ready")
	logger.Info().Str("addr", cfg.ListenAddr).Msg("http surface listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("http surface error")
	}
	return server.Close()
}

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Peer DID utilities",
}

var peerGenerateCmd = &cobra.Command{
	Use:   "generate [space-id]",
	Short: "Derive and print a space's host did:key from the server secret, without starting a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secretHex, _ := cmd.Flags().GetString("secret")
		secret, err := config.ParseSecret(secretHex)
		if err != nil {
			return err
		}
		c, err := core.New(core.Config{MetaDBPath: ":memory:", Store: blobstore.NewMemory(), Secret: secret})
		if err != nil {
			return err
		}
		defer c.Close()

		did, err := c.GeneratePeer(tctypes.SpaceID(args[0]))
		if err != nil {
			return err
		}
		fmt.Println(did)
		return nil
	},
}

func init() {
	peerGenerateCmd.Flags().String("secret", "", "Hex-encoded 32-byte server secret (falls back to TINYCLOUD_SECRET)")
	peerCmd.AddCommand(peerGenerateCmd)
}
