package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soundcore/audiopolicyd/cmd"
	"github.com/soundcore/audiopolicyd/internal/api"
	"github.com/soundcore/audiopolicyd/internal/config"
	"github.com/soundcore/audiopolicyd/internal/events"
	"github.com/soundcore/audiopolicyd/internal/hal"
	"github.com/soundcore/audiopolicyd/internal/hw"
	"github.com/soundcore/audiopolicyd/internal/logging"
	"github.com/soundcore/audiopolicyd/internal/manager"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Policy settings
	PolicyConfig string `help:"Audio policy configuration XML" default:"audio_policy_configuration.xml" toml:"policy.config_file" env:"POLICY_CONFIG_FILE"`
	EngineConfig string `help:"Audio policy engine configuration XML" default:"audio_policy_engine_configuration.xml" toml:"policy.engine_file" env:"POLICY_ENGINE_FILE"`

	// Feature settings
	FeaturesFixedInputSharing    bool `help:"Share capture inputs across sessions with priority preemption" default:"true" toml:"features.fixed_input_sharing" env:"FEATURES_FIXED_INPUT_SHARING"`
	FeaturesConcurrentBitPerfect bool `help:"Keep bit-perfect outputs open under concurrent playback" default:"false" toml:"features.concurrent_bit_perfect" env:"FEATURES_CONCURRENT_BIT_PERFECT"`
	FeaturesPortVolumes          bool `help:"Deliver HAL volume per client port instead of per stream type" default:"false" toml:"features.port_volumes" env:"FEATURES_PORT_VOLUMES"`
	FeaturesSimulateConnections  bool `help:"Drive device hot-plug from the API instead of the HAL broadcast" default:"false" toml:"features.simulate_connections" env:"FEATURES_SIMULATE_CONNECTIONS"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingManager string `help:"Policy manager logging level" default:"info" toml:"logging.manager" env:"LOGGING_MANAGER"`
	LoggingEngine  string `help:"Routing engine logging level" default:"info" toml:"logging.engine" env:"LOGGING_ENGINE"`
	LoggingHAL     string `help:"HAL client logging level" default:"info" toml:"logging.hal" env:"LOGGING_HAL"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system
		loggingConfig := logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"manager": opts.LoggingManager,
				"engine":  opts.LoggingEngine,
				"hal":     opts.LoggingHAL,
				"api":     opts.LoggingAPI,
			},
		}
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")

		policyCfg, err := hw.Load(opts.PolicyConfig)
		if err != nil {
			logger.Error("Failed to load policy configuration", "path", opts.PolicyConfig, "error", err)
			os.Exit(1)
		}
		engineCfg, err := hw.LoadEngine(opts.EngineConfig)
		if err != nil {
			logger.Error("Failed to load engine configuration", "path", opts.EngineConfig, "error", err)
			os.Exit(1)
		}

		// Create event bus for in-process event handling
		eventBus := events.New()

		client := hal.NewSimClient()

		mgr, err := manager.New(client, policyCfg, engineCfg, eventBus, manager.Options{
			FixedInputSharing:         opts.FeaturesFixedInputSharing,
			ConcurrentBitPerfect:      opts.FeaturesConcurrentBitPerfect,
			PortVolumes:               opts.FeaturesPortVolumes,
			SimulateDeviceConnections: opts.FeaturesSimulateConnections,
		})
		if err != nil {
			logger.Error("Failed to initialize policy manager", "error", err)
			os.Exit(1)
		}

		// Config changes require a restart; the watcher only announces them.
		policyWatcher := config.NewConfigWatcher(opts.PolicyConfig, hw.Load, logger)
		policyWatcher.OnReload(func(*hw.Config) {
			logger.Warn("Policy configuration changed on disk, restart to apply",
				"path", opts.PolicyConfig)
			eventBus.Publish(events.ConfigChangedEvent{
				Path:      opts.PolicyConfig,
				Timestamp: time.Now().Format(time.RFC3339),
			})
		})

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Manager:           mgr,
			EventBus:          eventBus,
			PrometheusHandler: promhttp.Handler(),
		})

		hooks.OnStart(func() {
			if startErr := policyWatcher.Start(); startErr != nil {
				logger.Warn("Failed to start config watcher", "error", startErr)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			if stopErr := policyWatcher.Stop(); stopErr != nil {
				logger.Error("Error stopping config watcher", "error", stopErr)
			}

			mgr.Close()
		})
	})

	// Add validate command
	validateCmd := cmd.CreateValidateCmd()
	cli.Root().AddCommand(validateCmd)

	// Add dump command
	dumpCmd := cmd.CreateDumpCmd()
	cli.Root().AddCommand(dumpCmd)

	// Run the CLI
	cli.Run()
}
