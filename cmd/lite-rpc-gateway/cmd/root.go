package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/solite-rpc/bridge/internal/bridge"
	liteconfig "github.com/solite-rpc/bridge/internal/config"
	"github.com/solite-rpc/bridge/internal/leader"
	"github.com/solite-rpc/bridge/internal/listener"
	"github.com/solite-rpc/bridge/internal/metrics"
	"github.com/solite-rpc/bridge/internal/sender"
	"github.com/solite-rpc/bridge/internal/supervisor"
)

// Version is set at build time.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "lite-rpc-gateway",
	Short: "A lightweight JSON-RPC gateway with direct-to-leader transaction forwarding",
	Long: `lite-rpc-gateway forwards transaction submissions directly to the current
leader set, tracks confirmation from a streaming block subscription, and
transparently proxies every other RPC method to an upstream full node.

Configuration (in order of priority):
  1. Command-line flags (--upstream-rpc-url, --http-bind-addr, ...)
  2. Environment variables (LITE_RPC_UPSTREAM_RPC_URL, ...)
  3. Config file (--config, default none)`,
	RunE: run,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lite-rpc-gateway version %s\n", Version)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (optional)")
	flags.String("upstream-rpc-url", "", "upstream JSON-RPC endpoint (env LITE_RPC_UPSTREAM_RPC_URL)")
	flags.String("upstream-ws-url", "", "upstream WebSocket pub-sub endpoint (env LITE_RPC_UPSTREAM_WS_URL)")
	flags.String("http-bind-addr", "", "bind address for the JSON-RPC HTTP endpoint")
	flags.String("commitment", "", "subscription commitment: processed, confirmed, or finalized")
	flags.Int("batch-size", 0, "max pending transactions drained per fan-out tick")
	flags.Int("batch-interval-ms", 0, "fan-out loop tick interval in milliseconds")
	flags.Int("clean-interval-ms", 0, "clean loop tick interval in milliseconds")
	flags.Int("fan-out-size", 0, "number of leaders each transaction is fanned out to")

	_ = viper.BindPFlag("upstream_rpc_url", flags.Lookup("upstream-rpc-url"))
	_ = viper.BindPFlag("upstream_ws_url", flags.Lookup("upstream-ws-url"))
	_ = viper.BindPFlag("http_bind_addr", flags.Lookup("http-bind-addr"))
	_ = viper.BindPFlag("commitment", flags.Lookup("commitment"))
	_ = viper.BindPFlag("batch_size", flags.Lookup("batch-size"))
	_ = viper.BindPFlag("batch_interval_ms", flags.Lookup("batch-interval-ms"))
	_ = viper.BindPFlag("clean_interval_ms", flags.Lookup("clean-interval-ms"))
	_ = viper.BindPFlag("fan_out_size", flags.Lookup("fan-out-size"))

	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	liteconfig.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("lite_rpc")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "lite-rpc-gateway: reading config file: %v\n", err)
			os.Exit(1)
		}
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := liteconfig.Load(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	upstream := rpc.New(cfg.UpstreamRPCURL)
	commitment := rpc.CommitmentType(cfg.Commitment)

	metricsReg := metrics.New(prometheus.DefaultRegisterer)

	lst, err := listener.New(ctx, upstream, cfg.UpstreamWSURL, commitment, listener.Metrics{
		SlotAdvanced:         func(slot uint64) { metricsReg.CurrentSlot.Set(float64(slot)) },
		ConfirmationObserved: metricsReg.ConfirmationsSeen.Inc,
	}, logger)
	if err != nil {
		return fmt.Errorf("lite-rpc-gateway: initializing block listener: %w", err)
	}

	leaderClient := leader.NewQUICClient(upstream, leader.Config{FanOutSize: cfg.FanOutSize}, logger)
	defer leaderClient.Close()

	snd := sender.New(sender.Config{
		QueueCapacity:     cfg.QueueCapacity,
		BatchSize:         cfg.BatchSize,
		BatchInterval:     cfg.BatchInterval(),
		CleanInterval:     cfg.CleanInterval(),
		CleanHorizonSlots: cfg.CleanHorizonSlots,
	}, leaderClient, lst.Index(), lst.Slot(), sender.Metrics{
		Submitted:      metricsReg.Submits.Inc,
		Retried:        metricsReg.Retries.Inc,
		DroppedConfirm: metricsReg.DropsOnConfirm.Inc,
		DroppedExhaust: metricsReg.DropsOnExhaust.Inc,
		Pruned:         func(n int) { metricsReg.Pruned.Add(float64(n)) },
		QueueDepth:     func(n int) { metricsReg.QueueDepth.Set(float64(n)) },
	}, logger)

	br := bridge.New(bridge.Config{
		UpstreamRPCURL: cfg.UpstreamRPCURL,
		Sender:         snd,
		Confirmer:      lst,
		Leader:         leaderClient,
		Metrics:        metricsReg,
		Logger:         logger,
	})

	sup := supervisor.New(supervisor.Config{
		HTTPAddr: cfg.HTTPBindAddr,
		Bridge:   br,
		Listener: lst,
		Sender:   snd,
		Logger:   logger,
	})

	if err := sup.Run(ctx); err != nil {
		return fmt.Errorf("lite-rpc-gateway: %w", err)
	}
	return nil
}
