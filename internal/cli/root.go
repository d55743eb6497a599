// Package cli wires the localdrop commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/abhayk2/localDrop/internal/config"
	"github.com/abhayk2/localDrop/internal/logging"
	"github.com/abhayk2/localDrop/internal/transfer"
	"github.com/abhayk2/localDrop/internal/version"
)

var flagConfig string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "localdrop",
	Short: "Peer-to-peer file transfer over WebRTC with a small signaling relay",
	Long: `localdrop moves a file directly between two machines over a WebRTC data channel.
A relay (localdrop serve) only forwards the handshake between the two peers; the
file itself never passes through it. Browser tabs and the CLI speak the same
protocol, so either side can be a browser.`,
	Version:       version.Version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "Config file (default ./localdrop.yaml or ~/.localdrop/localdrop.yaml)")
	pf.StringP("server", "s", "", "Relay base URL")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("log-format", "", "Log format: console or json")
}

// addPeerFlags registers the flags shared by send and receive.
func addPeerFlags(fs *pflag.FlagSet) {
	fs.String("transport", "", "Relay subscription: sse or ws")
	fs.String("stun", "", "Custom STUN server")
	fs.StringP("turn", "t", "", "Custom TURN server")
	fs.StringP("turn-user", "u", "", "TURN username")
	fs.StringP("turn-pass", "p", "", "TURN password")
	fs.BoolP("relay", "r", false, "Force relay mode")
	fs.Int("chunk-size", 0, "Data channel fragment size in bytes")
	fs.Duration("timeout", 0, "Give up after this long (0 waits forever)")
}

// setup loads the config for cmd and builds the process logger.
// defaultLevel applies when no flag, variable or file sets log.level.
func setup(cmd *cobra.Command, defaultLevel string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(config.Options{
		File:     flagConfig,
		Flags:    cmd.Flags(),
		LogLevel: defaultLevel,
	})
	if err != nil {
		return nil, nil, transfer.NewError("load config", err)
	}

	logger, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, nil, transfer.NewError("set up logging", err)
	}
	return cfg, logger, nil
}

// checkRelay rejects --relay without a TURN server to relay through.
func checkRelay(cfg *config.Config) error {
	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return fmt.Errorf("cannot force relay mode without TURN server configured")
	}
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// An interrupt cancels the command's context so transfers can tell the peer.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		transfer.PrintErr(err)
		os.Exit(1)
	}
}
