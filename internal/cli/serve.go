package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhayk2/localDrop/internal/config"
	"github.com/abhayk2/localDrop/internal/filestore"
	"github.com/abhayk2/localDrop/internal/relay"
	"github.com/abhayk2/localDrop/internal/server"
	"github.com/abhayk2/localDrop/internal/ui"
)

var flagNoStore bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling relay and file store",
	Long: `Run the relay that pairs senders with receivers, plus the optional upload
store. The relay only forwards offers, answers and ICE candidates; file bytes
flow peer to peer.

Examples:
  localdrop serve
  localdrop serve --listen :9000 --overflow drop-oldest
  localdrop serve --store-dir /var/lib/localdrop --store-password s3cret`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd, "info")
		if err != nil {
			return err
		}
		defer logger.Sync()
		return serve(cmd.Context(), cfg, logger)
	},
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	overflow, err := relay.ParseOverflow(cfg.Server.Overflow)
	if err != nil {
		return err
	}
	hub := relay.NewHub(relay.Options{
		MaxQueue:  cfg.Server.MaxQueue,
		Overflow:  overflow,
		OrphanTTL: cfg.Server.OrphanTTL,
		Logger:    logger.Named("relay"),
	})

	var store *filestore.Store
	if !flagNoStore {
		store, err = filestore.Open(filestore.Options{
			Dir:     cfg.Store.Dir,
			MaxSize: cfg.Store.MaxUploadSize,
			Scanner: filestore.NewSignatureScanner(),
			Logger:  logger.Named("store"),
		})
		if err != nil {
			return fmt.Errorf("open file store: %w", err)
		}
		defer store.Close()
	}

	ui.PrintInfof("Relay listening on %s", cfg.Server.Listen)
	if store != nil {
		ui.PrintInfof("Uploads stored in %s", cfg.Store.Dir)
	}
	return server.New(cfg, hub, store, logger.Named("http")).ListenAndServe(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	fs := serveCmd.Flags()
	fs.StringP("listen", "l", "", "Address to listen on (default :8080)")
	fs.Duration("heartbeat", 0, "Keep-alive interval on event streams")
	fs.Int("max-queue", 0, "Messages queued per empty slot")
	fs.String("overflow", "", "Full queue policy: reject or drop-oldest")
	fs.String("store-dir", "", "Upload store directory")
	fs.String("store-password", "", "Password required to upload")
	fs.Int64("max-upload-size", 0, "Largest accepted upload in bytes")
	fs.BoolVar(&flagNoStore, "no-store", false, "Disable the upload store")
}
