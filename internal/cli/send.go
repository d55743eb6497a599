package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhayk2/localDrop/internal/config"
	"github.com/abhayk2/localDrop/internal/files"
	"github.com/abhayk2/localDrop/internal/relay"
	"github.com/abhayk2/localDrop/internal/signaling"
	"github.com/abhayk2/localDrop/internal/transfer"
	"github.com/abhayk2/localDrop/internal/ui"
	"github.com/abhayk2/localDrop/internal/webrtc"
)

var flagRoom string

var sendCmd = &cobra.Command{
	Use:     "send <file>",
	Aliases: []string{"s"},
	Short:   "Send a file to a receiver",
	Long: `Send one file directly to a receiver over WebRTC.

A room code is printed; the receiver joins with it from another terminal or
opens the link in a browser.

Examples:
  localdrop send report.pdf
  localdrop send --room QW7RT2 report.pdf
  localdrop send --server https://drop.example.com --relay report.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd, "")
		if err != nil {
			return err
		}
		defer logger.Sync()

		if err := checkRelay(cfg); err != nil {
			return err
		}
		return sendFile(cmd.Context(), cfg, logger, args[0])
	},
}

// pickRoom returns the requested code in canonical form, or a fresh one.
func pickRoom(requested string) (string, error) {
	if requested == "" {
		return relay.NewRoomID(), nil
	}
	id, err := relay.NormalizeRoomID(requested)
	if err != nil {
		return "", transfer.WrapError("room", err, requested)
	}
	return id, nil
}

func sendFile(ctx context.Context, cfg *config.Config, logger *zap.Logger, path string) error {
	info, err := files.Inspect(path)
	if err != nil {
		return err
	}

	fmt.Println()
	ui.RenderFileTable(ui.FileTableItem{Name: info.Name, Size: info.Size, Type: info.Type})

	roomID, err := pickRoom(flagRoom)
	if err != nil {
		return err
	}
	logger = logger.With(zap.String("room", roomID), zap.String("role", signaling.RoleSender.String()))

	t, err := newTransport(cfg, roomID, signaling.RoleSender, logger)
	if err != nil {
		return err
	}
	defer t.Close()

	fmt.Println()
	ui.RenderRoomInfo(roomID, cfg.GetRoomLink(roomID))

	ctx, cancel := withTimeout(ctx, cfg.Timeout)
	defer cancel()

	s := webrtc.NewSenderSession(cfg, t, info, logger)
	view := ui.NewTransferUI(ui.ModeSend, info.Name, info.Size, cancel)
	bridge := newProgressBridge(view, signaling.RoleSender)
	s.Session().OnChange(bridge.observe)

	view.Start()
	err = s.Run(ctx)
	snap := s.Session().Snapshot()
	bridge.finish(snap, "Sent", err)
	if err != nil {
		return explain(ctx, cfg.Timeout, err)
	}

	fmt.Println()
	ui.RenderTransferSummary(summaryFor(snap, bridge.duration(snap), ""))
	return nil
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVar(&flagRoom, "room", "", "Use this room code instead of a random one")
	addPeerFlags(sendCmd.Flags())
}
