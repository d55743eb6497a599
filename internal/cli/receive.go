package cli

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhayk2/localDrop/internal/config"
	"github.com/abhayk2/localDrop/internal/relay"
	"github.com/abhayk2/localDrop/internal/signaling"
	"github.com/abhayk2/localDrop/internal/transfer"
	"github.com/abhayk2/localDrop/internal/ui"
	"github.com/abhayk2/localDrop/internal/webrtc"
)

var flagDir string

var receiveCmd = &cobra.Command{
	Use:     "receive <room-id|url>",
	Aliases: []string{"r"},
	Short:   "Receive a file from a sender",
	Long: `Join a room and receive the file its sender offers.

The file is saved under --dir with unsafe characters replaced; an existing file
is never overwritten, a numbered name is picked instead.

Examples:
  localdrop receive QW7RT2
  localdrop receive https://drop.example.com/r/QW7RT2
  localdrop receive qw7rt2 --dir ~/Downloads`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}

		cfg, logger, err := setup(cmd, "")
		if err != nil {
			return err
		}
		defer logger.Sync()

		if err := checkRelay(cfg); err != nil {
			return err
		}
		return receiveFile(cmd.Context(), cfg, logger, roomID)
	},
}

func receiveFile(ctx context.Context, cfg *config.Config, logger *zap.Logger, roomID string) error {
	logger = logger.With(zap.String("room", roomID), zap.String("role", signaling.RoleReceiver.String()))

	t, err := newTransport(cfg, roomID, signaling.RoleReceiver, logger)
	if err != nil {
		return err
	}
	defer t.Close()

	ctx, cancel := withTimeout(ctx, cfg.Timeout)
	defer cancel()

	r := webrtc.NewReceiverSession(cfg, t, flagDir, logger)
	view := ui.NewTransferUI(ui.ModeReceive, "from room "+roomID, -1, cancel)
	bridge := newProgressBridge(view, signaling.RoleReceiver)
	r.Session().OnChange(bridge.observe)

	view.Start()
	res, err := r.Run(ctx)
	snap := r.Session().Snapshot()
	if err != nil {
		bridge.finish(snap, "", err)
		return explain(ctx, cfg.Timeout, err)
	}
	bridge.finish(snap, "Saved "+res.File.Name, nil)

	fmt.Println()
	ui.RenderTransferSummary(summaryFor(snap, bridge.duration(snap), res.Path))
	return nil
}

// parseRoomInput accepts a bare code or a room link such as
// https://host/r/CODE and returns the canonical code.
func parseRoomInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("room ID cannot be empty")
	}

	code := input
	if strings.Contains(input, "://") || strings.Contains(input, "/") {
		extracted, err := extractRoomIDFromURL(input)
		if err != nil {
			return "", err
		}
		code = extracted
	}

	id, err := relay.NormalizeRoomID(code)
	if err != nil {
		return "", transfer.WrapError("room", err, code)
	}
	return id, nil
}

func extractRoomIDFromURL(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", transfer.NewError("parse URL", err)
	}

	// scheme-less links like host/r/CODE land entirely in Path
	path := strings.TrimSuffix(parsedURL.Path, "/")
	parts := strings.Split(path, "/")

	for i, part := range parts {
		if part == "r" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}

	if code := parsedURL.Query().Get("roomId"); code != "" {
		return code, nil
	}

	return "", fmt.Errorf("could not extract room ID from URL: %s", urlStr)
}

func init() {
	rootCmd.AddCommand(receiveCmd)

	receiveCmd.Flags().StringVarP(&flagDir, "dir", "d", ".", "Directory to save the file in")
	addPeerFlags(receiveCmd.Flags())
}
