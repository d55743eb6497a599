package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/abhayk2/localDrop/internal/dns"
	"github.com/abhayk2/localDrop/internal/server"
	"github.com/abhayk2/localDrop/internal/transfer"
	"github.com/abhayk2/localDrop/internal/ui"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List open rooms on a relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd, "")
		if err != nil {
			return err
		}
		defer logger.Sync()

		stop := ui.RunConnectionSpinner("Asking " + cfg.RelayURL + "...")
		err = listRooms(cmd.Context(), dns.NewResolver().HTTPClient(), cfg.RelayURL, os.Stdout, stop)
		stop()
		return err
	},
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List files uploaded to a relay's store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd, "")
		if err != nil {
			return err
		}
		defer logger.Sync()

		stop := ui.RunConnectionSpinner("Asking " + cfg.RelayURL + "...")
		err = listFiles(cmd.Context(), dns.NewResolver().HTTPClient(), cfg.RelayURL, os.Stdout, stop)
		stop()
		return err
	},
}

// listRooms fetches /api/rooms and renders it. beforeRender clears any
// spinner before the table is written.
func listRooms(ctx context.Context, client *http.Client, base string, w io.Writer, beforeRender func()) error {
	var body server.RoomsResponse
	if err := fetch(ctx, client, base+"/api/rooms", &body); err != nil {
		return transfer.WrapError("list rooms", transfer.ErrSignalingError, err.Error())
	}
	if beforeRender != nil {
		beforeRender()
	}
	ui.RenderRooms(w, body.Stats, body.Rooms, time.Now())
	return nil
}

func listFiles(ctx context.Context, client *http.Client, base string, w io.Writer, beforeRender func()) error {
	var body server.FilesResponse
	if err := fetch(ctx, client, base+"/api/files", &body); err != nil {
		return transfer.NewError("list files", err)
	}
	if beforeRender != nil {
		beforeRender()
	}
	ui.RenderStoredFiles(w, body.Files)
	return nil
}

// fetch GETs url asking for msgpack and decodes whichever encoding the
// relay answered with.
func fetch(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", server.MsgpackContentType+", application/json;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusMethodNotAllowed:
		return fmt.Errorf("%s: not served by this relay", req.URL.Path)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("relay answered %s", resp.Status)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), server.MsgpackContentType) {
		return msgpack.NewDecoder(resp.Body).Decode(out)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func init() {
	rootCmd.AddCommand(roomsCmd)
	rootCmd.AddCommand(filesCmd)
}
