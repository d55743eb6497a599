package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/abhayk2/localDrop/internal/filestore"
	"github.com/abhayk2/localDrop/internal/relay"
	"github.com/abhayk2/localDrop/internal/utils"
)

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func age(since time.Time, now time.Time) string {
	if since.IsZero() {
		return "-"
	}
	return utils.FormatTimeDuration(now.Sub(since).Truncate(time.Second))
}

// RenderRooms writes the relay's live rooms and counters to w.
func RenderRooms(w io.Writer, stats relay.Stats, rooms []relay.RoomInfo, now time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	t.SetTitle("Rooms")
	t.AppendHeader(table.Row{"Code", "Sender", "Receiver", "Queued →S", "Queued →R", "Age"})
	for _, r := range rooms {
		t.AppendRow(table.Row{r.ID, yesNo(r.Sender), yesNo(r.Receiver), r.QueuedToSender, r.QueuedToReceiver, age(r.CreatedAt, now)})
	}
	if len(rooms) == 0 {
		t.AppendRow(table.Row{"(none)", "", "", "", "", ""})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d open", stats.Rooms),
		fmt.Sprintf("delivered %d", stats.Delivered),
		fmt.Sprintf("queued %d", stats.Queued),
		fmt.Sprintf("dropped %d", stats.Dropped),
		fmt.Sprintf("swept %d", stats.Swept),
		"",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignCenter},
		{Number: 3, Align: text.AlignCenter},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	t.Render()
}

// RenderStoredFiles writes the relay's uploaded file catalog to w.
func RenderStoredFiles(w io.Writer, records []filestore.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	t.SetTitle("Stored files")
	t.AppendHeader(table.Row{"Name", "Size", "Type", "SHA-256", "Uploaded"})

	var total int64
	for _, r := range records {
		total += r.Size
		sum := r.SHA256
		if len(sum) > 12 {
			sum = sum[:12]
		}
		t.AppendRow(table.Row{
			utils.TruncateString(r.Name, 40),
			utils.FormatSize(r.Size),
			r.MimeType,
			sum,
			r.UploadedAt.Local().Format(time.DateTime),
		})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d files", len(records)), utils.FormatSize(total), "", "", ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	t.Render()
}
