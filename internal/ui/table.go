package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/abhayk2/localDrop/internal/utils"
)

// FileTableItem is one row of the file table.
type FileTableItem struct {
	Name string
	Size int64
	Type string
}

// styledTable applies the shared border and zebra row styles.
func styledTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		}).
		Render()
}

// FileTableView renders the file about to be offered.
func FileTableView(items ...FileTableItem) string {
	if len(items) == 0 {
		return MutedStyle.Render("No files")
	}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		typ := item.Type
		if typ == "" {
			typ = "unknown"
		}
		rows = append(rows, []string{
			utils.TruncateString(item.Name, 50),
			utils.FormatSize(item.Size),
			utils.TruncateString(typ, 24),
		})
	}
	return styledTable([]string{"Name", "Size", "Type"}, rows)
}

func RenderFileTable(items ...FileTableItem) {
	fmt.Println(FileTableView(items...))
}

type TransferSummary struct {
	Status   string
	File     string
	Size     int64
	Duration string
	Speed    string
	SavedTo  string
}

func TransferSummaryView(summary TransferSummary) string {
	rows := [][]string{
		{"Status", summary.Status},
		{"File", utils.TruncateString(summary.File, 50)},
		{"Size", utils.FormatSize(summary.Size)},
		{"Duration", summary.Duration},
		{"Avg Speed", summary.Speed},
	}
	if summary.SavedTo != "" {
		rows = append(rows, []string{"Saved To", summary.SavedTo})
	}
	return styledTable([]string{"Metric", "Value"}, rows)
}

func RenderTransferSummary(summary TransferSummary) {
	fmt.Println(TransferSummaryView(summary))
}

// RoomInfoView shows the code the receiver needs.
func RoomInfoView(roomID, roomLink string) string {
	content := fmt.Sprintf("%s Room ready\n\n%s Code:     %s\n%s Link:     %s\n\n%s",
		IconSuccess,
		IconCopy, CodeStyle.Render(roomID),
		IconWeb, MutedStyle.Render(roomLink),
		MutedStyle.Render("On the other machine run: localdrop receive "+roomID),
	)
	return RoomBoxStyle.Render(content)
}

func RenderRoomInfo(roomID, roomLink string) {
	fmt.Println(RoomInfoView(roomID, roomLink))
}
