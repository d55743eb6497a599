package ui

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhayk2/localDrop/internal/filestore"
	"github.com/abhayk2/localDrop/internal/relay"
)

func newModel(mode TransferMode, size int64) *liveTransferModel {
	return NewTransferUI(mode, "report.pdf", size, nil).model
}

func TestLiveModelKeepsTotalAndMonotonicProgress(t *testing.T) {
	m := newModel(ModeSend, 1000)

	m.apply(Status{Phase: "Transferring", Transferred: 400})
	assert.EqualValues(t, 1000, m.status.Total)
	assert.EqualValues(t, 400, m.status.Transferred)

	m.apply(Status{Transferred: 100})
	assert.EqualValues(t, 400, m.status.Transferred)
	assert.Equal(t, "Transferring", m.status.Phase)
	assert.False(t, m.finished)

	view := m.View()
	assert.Contains(t, view, "Sending")
	assert.Contains(t, view, "report.pdf")
	assert.Contains(t, view, "40.0%")
	assert.Contains(t, view, "Press q to cancel")
}

func TestLiveModelQuitsOnFinalStatus(t *testing.T) {
	m := newModel(ModeReceive, 10)

	_, cmd := m.Update(Status{Phase: "Saved", Transferred: 10, Done: true})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	view := m.View()
	assert.Contains(t, view, "Receiving")
	assert.Contains(t, view, "100.0%")
	assert.NotContains(t, view, "Press q")
}

func TestLiveModelShowsFailure(t *testing.T) {
	m := newModel(ModeSend, 10)
	m.Update(Status{Failed: true, ErrMsg: "peer disconnected"})
	assert.Contains(t, m.View(), "peer disconnected")
}

func TestLiveModelCancelKey(t *testing.T) {
	cancelled := false
	m := NewTransferUI(ModeSend, "a.bin", 5, func() { cancelled = true }).model

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, cancelled)
	assert.Empty(t, m.View())
}

func TestEmptyFileShowsComplete(t *testing.T) {
	m := newModel(ModeSend, 0)
	assert.Contains(t, m.View(), "100.0%")
}

func TestFinishWithoutStart(t *testing.T) {
	ui := NewTransferUI(ModeSend, "x", 1, nil)
	done := make(chan struct{})
	go func() {
		ui.Finish(Status{Done: true})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Finish blocked without a running program")
	}
}

func TestTables(t *testing.T) {
	view := FileTableView(FileTableItem{Name: "notes.json", Size: 2048})
	assert.Contains(t, view, "notes.json")
	assert.Contains(t, view, "unknown")

	summary := TransferSummaryView(TransferSummary{Status: "Complete", File: "notes.json", Size: 2048, SavedTo: "/tmp/notes.json"})
	assert.Contains(t, summary, "Saved To")
	assert.Contains(t, summary, "/tmp/notes.json")

	assert.Contains(t, RoomInfoView("ABC123", "http://localhost:8080/r/ABC123"), "localdrop receive ABC123")
}

func TestRenderRooms(t *testing.T) {
	now := time.Now()
	var buf bytes.Buffer
	RenderRooms(&buf, relay.Stats{Rooms: 1, Delivered: 7}, []relay.RoomInfo{
		{ID: "QW7RT2", Sender: true, QueuedToReceiver: 3, CreatedAt: now.Add(-90 * time.Second)},
	}, now)

	out := buf.String()
	assert.Contains(t, out, "QW7RT2")
	assert.Contains(t, out, "1m 30s")
	assert.Contains(t, out, "delivered 7")
}

func TestRenderRoomsEmpty(t *testing.T) {
	var buf bytes.Buffer
	RenderRooms(&buf, relay.Stats{}, nil, time.Now())
	assert.Contains(t, buf.String(), "(none)")
}

func TestRenderStoredFiles(t *testing.T) {
	var buf bytes.Buffer
	RenderStoredFiles(&buf, []filestore.Record{
		{Name: "a.txt", Size: 1024, MimeType: "text/plain", SHA256: "0123456789abcdef0123", UploadedAt: time.Now()},
		{Name: "b.bin", Size: 1024},
	})

	out := buf.String()
	assert.Contains(t, out, "a.txt")
	assert.Contains(t, out, "0123456789ab")
	assert.NotContains(t, out, "0123456789abc")
	assert.Contains(t, out, "2 files")
}

func TestUnknownSizeHidesBar(t *testing.T) {
	m := newModel(ModeReceive, -1)
	m.apply(Status{Phase: "Waiting for sender...", Total: -1})
	assert.NotContains(t, m.View(), "%")

	m.apply(Status{Name: "photo.png", Phase: "Transferring", Total: 200, Transferred: 50})
	assert.Contains(t, m.View(), "25.0%")
	assert.Contains(t, m.View(), "photo.png")

	m.apply(Status{Total: -1, Transferred: 100})
	assert.EqualValues(t, 200, m.status.Total)
}
