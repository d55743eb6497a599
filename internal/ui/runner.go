package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/abhayk2/localDrop/internal/utils"
)

type TransferMode int

const (
	ModeSend TransferMode = iota
	ModeReceive
)

// Status is one update pushed to the live view. A negative Total means the
// size is not known yet.
type Status struct {
	Name        string
	Phase       string
	Transferred int64
	Total       int64
	Done        bool
	Failed      bool
	ErrMsg      string
}

type tickMsg time.Time

// TransferUI draws a live progress bar for a single file.
type TransferUI struct {
	program *tea.Program
	model   *liveTransferModel
	updates chan Status
	exited  chan struct{}
	once    sync.Once
	started bool
}

// liveTransferModel is the bubbletea model behind TransferUI.
type liveTransferModel struct {
	mode     TransferMode
	name     string
	status   Status
	bar      progress.Model
	spinner  spinner.Model
	started  time.Time // first byte
	updates  <-chan Status
	onCancel func()
	quitting bool
	finished bool
}

// NewTransferUI creates the view; pass a negative size when it is not
// known yet. onCancel runs when the user presses q or
// ctrl+c, since the terminal is in raw mode and SIGINT will not arrive.
func NewTransferUI(mode TransferMode, name string, size int64, onCancel func()) *TransferUI {
	updates := make(chan Status, 64)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	model := &liveTransferModel{
		mode: mode,
		name: name,
		status: Status{
			Phase: "Connecting to relay...",
			Total: size,
		},
		bar: progress.New(
			progress.WithGradient(ProgressStart, ProgressEnd),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
		spinner:  s,
		updates:  updates,
		onCancel: onCancel,
	}
	return &TransferUI{
		model:   model,
		updates: updates,
		exited:  make(chan struct{}),
	}
}

// Start runs the program in the background. The view stays inline so the
// room box printed before it remains visible.
func (ui *TransferUI) Start() {
	ui.program = tea.NewProgram(ui.model)
	ui.started = true
	go func() {
		defer close(ui.exited)
		if _, err := ui.program.Run(); err != nil {
			fmt.Printf("UI error: %v\n", err)
		}
	}()
}

// Update pushes a status. Intermediate updates are dropped when the view
// falls behind; the next one carries the running total anyway.
func (ui *TransferUI) Update(s Status) {
	select {
	case ui.updates <- s:
	default:
	}
}

// Finish delivers the final status and waits for the view to render it.
func (ui *TransferUI) Finish(s Status) {
	if !ui.started {
		return
	}
	ui.once.Do(func() {
		select {
		case ui.updates <- s:
		case <-ui.exited:
		case <-time.After(time.Second):
			ui.program.Quit()
		}
		<-ui.exited
	})
}

func (m *liveTransferModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *liveTransferModel) listen() tea.Cmd {
	return func() tea.Msg {
		return <-m.updates
	}
}

func (m *liveTransferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if m.onCancel != nil {
				m.onCancel()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(30, msg.Width-60))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if !m.finished {
			return m, tick()
		}

	case Status:
		m.apply(msg)
		if m.finished {
			return m, tea.Quit
		}
		return m, m.listen()
	}
	return m, nil
}

func (m *liveTransferModel) apply(s Status) {
	if s.Total < 0 || (s.Total == 0 && m.status.Total > 0) {
		s.Total = m.status.Total
	}
	if s.Transferred < m.status.Transferred {
		s.Transferred = m.status.Transferred
	}
	if s.Phase == "" {
		s.Phase = m.status.Phase
	}
	if s.Name != "" {
		m.name = s.Name
	}
	if m.started.IsZero() && s.Transferred > 0 {
		m.started = time.Now()
	}
	m.status = s
	m.finished = s.Done || s.Failed
}

func (m *liveTransferModel) speed() float64 {
	if m.started.IsZero() {
		return 0
	}
	elapsed := time.Since(m.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.status.Transferred) / elapsed
}

func (m *liveTransferModel) View() string {
	if m.quitting {
		return ""
	}
	st := m.status

	var b strings.Builder
	icon, verb := IconSend, "Sending"
	if m.mode == ModeReceive {
		icon, verb = IconReceive, "Receiving"
	}
	fmt.Fprintf(&b, "\n%s %s %s\n\n", icon, verb, BoldStyle.Render(utils.TruncateString(m.name, 40)))

	switch {
	case st.Failed:
		fmt.Fprintf(&b, "%s %s\n", IconError, ErrorStyle.Render(st.ErrMsg))
	case st.Done:
		fmt.Fprintf(&b, "%s %s\n", IconSuccess, SuccessStyle.Render(st.Phase))
	default:
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), st.Phase)
	}

	if st.Total < 0 {
		if !m.finished {
			b.WriteString("\n" + MutedStyle.Render("Press q to cancel") + "\n")
		}
		return b.String()
	}

	pct := utils.Percent(st.Transferred, st.Total)
	fmt.Fprintf(&b, "\n  %s %5.1f%%  %s/%s",
		m.bar.ViewAs(pct/100),
		pct,
		utils.FormatSize(st.Transferred),
		utils.FormatSize(st.Total),
	)

	if speed := m.speed(); speed > 0 && !m.finished {
		b.WriteString(MutedStyle.Render("  " + utils.FormatSpeed(speed)))
		if remaining := st.Total - st.Transferred; remaining > 0 {
			eta := time.Duration(float64(remaining) / speed * float64(time.Second))
			b.WriteString(MutedStyle.Render("  ETA " + utils.FormatTimeDuration(eta)))
		}
	}
	b.WriteString("\n")

	if !m.finished {
		b.WriteString("\n" + MutedStyle.Render("Press q to cancel") + "\n")
	}
	return b.String()
}
