// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"instagent/internal/pipeline"
)

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

type (
	// RunFunc is the work whose progress is displayed. Events emitted
	// through the observer appear under the spinner as they happen.
	RunFunc func(ctx context.Context, observer pipeline.Observer) (*pipeline.Stats, error)

	// progressModel shows a spinner plus the latest pipeline stage.
	progressModel struct {
		title     string
		spinner   spinner.Model
		status    string
		done      bool
		cancelled bool
	}

	progressEventMsg pipeline.Event

	progressDoneMsg struct {
		stats *pipeline.Stats
		err   error
	}
)

func newProgressModel(title string) progressModel {
	return progressModel{
		title: title,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(spinnerStyle),
		),
	}
}

// Init implements tea.Model.
func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case progressEventMsg:
		m.status = stageStatus(pipeline.Event(msg))
		return m, nil
	case progressDoneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancelled = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m progressModel) View() string {
	if m.done {
		return ""
	}

	view := m.spinner.View() + " " + m.title
	if m.status != "" {
		view += "\n  " + statusStyle.Render(m.status)
	}
	return view + "\n"
}

// stageStatus turns a pipeline event into the line shown under the
// spinner.
func stageStatus(e pipeline.Event) string {
	switch e.Stage {
	case pipeline.StageStart:
		return "démarrage du pipeline"
	case pipeline.StageDownload:
		return "téléchargement de la vidéo " + e.MediaPK
	case pipeline.StageExtract:
		return "extraction audio " + e.MediaPK
	case pipeline.StageTranscribe:
		return "transcription " + e.MediaPK
	case pipeline.StageIndex:
		return "indexation " + e.MediaPK
	case pipeline.StageSkipped:
		return "déjà indexée " + e.MediaPK
	case pipeline.StageFailed:
		detail := e.Detail
		if detail == "" {
			detail = "erreur"
		}
		return "échec " + e.MediaPK + ": " + detail
	case pipeline.StageDone:
		return e.Detail
	default:
		return string(e.Stage)
	}
}

// RunWithProgress displays a spinner with live stage updates while run
// executes. Ctrl+C cancels the run's context; the function still waits
// for run to return so partial results and the cancellation error are
// reported.
func RunWithProgress(ctx context.Context, title string, run RunFunc) (*pipeline.Stats, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(title))

	resultCh := make(chan progressDoneMsg, 1)
	go func() {
		stats, err := run(runCtx, func(e pipeline.Event) {
			p.Send(progressEventMsg(e))
		})
		done := progressDoneMsg{stats: stats, err: err}
		resultCh <- done
		p.Send(done)
	}()

	final, uiErr := p.Run()
	if m, ok := final.(progressModel); ok && m.cancelled {
		cancel()
	}

	res := <-resultCh
	if res.err != nil {
		return res.stats, res.err
	}
	return res.stats, uiErr
}
