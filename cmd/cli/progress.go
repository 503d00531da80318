//go:build !js && !tinygo && !cloudflare

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joeblew999/dashdeck/internal/export"
	"github.com/joeblew999/dashdeck/pkg/slides"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type snapshotMsg export.Snapshot

type doneMsg struct{ err error }

// progressModel renders controller snapshots; ctrl-c asks the controller to cancel
type progressModel struct {
	ctrl       *export.Controller
	name       string
	bar        progress.Model
	snap       export.Snapshot
	cancelling bool
	done       bool
}

func newProgressModel(ctrl *export.Controller, name string) progressModel {
	return progressModel{
		ctrl: ctrl,
		name: name,
		bar:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (m progressModel) Init() tea.Cmd {
	return nil
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if !m.cancelling {
				m.cancelling = true
				m.ctrl.Cancel()
			}
		}
		return m, nil

	case snapshotMsg:
		m.snap = export.Snapshot(msg)
		return m, nil

	case doneMsg:
		m.done = true
		m.snap = m.ctrl.Snapshot()
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) View() string {
	header := titleStyle.Render("Exporting " + m.name)
	p := m.snap.Progress
	percent := 0.0
	if p.Total > 0 {
		percent = float64(p.Current) / float64(p.Total)
	}
	status := fmt.Sprintf("%d/%d slides", p.Current, p.Total)
	switch {
	case m.done:
		status = string(m.snap.State)
	case m.cancelling:
		status = "cancelling after the current slide..."
	}
	view := header + "\n\n" + m.bar.ViewAs(percent) + "  " + mutedStyle.Render(status) + "\n"
	if !m.done {
		view += mutedStyle.Render("ctrl-c to cancel") + "\n"
	}
	return view
}

// runWithProgress runs the export under a bubbletea progress bar
func runWithProgress(ctx context.Context, ctrl *export.Controller, d slides.Dashboard) error {
	p := tea.NewProgram(newProgressModel(ctrl, d.Name), tea.WithOutput(os.Stderr), tea.WithContext(ctx))
	ctrl.OnChange(func(s export.Snapshot) { p.Send(snapshotMsg(s)) })

	// Start notifies synchronously, so it runs beside the event loop
	result := make(chan error, 1)
	go func() {
		err := ctrl.Start(ctx, d)
		if err == nil {
			err = ctrl.Wait()
		}
		result <- err
		p.Send(doneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		ctrl.Cancel()
	}
	return <-result
}
