package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/poiscan/internal/engine/search"
	"github.com/rendis/poiscan/internal/tui/styles"
)

// RunOptions configure the live progress view.
type RunOptions struct {
	Title string
	Stats *search.Stats
	// TotalBudget is the combined call budget across groups; the bar shows
	// budget consumption, so a run that finishes early never fills it.
	TotalBudget int
	Search      func(ctx context.Context) (search.Result, error)
}

// sharedState survives bubbletea's value copies of the model.
type sharedState struct {
	mu        sync.Mutex
	cancel    context.CancelFunc
	cancelled bool
	result    search.Result
	err       error
}

type tickMsg time.Time

type doneMsg struct{}

type progressModel struct {
	opts      RunOptions
	progress  progress.Model
	startTime time.Time
	done      bool
	shared    *sharedState
}

// Run renders live progress while the search executes and returns its result
// once the search completes or is cancelled.
func Run(opts RunOptions) (search.Result, error) {
	shared := &sharedState{}
	m := progressModel{
		opts:      opts,
		progress:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
		startTime: time.Now(),
		shared:    shared,
	}

	if _, err := tea.NewProgram(m).Run(); err != nil {
		return search.Result{}, err
	}

	shared.mu.Lock()
	defer shared.mu.Unlock()
	return shared.result, shared.err
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.startSearch(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m progressModel) startSearch() tea.Cmd {
	shared := m.shared
	fn := m.opts.Search

	return func() tea.Msg {
		ctx, cancel := context.WithCancel(context.Background())
		shared.mu.Lock()
		shared.cancel = cancel
		shared.mu.Unlock()

		res, err := fn(ctx)
		cancel()

		shared.mu.Lock()
		shared.result = res
		shared.err = err
		shared.mu.Unlock()
		return doneMsg{}
	}
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.shared.mu.Lock()
			cancel := m.shared.cancel
			m.shared.cancelled = true
			m.shared.mu.Unlock()
			if cancel != nil && !m.done {
				cancel()
				return m, nil
			}
			return m, tea.Quit
		case "enter", "q":
			if m.done {
				return m, tea.Quit
			}
		}
	case tickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()
	case doneMsg:
		m.done = true
		return m, tea.Quit
	}

	pm, cmd := m.progress.Update(msg)
	m.progress = pm.(progress.Model)
	return m, cmd
}

func (m progressModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render(m.opts.Title))
	b.WriteString("\n\n")

	stats := m.opts.Stats
	if stats == nil {
		stats = &search.Stats{}
	}

	elapsed := time.Since(m.startTime).Truncate(time.Second)
	rows := [][2]string{
		{"Calls", fmt.Sprintf("%d / %d", stats.TilesSearched.Load(), m.opts.TotalBudget)},
		{"Splits", fmt.Sprintf("%d", stats.TilesSplit.Load())},
		{"Places", fmt.Sprintf("%d", stats.PlacesFound.Load())},
		{"Failed", fmt.Sprintf("%d", stats.FailedCalls.Load())},
		{"Elapsed", elapsed.String()},
	}
	var lines []string
	for _, r := range rows {
		lines = append(lines, styles.Label.Render(r[0])+styles.Value.Render(r[1]))
	}
	statsBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Muted).
		Padding(0, 1).
		Width(30).
		Render(strings.Join(lines, "\n"))
	b.WriteString(statsBox)
	b.WriteString("\n\n")

	var pct float64
	if m.opts.TotalBudget > 0 {
		pct = float64(stats.TilesSearched.Load()) / float64(m.opts.TotalBudget)
		if pct > 1 {
			pct = 1
		}
	}
	b.WriteString(m.progress.ViewAs(pct))
	b.WriteString("\n\n")

	m.shared.mu.Lock()
	cancelled := m.shared.cancelled
	m.shared.mu.Unlock()

	switch {
	case m.done:
		b.WriteString(styles.Subtitle.Render("Done"))
	case cancelled:
		b.WriteString(styles.ErrorText.Render("Cancelling..."))
	default:
		b.WriteString(styles.StatusBar.Render("esc/ctrl+c to cancel"))
	}
	b.WriteString("\n")

	return b.String()
}
