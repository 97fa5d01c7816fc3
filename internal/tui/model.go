// Package tui is the terminal front end of the panel.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fruitsalade/studiokit/internal/panel"
	"github.com/fruitsalade/studiokit/pkg/protocol"
)

// libraryChangedMsg is a watcher event from the script host.
type libraryChangedMsg protocol.Event

// Model shows the library tabs, or the favourites view, for one engine.
type Model struct {
	engine *panel.Engine
	events <-chan protocol.Event
	online func() bool

	tab       int
	cursor    int
	favView   bool
	status    string
	statusErr bool

	width  int
	height int

	help help.Model
	keys keyMap
}

// Option configures a Model.
type Option func(*Model)

// WithEvents rebuilds the tree whenever the host reports a library change.
func WithEvents(events <-chan protocol.Event) Option {
	return func(m *Model) { m.events = events }
}

// WithOnline shows the bridge state in the status line.
func WithOnline(fn func() bool) Option {
	return func(m *Model) { m.online = fn }
}

// New creates a Model driving engine.
func New(engine *panel.Engine, opts ...Option) Model {
	m := Model{
		engine: engine,
		help:   help.New(),
		keys:   defaultKeyMap(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Run starts the program on the alternate screen and blocks until the user
// quits or ctx is done.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.engine.Rebuild(m.engine.Session().Root), m.waitEvent())
}

func (m Model) waitEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return libraryChangedMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case libraryChangedMsg:
		m.setStatus("Library changed, reloading", false)
		return m, tea.Batch(m.rebuild(), m.waitEvent())

	case panel.LaunchedMsg:
		m.engine.Update(msg)
		if msg.Err != nil {
			m.setStatus(fmt.Sprintf("Launch %s failed: %v", msg.Filename, msg.Err), true)
		} else {
			m.setStatus(fmt.Sprintf("Launched %s: %s", msg.Filename, msg.Result), false)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	cmd := m.engine.Update(msg)
	m.clamp()
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.Rebuild):
		m.setStatus("Reloading", false)
		return m, m.rebuild()

	case key.Matches(msg, m.keys.View):
		m.favView = !m.favView
		m.cursor = 0

	case key.Matches(msg, m.keys.Left):
		if !m.favView && m.tab > 0 {
			m.tab--
			m.cursor = 0
		}

	case key.Matches(msg, m.keys.Right):
		if !m.favView && m.tab < len(m.engine.Tree().Tabs)-1 {
			m.tab++
			m.cursor = 0
		}

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < m.rows()-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Launch):
		return m, m.launch()

	case key.Matches(msg, m.keys.Favourite):
		m.toggleFavourite()
	}
	return m, nil
}

func (m *Model) rebuild() tea.Cmd {
	m.tab = 0
	m.cursor = 0
	return m.engine.Rebuild(m.engine.Session().Root)
}

func (m Model) launch() tea.Cmd {
	if m.favView {
		items := m.engine.Favourites()
		if m.cursor < len(items) {
			return m.engine.LaunchFavourite(items[m.cursor].Filename)
		}
		return nil
	}
	if tab := m.currentTab(); tab != nil && m.cursor < len(tab.Entries) {
		return m.engine.Launch(tab.Entries[m.cursor])
	}
	return nil
}

func (m *Model) toggleFavourite() {
	if m.favView {
		items := m.engine.Favourites()
		if m.cursor >= len(items) {
			return
		}
		if err := m.engine.Unfavourite(items[m.cursor].Filename); err != nil {
			m.setStatus(err.Error(), true)
		}
		m.clamp()
		return
	}

	tab := m.currentTab()
	if tab == nil || m.cursor >= len(tab.Entries) {
		return
	}
	name := tab.Entries[m.cursor].Filename
	on, err := m.engine.ToggleFavourite(name)
	switch {
	case err != nil:
		m.setStatus(err.Error(), true)
	case on:
		m.setStatus("Added "+name+" to favourites", false)
	default:
		m.setStatus("Removed "+name+" from favourites", false)
	}
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}

func (m Model) currentTab() *panel.Tab {
	tabs := m.engine.Tree().Tabs
	if m.tab < 0 || m.tab >= len(tabs) {
		return nil
	}
	return tabs[m.tab]
}

func (m Model) rows() int {
	if m.favView {
		return len(m.engine.Favourites())
	}
	if tab := m.currentTab(); tab != nil {
		return len(tab.Entries)
	}
	return 0
}

func (m *Model) clamp() {
	if n := len(m.engine.Tree().Tabs); m.tab >= n {
		m.tab = max(n-1, 0)
	}
	if n := m.rows(); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

func (m Model) View() string {
	var b strings.Builder

	tree := m.engine.Tree()
	b.WriteString(titleStyle.Render("Studio Toolkit"))
	if tree.Root != "" {
		b.WriteString("  " + rootStyle.Render(tree.Root))
	}
	b.WriteString("\n")

	if m.favView {
		b.WriteString(m.viewFavourites())
	} else {
		b.WriteString(m.viewTree(tree))
	}

	b.WriteString("\n")
	b.WriteString(m.viewStatus())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) viewTree(tree *panel.Tree) string {
	if tree.Message != "" {
		return emptyStyle.Render(tree.Message) + "\n"
	}
	if len(tree.Tabs) == 0 {
		return emptyStyle.Render("Loading…") + "\n"
	}

	var b strings.Builder
	tabs := make([]string, len(tree.Tabs))
	for i, tab := range tree.Tabs {
		if i == m.tab {
			tabs[i] = activeTabStyle.Render(tab.Dir.Name)
		} else {
			tabs[i] = tabStyle.Render(tab.Dir.Name)
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
	b.WriteString("\n\n")

	tab := m.currentTab()
	switch {
	case tab == nil:
	case tab.State == panel.TabLoading:
		b.WriteString(emptyStyle.Render("Loading…") + "\n")
	case tab.Message != "":
		b.WriteString(emptyStyle.Render(tab.Message) + "\n")
	default:
		for i, e := range tab.Entries {
			b.WriteString(m.row(i, e.Label, e.Favourite))
		}
	}
	return b.String()
}

func (m Model) viewFavourites() string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Favourites"))
	b.WriteString("\n")

	items := m.engine.Favourites()
	if len(items) == 0 {
		b.WriteString(emptyStyle.Render("No favourites yet. Press f on a script to add one.") + "\n")
		return b.String()
	}
	for i, item := range items {
		b.WriteString(m.row(i, item.Label, true))
	}
	return b.String()
}

func (m Model) row(i int, label string, fav bool) string {
	star := starOff
	if fav {
		star = starStyle.Render(starOn)
	}
	line := star + " " + label
	if i == m.cursor {
		return cursorStyle.Render("> "+line) + "\n"
	}
	return entryStyle.Render(line) + "\n"
}

func (m Model) viewStatus() string {
	var parts []string
	if m.online != nil {
		if m.online() {
			parts = append(parts, "host: online")
		} else {
			parts = append(parts, errorStyle.Render("host: offline"))
		}
	}
	if err := m.engine.Err(); err != nil {
		parts = append(parts, errorStyle.Render(err.Error()))
	}
	if m.status != "" {
		if m.statusErr {
			parts = append(parts, errorStyle.Render(m.status))
		} else {
			parts = append(parts, m.status)
		}
	}
	return statusStyle.Render(strings.Join(parts, "  ·  "))
}
