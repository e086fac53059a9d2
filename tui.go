package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"tsquare/grades"
	"tsquare/portal"
)

const (
	MIN_TAB_WIDTH   int = 12
	MIN_WIN_WIDTH   int = 64
	NUM_TABS_SWITCH int = 5
)

var (
	focusedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	blurredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	cursorStyle  = focusedStyle.Copy()
	noStyle      = lipgloss.NewStyle()
	helpStyle    = blurredStyle.Copy()
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	inactiveTabBorder = tabBorderWithBottom("┴", "─", "┴")
	activeTabBorder   = tabBorderWithBottom("┘", " ", "└")
	docStyle          = lipgloss.NewStyle().Padding(1, 2, 1, 2)
	highlightColor    = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	inactiveTabStyle  = lipgloss.NewStyle().Border(inactiveTabBorder, true).BorderForeground(highlightColor).Padding(0, 1)
	activeTabStyle    = inactiveTabStyle.Copy().Border(activeTabBorder, true)
	windowStyle       = lipgloss.NewStyle().BorderForeground(highlightColor).Padding(1, 2).Align(lipgloss.Left).Border(lipgloss.NormalBorder()).UnsetBorderTop()

	helpText = "↑/↓ move • d drop • a add grade • g add category • e edit • w weight • x remove • K/J reorder • c count dropped • r reload • q quit"
)

func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64) + "%"
}

// entryLine renders a flattened row as plain text.
func entryLine(e grades.Entry) string {
	indent := strings.Repeat("  ", e.Depth)
	switch e.Kind {
	case grades.EntryGroup:
		g := e.Node.(*grades.Group)
		score := g.ScoreString()
		if f, ok := g.FractionString(); ok {
			score += " (" + f + ")"
		}
		return fmt.Sprintf("%s%s [%s] %s", indent, g.Name(), formatWeight(g.Weight()), score)
	case grades.EntryGrade:
		g := e.Node.(*grades.Grade)
		line := fmt.Sprintf("%s%-*s %-10s %s", indent, 28-len(indent), g.Name(), g.Raw(), g.ScoreString())
		if g.Dropped() {
			line += " dropped"
		}
		if g.IsArtificial() {
			line += " *"
		}
		return line
	case grades.EntryComment:
		return indent + "  # " + e.Text
	case grades.EntrySpacer:
		return ""
	}
	return indent + e.Text
}

// gradeTab is one class's book and the cursor over its rows.
type gradeTab struct {
	class   portal.Class
	book    *grades.Book
	entries []grades.Entry
	cursor  int
}

func newGradeTab(c portal.Class, b *grades.Book) gradeTab {
	t := gradeTab{class: c, book: b}
	t.refresh()
	return t
}

func selectable(e grades.Entry) bool {
	return e.Kind == grades.EntryGroup || e.Kind == grades.EntryGrade
}

func (t *gradeTab) refresh() {
	var current grades.Scored
	if t.cursor < len(t.entries) {
		current = t.entries[t.cursor].Node
	}
	t.entries = t.book.Root().Flatten()
	t.cursor = 0
	for i, e := range t.entries {
		if current != nil && e.Node == current && selectable(e) {
			t.cursor = i
			return
		}
	}
	if len(t.entries) > 0 && !selectable(t.entries[0]) {
		t.move(1)
	}
}

func (t *gradeTab) move(delta int) {
	for i := t.cursor + delta; i >= 0 && i < len(t.entries); i += delta {
		if selectable(t.entries[i]) {
			t.cursor = i
			return
		}
	}
}

func (t *gradeTab) selected() grades.Scored {
	if t.cursor < len(t.entries) && selectable(t.entries[t.cursor]) {
		return t.entries[t.cursor].Node
	}
	return nil
}

// selectedGroup is the selected category, or the category of the selected
// grade. It is nil when nothing is selected.
func (t *gradeTab) selectedGroup() *grades.Group {
	switch s := t.selected().(type) {
	case *grades.Group:
		return s
	case *grades.Grade:
		return s.Owner()
	}
	return nil
}

// sibling is the node delta places from the selection under the same
// category.
func (t *gradeTab) sibling(delta int) grades.Scored {
	s := t.selected()
	if s == nil || s.Owner() == nil {
		return nil
	}
	children := s.Owner().Children()
	for i, c := range children {
		if c == s && i+delta >= 0 && i+delta < len(children) {
			return children[i+delta]
		}
	}
	return nil
}

func (t gradeTab) View() string {
	var b strings.Builder
	for i, e := range t.entries {
		line := entryLine(e)
		switch {
		case i == t.cursor:
			line = focusedStyle.Render("> " + line)
		case e.Kind == grades.EntryGroup:
			line = "  " + titleStyle.Render(line)
		case e.Kind == grades.EntryGrade && e.Node.(*grades.Grade).Dropped(), e.Kind == grades.EntryComment, e.Kind == grades.EntryPlaceholder:
			line = "  " + blurredStyle.Render(line)
		default:
			line = "  " + noStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteRune('\n')
	}
	root := t.book.Root()
	b.WriteString(strings.Repeat("-", 35) + "\n")
	total := fmt.Sprintf("%-28s %s", "Total", root.ScoreString())
	if root.CountDropped() {
		total += " (counting dropped)"
	}
	b.WriteString(total)
	return b.String()
}

type inputMode int

const (
	modeNone inputMode = iota
	modeAddGrade
	modeAddGroup
	modeEdit
	modeWeight
)

var prompts = map[inputMode]string{
	modeAddGrade: "Name, score[, comment]: ",
	modeAddGroup: "Name, weight: ",
	modeEdit:     "New values: ",
	modeWeight:   "Weight: ",
}

type reloadMsg struct {
	tab  int
	tree *grades.Group
	err  error
}

type tabModel struct {
	ctx       context.Context
	fetch     func(context.Context, portal.Class) (*grades.Group, error)
	Tabs      []gradeTab
	activeTab int
	input     textinput.Model
	mode      inputMode
	target    grades.Scored
	status    string
	failed    bool
}

func (m tabModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *tabModel) report(err error) {
	if err != nil {
		log.WithError(err).Debug("grade change failed")
		m.status, m.failed = err.Error(), true
		return
	}
	m.status, m.failed = "", false
}

func (m *tabModel) prompt(mode inputMode, value string) tea.Cmd {
	m.mode = mode
	m.input.Prompt = prompts[mode]
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.SetCursorMode(textinput.CursorBlink)
	m.input.Focus()
	return textinput.Blink
}

func (m *tabModel) closePrompt() {
	m.Tabs[m.activeTab].book.EndEdit()
	m.mode, m.target = modeNone, nil
	m.input.SetValue("")
	m.input.Prompt = ""
	m.input.SetCursorMode(textinput.CursorHide)
	m.input.Blur()
}

func fields(raw string, lo, hi int) ([]string, error) {
	parts := strings.Split(raw, ",")
	if len(parts) < lo || len(parts) > hi {
		return nil, errors.Errorf("want %d to %d comma separated values", lo, hi)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	for len(parts) < hi {
		parts = append(parts, "")
	}
	return parts, nil
}

// submit applies the prompt's value to the book.
func (m *tabModel) submit(raw string) error {
	tab := &m.Tabs[m.activeTab]
	b := tab.book
	switch m.mode {
	case modeAddGrade:
		f, err := fields(raw, 2, 3)
		if err != nil {
			return err
		}
		// the owner may have been replaced by a reload while typing
		_, err = b.AddGrade(b.EditOwner(), f[0], f[1], f[2])
		return err
	case modeAddGroup:
		f, err := fields(raw, 2, 2)
		if err != nil {
			return err
		}
		w, err := parseWeight(f[1])
		if err != nil {
			return err
		}
		_, err = b.AddGroup(f[0], w)
		return err
	case modeWeight:
		g, ok := m.target.(*grades.Group)
		if !ok {
			return errors.New("select a category")
		}
		w, err := parseWeight(raw)
		if err != nil {
			return err
		}
		return b.SetWeight(g, w)
	case modeEdit:
		switch s := m.target.(type) {
		case *grades.Grade:
			f, err := fields(raw, 2, 3)
			if err != nil {
				return err
			}
			return b.EditGrade(s, f[0], f[1], f[2])
		case *grades.Group:
			f, err := fields(raw, 2, 2)
			if err != nil {
				return err
			}
			w, err := parseWeight(f[1])
			if err != nil {
				return err
			}
			return b.EditGroup(s, f[0], w)
		}
	}
	return nil
}

func (m tabModel) reload(i int) tea.Cmd {
	tab := m.Tabs[i]
	return func() tea.Msg {
		tree, err := m.fetch(m.ctx, tab.class)
		return reloadMsg{tab: i, tree: tree, err: userError(err)}
	}
}

func (m tabModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.closePrompt()
		return m, nil
	case "enter":
		err := m.submit(m.input.Value())
		m.report(err)
		if err == nil {
			m.closePrompt()
			m.Tabs[m.activeTab].refresh()
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m tabModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case reloadMsg:
		if msg.err != nil {
			m.report(msg.err)
			return m, nil
		}
		tab := &m.Tabs[msg.tab]
		if msg.tab == m.activeTab && (m.mode == modeEdit || m.mode == modeWeight) {
			m.closePrompt()
		}
		m.report(tab.book.Reload(msg.tree))
		tab.refresh()
		if m.status == "" {
			m.status = "Reloaded " + tab.class.String()
		}
		return m, nil
	case tea.KeyMsg:
		if m.input.Focused() {
			return m.updateInput(msg)
		}
		tab := &m.Tabs[m.activeTab]
		b := tab.book
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "tab", "]":
			m.activeTab++
			if m.activeTab >= len(m.Tabs) {
				m.activeTab = 0
			}
			m.report(nil)
			return m, nil
		case "shift+tab", "[":
			m.activeTab--
			if m.activeTab < 0 {
				m.activeTab = len(m.Tabs) - 1
			}
			m.report(nil)
			return m, nil
		case "up", "k":
			tab.move(-1)
			return m, nil
		case "down", "j":
			tab.move(1)
			return m, nil
		case "K", "J":
			delta := -1
			if msg.String() == "J" {
				delta = 1
			}
			if other := tab.sibling(delta); other != nil {
				m.report(b.Swap(tab.selected(), other))
				tab.refresh()
			}
			return m, nil
		case "d":
			if g, ok := tab.selected().(*grades.Grade); ok {
				if g.DroppedByUser() {
					m.report(b.PickUp(g))
				} else {
					m.report(b.Drop(g))
				}
				tab.refresh()
			}
			return m, nil
		case "c":
			m.report(b.SetCountDropped(!b.Root().CountDropped()))
			tab.refresh()
			return m, nil
		case "x":
			if s := tab.selected(); s != nil {
				m.report(b.Remove(s))
				tab.refresh()
			}
			return m, nil
		case "a":
			b.BeginEdit(tab.selectedGroup())
			return m, m.prompt(modeAddGrade, "")
		case "g":
			return m, m.prompt(modeAddGroup, "")
		case "w":
			g, ok := tab.selected().(*grades.Group)
			if !ok {
				m.report(errors.New("select a category"))
				return m, nil
			}
			m.target = g
			return m, m.prompt(modeWeight, strconv.FormatFloat(g.Weight(), 'f', -1, 64))
		case "e":
			switch s := tab.selected().(type) {
			case *grades.Grade:
				if !s.IsArtificial() {
					m.report(grades.ErrNotArtificial)
					return m, nil
				}
				m.target = s
				return m, m.prompt(modeEdit, strings.Join([]string{s.Name(), s.Raw(), s.Comment()}, ", "))
			case *grades.Group:
				if !s.IsArtificial() {
					m.report(grades.ErrNotArtificial)
					return m, nil
				}
				m.target = s
				return m, m.prompt(modeEdit, s.Name()+", "+strconv.FormatFloat(s.Weight(), 'f', -1, 64))
			}
			return m, nil
		case "r":
			m.status, m.failed = "Reloading "+tab.class.String()+"...", false
			return m, m.reload(m.activeTab)
		}
	}
	return m, nil
}

func tabBorderWithBottom(left, middle, right string) lipgloss.Border {
	border := lipgloss.RoundedBorder()
	border.BottomLeft = left
	border.Bottom = middle
	border.BottomRight = right
	return border
}

func (m tabModel) View() string {
	doc := strings.Builder{}

	var renderedTabs []string
	content := m.Tabs[m.activeTab].View()
	numTabs := len(m.Tabs)

	for i, t := range m.Tabs {
		var style lipgloss.Style
		isFirst, isLast, isActive := i == 0, i == len(m.Tabs)-1, i == m.activeTab
		if isActive {
			style = activeTabStyle.Copy()
		} else {
			style = inactiveTabStyle.Copy()
		}
		border, _, _, _, _ := style.GetBorder()
		if isFirst && isLast {
			border.BottomLeft = "│"
			border.BottomRight = "│"
			border.Bottom = "─"
		} else if isFirst && isActive {
			border.BottomLeft = "│"
		} else if isFirst && !isActive {
			border.BottomLeft = "├"
		} else if isLast && isActive {
			border.BottomRight = "│"
		} else if isLast && !isActive {
			border.BottomRight = "┤"
		}
		style = style.Border(border)
		if numTabs <= NUM_TABS_SWITCH {
			style = style.Width(MIN_WIN_WIDTH / numTabs)
		} else {
			style = style.Width(MIN_TAB_WIDTH)
		}
		renderedTabs = append(renderedTabs, style.Render(t.class.String()))
	}

	row := lipgloss.JoinHorizontal(lipgloss.Top, renderedTabs...)
	doc.WriteString(row)
	doc.WriteString("\n")
	if numTabs <= NUM_TABS_SWITCH {
		doc.WriteString(windowStyle.Width(MIN_WIN_WIDTH + (2 * (numTabs - 1))).Render(content))
	} else {
		doc.WriteString(windowStyle.Width((MIN_TAB_WIDTH+2)*numTabs - 2).Render(content))
	}
	doc.WriteString("\n")
	if m.input.Focused() {
		doc.WriteString(m.input.View())
		doc.WriteString("\n")
	}
	if m.status != "" {
		style := helpStyle
		if m.failed {
			style = errorStyle
		}
		doc.WriteString(style.Render(m.status))
		doc.WriteString("\n")
	}
	doc.WriteString(helpStyle.Render(helpText))
	return docStyle.Render(doc.String())
}

func newTabModel(ctx context.Context, tabs []gradeTab, fetch func(context.Context, portal.Class) (*grades.Group, error)) tabModel {
	t := textinput.New()
	t.CursorStyle = cursorStyle
	t.Placeholder = "Name, score"
	return tabModel{ctx: ctx, fetch: fetch, Tabs: tabs, input: t}
}

func tui(ctx context.Context, tabs []gradeTab, fetch func(context.Context, portal.Class) (*grades.Group, error)) error {
	if err := tea.NewProgram(newTabModel(ctx, tabs, fetch)).Start(); err != nil {
		return errors.Wrap(err, "running grade browser")
	}
	return nil
}
