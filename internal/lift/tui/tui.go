// Package tui is the interactive listing viewer: a filterable instruction
// list and a pcode pane for the selected instruction.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"lift/internal/correspond"
	"lift/internal/lift/styles"
	"lift/internal/ui/colorize"
)

type viewMode int

const (
	viewListing viewMode = iota
	viewPcode
)

// Options configure the viewer.
type Options struct {
	Title    string
	Arch     string
	Labels   map[uint64]string
	Comments map[uint64]string
}

type entryItem struct {
	entry   correspond.Entry
	label   string
	comment string
	arch    string
}

func (i entryItem) Title() string {
	return fmt.Sprintf("%08x  %s", i.entry.Inst.Addr.Offset, i.entry.Inst.Text())
}

func (i entryItem) Description() string { return "" }

func (i entryItem) FilterValue() string {
	return i.entry.Inst.Text() + " " + i.label + " " + i.comment
}

type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(entryItem)
	if !ok {
		return
	}

	indicator, addrStyle := " ", styles.Addr
	if index == m.Index() {
		indicator, addrStyle = ">", styles.SelectedAddr
	}

	label := ""
	if i.label != "" {
		label = "  ; " + i.label
	}
	if i.comment != "" {
		label += "  " + colorize.Comment("; "+i.comment)
	}
	fmt.Fprintf(w, " %s  %s  %s%s",
		indicator,
		addrStyle.Render(fmt.Sprintf("%08x", i.entry.Inst.Addr.Offset)),
		colorize.Assembly(i.entry.Inst.Text(), i.arch),
		label)
}

// Model is the bubbletea model of the viewer.
type Model struct {
	list     list.Model
	pcode    viewport.Model
	mode     viewMode
	opts     Options
	listing  *correspond.Listing
	selected int
	width    int
	height   int
}

// New builds a viewer over l.
func New(l *correspond.Listing, opts Options) Model {
	items := make([]list.Item, len(l.Entries))
	for i, e := range l.Entries {
		off := e.Inst.Addr.Offset
		items[i] = entryItem{entry: e, label: opts.Labels[off], comment: opts.Comments[off], arch: opts.Arch}
	}

	lst := list.New(items, itemDelegate{}, 80, 24)
	lst.SetShowStatusBar(false)
	lst.SetFilteringEnabled(true)
	lst.Title = opts.Title
	if lst.Title == "" {
		lst.Title = "Listing"
	}
	lst.Styles.Title = styles.Title
	lst.SetShowHelp(true)

	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(24)

	return Model{
		list:     lst,
		pcode:    vp,
		opts:     opts,
		listing:  l,
		selected: -1,
		width:    80,
		height:   24,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

// PcodeView renders the header and micro-operations of entry i.
func (m Model) PcodeView(i int) string {
	if i < 0 || i >= len(m.listing.Entries) {
		return ""
	}
	e := m.listing.Entries[i]

	var sb strings.Builder
	sb.WriteString(styles.RenderMarkdown(fmt.Sprintf("# %s\n\n`%s`", e.Inst.Addr, e.Inst.Text()), m.width))
	sb.WriteString("\n\n")
	if label := m.opts.Labels[e.Inst.Addr.Offset]; label != "" {
		sb.WriteString(colorize.Label(label))
		sb.WriteByte('\n')
	}
	if c := m.opts.Comments[e.Inst.Addr.Offset]; c != "" {
		sb.WriteString(colorize.Comment("; " + c))
		sb.WriteByte('\n')
	}
	for _, p := range e.Pcodes {
		fmt.Fprintf(&sb, "  %3d  %s\n", p.Seq, colorize.PcodeLine(p))
	}
	if len(e.Pcodes) == 0 {
		sb.WriteString("  (no pcode)\n")
	}
	return sb.String()
}

func (m *Model) showPcode(i int) {
	m.selected = i
	m.mode = viewPcode
	m.pcode.SetContent(m.PcodeView(i))
	m.pcode.GotoTop()
}

// handleKey applies a key press. It reports false when the key is left to
// the active pane.
func (m Model) handleKey(key string) (Model, tea.Cmd, bool) {
	if m.mode == viewListing && m.list.FilterState() == list.Filtering {
		if key == "ctrl+c" {
			return m, tea.Quit, true
		}
		return m, nil, false
	}

	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit, true
	case "enter":
		if m.mode == viewListing && len(m.listing.Entries) > 0 {
			if item, ok := m.list.SelectedItem().(entryItem); ok {
				m.showPcode(m.indexOf(item))
			}
		}
		return m, nil, true
	case "tab":
		if m.mode == viewListing {
			if m.selected < 0 {
				m.showPcode(m.list.Index())
			} else {
				m.mode = viewPcode
			}
		} else {
			m.mode = viewListing
		}
		return m, nil, true
	case "esc":
		if m.mode == viewPcode {
			m.mode = viewListing
			return m, nil, true
		}
	}
	return m, nil, false
}

func (m Model) indexOf(item entryItem) int {
	for i, e := range m.listing.Entries {
		if e.Inst.Addr.Equal(item.entry.Inst.Addr) && e.Inst.Text() == item.entry.Inst.Text() {
			return i
		}
	}
	return m.list.Index()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetWidth(msg.Width)
		m.list.SetHeight(msg.Height - 2)
		m.pcode.SetWidth(msg.Width)
		m.pcode.SetHeight(msg.Height - 2)
		if m.selected >= 0 {
			m.pcode.SetContent(m.PcodeView(m.selected))
		}
		return m, nil

	case tea.KeyMsg:
		var handled bool
		if m, cmd, handled = m.handleKey(msg.String()); handled {
			return m, cmd
		}
	}

	if m.mode == viewPcode {
		m.pcode, cmd = m.pcode.Update(msg)
	} else {
		m.list, cmd = m.list.Update(msg)
	}
	return m, cmd
}

func (m Model) View() string {
	var content, menu string
	if m.mode == viewPcode {
		content = m.pcode.View()
		menu = " Esc/Tab: listing • ↑/↓: scroll • Q: quit "
	} else {
		content = m.list.View()
		menu = " Enter: pcode • /: filter • Tab: pcode • Q: quit "
	}
	return lipgloss.JoinVertical(lipgloss.Left, content, styles.MenuBar.Width(m.width).Render(menu))
}

// Run shows l until the user quits or ctx ends.
func Run(ctx context.Context, l *correspond.Listing, opts Options) error {
	program := tea.NewProgram(
		New(l, opts),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
