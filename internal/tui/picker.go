package tui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"
)

// ErrCancelled is returned when the user aborts an interactive selection.
var ErrCancelled = errors.New("selection cancelled")

// Picker asks the user to pick one of an ordered set of strings. Commands
// use it when `use` or `remove` is invoked without an explicit version.
type Picker interface {
	ChooseOne(prompt string, options []string) (string, error)
}

const pickerMaxVisible = 15

// FuzzyPicker is a terminal Picker with incremental fuzzy filtering.
type FuzzyPicker struct {
	In  io.Reader
	Out io.Writer
}

// ChooseOne runs the picker until the user confirms a row or cancels.
func (p FuzzyPicker) ChooseOne(prompt string, options []string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("nothing to choose from")
	}

	var progOpts []tea.ProgramOption
	if p.In != nil {
		progOpts = append(progOpts, tea.WithInput(p.In))
	}
	if p.Out != nil {
		progOpts = append(progOpts, tea.WithOutput(p.Out))
	}

	final, err := tea.NewProgram(newPickerModel(prompt, options), progOpts...).Run()
	if err != nil {
		return "", err
	}

	m, ok := final.(pickerModel)
	if !ok || m.cancelled {
		return "", ErrCancelled
	}
	return m.choice, nil
}

var _ Picker = FuzzyPicker{}

type pickerModel struct {
	prompt    string
	options   []string
	input     textinput.Model
	filtered  []int
	cursor    int
	choice    string
	cancelled bool
	done      bool
}

func newPickerModel(prompt string, options []string) pickerModel {
	input := textinput.New()
	input.Placeholder = "type to filter"
	input.Prompt = "> "
	input.Focus()

	m := pickerModel{prompt: prompt, options: options, input: input}
	m.filtered = filterOptions("", options)
	return m
}

// filterOptions returns the indices of options matching the pattern, best
// match first; an empty pattern keeps the original order.
func filterOptions(pattern string, options []string) []int {
	if strings.TrimSpace(pattern) == "" {
		all := make([]int, len(options))
		for i := range options {
			all[i] = i
		}
		return all
	}

	matches := fuzzy.Find(pattern, options)
	idx := make([]int, len(matches))
	for i, match := range matches {
		idx[i] = match.Index
	}
	return idx
}

func (m pickerModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.cancelled = true
		m.done = true
		return m, tea.Quit
	case tea.KeyEnter:
		if len(m.filtered) > 0 {
			m.choice = m.options[m.filtered[m.cursor]]
			m.done = true
			return m, tea.Quit
		}
		return m, nil
	case tea.KeyUp:
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case tea.KeyDown:
		if m.cursor < len(m.filtered)-1 {
			m.cursor++
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.filtered = filterOptions(m.input.Value(), m.options)
	if m.cursor >= len(m.filtered) {
		m.cursor = 0
	}
	return m, cmd
}

func (m pickerModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(PromptStyle.Render(m.prompt))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")

	visible := m.filtered
	offset := 0
	if m.cursor >= pickerMaxVisible {
		offset = m.cursor - pickerMaxVisible + 1
	}
	if offset+pickerMaxVisible < len(visible) {
		visible = visible[offset : offset+pickerMaxVisible]
	} else {
		visible = visible[offset:]
	}

	for i, optIdx := range visible {
		row := m.options[optIdx]
		if offset+i == m.cursor {
			b.WriteString(SelectedStyle.Render("» " + row))
		} else {
			b.WriteString(DimStyle.Render("  " + row))
		}
		b.WriteString("\n")
	}
	if len(m.filtered) == 0 {
		b.WriteString(DimStyle.Render("  no matches"))
		b.WriteString("\n")
	}

	b.WriteString(DimStyle.Render("enter: select  esc: cancel"))
	b.WriteString("\n")
	return b.String()
}
