package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sbclang/sbcvm"
	"github.com/sbclang/sbcvm/module"
	"github.com/sbclang/sbcvm/vm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999"))
)

const historyLimit = 12

type modelState int

const (
	stateLoading modelState = iota
	stateStepping
	stateDone
)

type interactiveModel struct {
	filename    string
	skipVerify  bool
	gcThreshold int

	err   error
	m     *module.Module
	vmRef *vm.VM

	state   modelState
	history []string
	result  vm.Result
}

func newInteractiveModel(filename string, skipVerify bool, gcThreshold int) *interactiveModel {
	return &interactiveModel{
		filename:    filename,
		skipVerify:  skipVerify,
		gcThreshold: gcThreshold,
		state:       stateLoading,
	}
}

type loadedMsg struct {
	err error
	m   *module.Module
	v   *vm.VM
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *interactiveModel) loadModule() tea.Msg {
	mod, err := sbcvm.LoadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	v, err := sbcvm.New(mod, sbcvm.Config{SkipVerify: m.skipVerify, GCThreshold: m.gcThreshold})
	if err != nil {
		return loadedMsg{err: err}
	}
	if err := v.StartStep(); err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{m: mod, v: v}
}

func (m *interactiveModel) pushHistory(line string) {
	m.history = append(m.history, line)
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
}

func (m *interactiveModel) step() {
	status, result, err := m.vmRef.Step()
	instr := m.vmRef.CurrentInstruction()
	if err != nil {
		m.pushHistory(errorStyle.Render(err.Error()))
		m.result = vm.Result{Status: vm.StatusTrapped, Err: err}
		m.state = stateDone
		return
	}
	if instr != "" {
		m.pushHistory(instr)
	}
	if status != vm.StatusRunning {
		m.result = result
		m.state = stateDone
	}
}

func (m *interactiveModel) runToCompletion() {
	for m.state == stateStepping {
		m.step()
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "n":
			if m.state == stateStepping {
				m.step()
			}

		case "c":
			if m.state == stateStepping {
				m.runToCompletion()
			}

		case "r":
			if m.state == stateDone && m.err == nil {
				m.state = stateLoading
				return m, m.loadModule
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.m = msg.m
		m.vmRef = msg.v
		m.history = nil
		m.state = stateStepping
	}

	return m, nil
}

func (m *interactiveModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("SBC Debugger"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("q quit"))
		return b.String()
	}

	switch m.state {
	case stateLoading:
		b.WriteString("Loading module...")
		return b.String()

	case stateStepping, stateDone:
		funcID, pc, ok := m.vmRef.PC()
		if ok {
			b.WriteString(fmt.Sprintf("func %s  pc %s\n", funcStyle.Render(fmt.Sprint(funcID)), typeStyle.Render(fmt.Sprint(pc))))
		} else {
			b.WriteString(dimStyle.Render("halted\n"))
		}
		b.WriteString(fmt.Sprintf("frames: %d\n\n", m.vmRef.FrameDepth()))

		b.WriteString("Recent instructions:\n")
		for _, line := range m.history {
			b.WriteString("  " + line + "\n")
		}
		b.WriteString("\n")

		b.WriteString("Locals: " + strings.Join(m.vmRef.LocalsSnapshot(), ", ") + "\n")
		b.WriteString("Stack:  " + strings.Join(m.vmRef.StackSnapshot(), ", ") + "\n\n")

		stats := m.vmRef.Heap().Stats()
		b.WriteString(fmt.Sprintf("heap: live=%d capacity=%d free=%d gcs=%d\n\n",
			stats.Live, stats.Capacity, stats.FreeSlots, stats.NumGCs))

		if m.state == stateDone {
			b.WriteString(fmt.Sprintf("Status: %s  exit code: %d\n", m.result.Status, m.result.ExitCode))
			if m.result.Err != nil {
				b.WriteString(errorStyle.Render(m.result.Err.Error()))
			} else {
				b.WriteString(resultStyle.Render("program halted"))
			}
			b.WriteString("\n\n")
			b.WriteString(helpStyle.Render("r restart • q quit"))
		} else {
			b.WriteString(helpStyle.Render("n step • c continue • q quit"))
		}
	}

	return b.String()
}

func runInteractive(filename string, skipVerify bool, gcThreshold int) error {
	p := tea.NewProgram(newInteractiveModel(filename, skipVerify, gcThreshold), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
