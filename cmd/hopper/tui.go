package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	orchestration "github.com/koscakluka/hopper/core"
	"github.com/koscakluka/hopper/internal/config"
	"github.com/muesli/reflow/wordwrap"
)

const (
	colorPrimary   = "#7C3AED"
	colorSky       = "#38BDF8"
	colorGreen     = "#34D399"
	colorRed       = "#F87171"
	colorLightGray = "#9CA3AF"

	headerHeight = 3
	footerHeight = 1
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorPrimary))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(colorLightGray))
	stateStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorSky))
	userStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(colorSky))
	replyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(colorLightGray)).Italic(true)
)

type (
	stateMsg       orchestration.State
	heardMsg       string
	sentenceMsg    string
	responseEndMsg string
	errorMsg       struct{ err error }
	finishedMsg    struct{ err error }
)

type lineKind int

const (
	lineUser lineKind = iota
	lineReply
	lineError
)

type line struct {
	kind lineKind
	text string
}

type consoleModel struct {
	info  string
	stop  func()
	state orchestration.State

	spinner  spinner.Model
	viewport viewport.Model
	ready    bool
	width    int

	lines     []line
	replyOpen bool
}

func newConsoleModel(cfg config.Config, stop func()) *consoleModel {
	return &consoleModel{
		info:    summary(cfg),
		stop:    stop,
		state:   orchestration.StateWaitingWake,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func (m *consoleModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.stop()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := max(msg.Height-headerHeight-footerHeight, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.refresh()

	case stateMsg:
		m.state = orchestration.State(msg)
		if m.state == orchestration.StateWaitingWake {
			m.replyOpen = false
		}

	case heardMsg:
		if msg != "" {
			m.replyOpen = false
			m.appendLine(line{kind: lineUser, text: string(msg)})
		}

	case sentenceMsg:
		if m.replyOpen {
			m.lines[len(m.lines)-1].text += " " + string(msg)
			m.refresh()
		} else {
			m.appendLine(line{kind: lineReply, text: string(msg)})
			m.replyOpen = true
		}

	case responseEndMsg:
		m.replyOpen = false

	case errorMsg:
		m.replyOpen = false
		m.appendLine(line{kind: lineError, text: msg.err.Error()})

	case finishedMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *consoleModel) appendLine(l line) {
	m.lines = append(m.lines, l)
	m.refresh()
}

func (m *consoleModel) refresh() {
	if !m.ready {
		return
	}

	width := max(m.width-2, 20)
	rendered := make([]string, 0, len(m.lines))
	for _, l := range m.lines {
		switch l.kind {
		case lineUser:
			rendered = append(rendered, userStyle.Render(wordwrap.String("you: "+l.text, width)))
		case lineReply:
			rendered = append(rendered, replyStyle.Render(wordwrap.String("hopper: "+l.text, width)))
		case lineError:
			rendered = append(rendered, errorStyle.Render(wordwrap.String("error: "+l.text, width)))
		}
	}
	m.viewport.SetContent(strings.Join(rendered, "\n"))
	m.viewport.GotoBottom()
}

func (m *consoleModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	state := stateStyle.Render(m.state.String())
	if m.state != orchestration.StateWaitingWake {
		state = m.spinner.View() + " " + state
	}

	header := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Hopper"),
		infoStyle.Render(m.info),
		state,
	)
	footer := helpStyle.Render("q: quit  •  ↑/↓: scroll")

	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), footer)
}

// runTUI orchestrates with every callback forwarded to the console. Quitting
// the console cancels the run through stop.
func runTUI(ctx context.Context, stop context.CancelFunc, orchestrator *orchestration.Orchestrator, cfg config.Config) error {
	program := tea.NewProgram(newConsoleModel(cfg, stop), tea.WithAltScreen(), tea.WithContext(ctx))

	errc := make(chan error, 1)
	go func() {
		err := orchestrator.Orchestrate(ctx,
			orchestration.WithStateCallback(func(state orchestration.State) { program.Send(stateMsg(state)) }),
			orchestration.WithTranscriptionCallback(func(text string) { program.Send(heardMsg(text)) }),
			orchestration.WithSentenceCallback(func(text string) { program.Send(sentenceMsg(text)) }),
			orchestration.WithResponseEndCallback(func(text string) { program.Send(responseEndMsg(text)) }),
			orchestration.WithErrorCallback(func(err error) { program.Send(errorMsg{err: err}) }),
		)
		errc <- err
		program.Send(finishedMsg{err: err})
	}()

	_, runErr := program.Run()
	stop()
	err := <-errc
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return errors.Join(err, fmt.Errorf("console failed: %w", runErr))
	}
	return err
}

func summary(cfg config.Config) string {
	tts := "off"
	if cfg.TTS.Enabled {
		tts = cfg.TTS.Backend
	}
	model := fmt.Sprintf("%s @ %s", cfg.Ollama.Model, cfg.OllamaURL())
	if cfg.Chat.Backend == config.ChatBackendOpenAI {
		model = cfg.OpenAI.Model + " @ openai"
	}
	return fmt.Sprintf("wake: %q  •  model: %s  •  tts: %s  •  audio: %s",
		strings.Join(cfg.Phrases.Wake, ", "), model, tts, cfg.Audio.Backend)
}

func banner(cfg config.Config) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Hopper voice assistant"),
		infoStyle.Render(summary(cfg)),
		infoStyle.Render("Say a wake phrase to ask a question. Press Ctrl+C to quit."),
	)
}
