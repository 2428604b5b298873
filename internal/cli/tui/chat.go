package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/lvyanru/hitl-chat/internal/cli/types"
	"github.com/lvyanru/hitl-chat/internal/cli/ui"
)

// UI configuration constants
const (
	defaultInputWidth     = 100
	defaultViewportWidth  = 100
	defaultViewportHeight = 30
	defaultWindowWidth    = 100
	defaultWindowHeight   = 40
	inputCharLimit        = 4000
	inputHeightReserved   = 2
	statusHeightReserved  = 3
	minContentHeight      = 10
	threadIDDisplayLength = 8
)

var (
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	boldStyle     = lipgloss.NewStyle().Bold(true)
	accentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	approvalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("212")).
			Padding(0, 1)
)

type streamState int

const (
	streamIdle streamState = iota
	streamStreaming
	streamAwaitingApproval
)

// Streamer opens a chat event stream
type Streamer interface {
	Chat(ctx context.Context, req types.ChatRequest) (<-chan types.StreamEvent, <-chan error, error)
}

// ChatProgram encapsulates the chat TUI program
type ChatProgram struct {
	model chatModel
}

// NewChatProgram creates a chat program on threadID; an empty id starts a
// new thread. onThread is called with the thread id the server assigns.
func NewChatProgram(streamer Streamer, threadID string, onThread func(string)) *ChatProgram {
	return &ChatProgram{model: initialModel(streamer, threadID, onThread)}
}

// Run starts the chat TUI program
func (p *ChatProgram) Run() error {
	program := tea.NewProgram(p.model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

type chatModel struct {
	streamer Streamer
	threadID string
	onThread func(string)

	input       textinput.Model
	contentView viewport.Model

	state   streamState
	content *strings.Builder
	pending *types.Approval

	eventCh <-chan types.StreamEvent
	errCh   <-chan error

	err error

	width  int
	height int
}

func initialModel(streamer Streamer, threadID string, onThread func(string)) chatModel {
	input := textinput.New()
	input.Focus()
	input.CharLimit = inputCharLimit
	input.Width = defaultInputWidth
	input.Prompt = ""
	input.TextStyle = lipgloss.NewStyle()
	input.PromptStyle = lipgloss.NewStyle()

	contentViewport := viewport.New(defaultViewportWidth, defaultViewportHeight)
	contentViewport.SetContent("")

	return chatModel{
		streamer:    streamer,
		threadID:    threadID,
		onThread:    onThread,
		input:       input,
		contentView: contentViewport,
		state:       streamIdle,
		content:     &strings.Builder{},
		width:       defaultWindowWidth,
		height:      defaultWindowHeight,
	}
}

// Init initializes the model (Bubble Tea interface)
func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

type (
	streamInitMsg struct {
		eventCh <-chan types.StreamEvent
		errCh   <-chan error
	}
	streamEventMsg struct{ event types.StreamEvent }
	streamErrMsg   struct{ err error }
	streamDoneMsg  struct{}
)

// Update processes messages and updates the model (Bubble Tea interface)
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		cmd, handled := m.handleKeyPress(msg)
		cmds = append(cmds, cmd)
		if handled {
			return m, tea.Batch(cmds...)
		}

	case tea.WindowSizeMsg:
		m.handleWindowResize(msg)

	case streamInitMsg:
		m.eventCh = msg.eventCh
		m.errCh = msg.errCh
		cmds = append(cmds, waitForEvent(m.eventCh, m.errCh))

	case streamEventMsg:
		m.handleEvent(msg.event)
		cmds = append(cmds, waitForEvent(m.eventCh, m.errCh))

	case streamErrMsg:
		m.err = msg.err
		m.state = streamIdle
		m.eventCh, m.errCh = nil, nil
		m.refreshContent()

	case streamDoneMsg:
		m.finishStream()
	}

	if m.state != streamStreaming {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// handleKeyPress returns handled=true when the key must not reach the input
func (m *chatModel) handleKeyPress(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return tea.Quit, true

	case tea.KeyEnter:
		if m.state == streamStreaming {
			return nil, true
		}
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return nil, true
		}
		// a new message on a suspended thread cancels the pending call
		m.pending = nil
		m.beginTurn(text)
		return m.send(types.TextMessage(text)), true

	case tea.KeyRunes:
		if m.state == streamAwaitingApproval && m.input.Value() == "" && len(msg.Runes) == 1 {
			switch msg.Runes[0] {
			case 'y', 'Y':
				return m.decide(true), true
			case 'n', 'N':
				return m.decide(false), true
			}
		}

	case tea.KeyUp:
		m.contentView.LineUp(1)

	case tea.KeyDown:
		m.contentView.LineDown(1)

	case tea.KeyPgUp:
		m.contentView.ViewUp()

	case tea.KeyPgDown:
		m.contentView.ViewDown()
	}

	return nil, false
}

func (m *chatModel) decide(approved bool) tea.Cmd {
	pending := m.pending
	m.pending = nil

	label := "Approved"
	if !approved {
		label = "Rejected"
	}
	m.beginTurn(fmt.Sprintf("%s %s", label, pending.ToolName))
	return m.send(types.DecisionMessage(pending.ToolCallID, pending.ToolName, approved))
}

func (m *chatModel) handleWindowResize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height

	contentHeight := msg.Height - inputHeightReserved - statusHeightReserved
	if contentHeight < minContentHeight {
		contentHeight = minContentHeight
	}

	m.contentView.Width = msg.Width
	m.contentView.Height = contentHeight
	m.input.Width = msg.Width - 3

	m.refreshContent()
}

// beginTurn echoes the user's input and switches to streaming
func (m *chatModel) beginTurn(text string) {
	m.input.Reset()
	m.err = nil

	m.content.WriteString("\n")
	m.content.WriteString(boldStyle.Render("You"))
	m.content.WriteString("\n")
	m.content.WriteString(text)
	m.content.WriteString("\n\n")
	m.content.WriteString(accentStyle.Render("Assistant"))
	m.content.WriteString("\n")

	m.state = streamStreaming
	m.refreshContent()
}

func (m *chatModel) finishStream() {
	m.eventCh, m.errCh = nil, nil
	if m.pending != nil {
		m.state = streamAwaitingApproval
	} else {
		m.state = streamIdle
	}
	m.content.WriteString("\n")
	m.refreshContent()
}

func (m *chatModel) send(message types.UIMessage) tea.Cmd {
	req := types.ChatRequest{
		ThreadID: m.threadID,
		Messages: []types.UIMessage{message},
	}
	streamer := m.streamer
	return func() tea.Msg {
		eventCh, errCh, err := streamer.Chat(context.Background(), req)
		if err != nil {
			return streamErrMsg{err: err}
		}
		return streamInitMsg{eventCh: eventCh, errCh: errCh}
	}
}

func waitForEvent(eventCh <-chan types.StreamEvent, errCh <-chan error) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-eventCh
		if ok {
			return streamEventMsg{event: ev}
		}
		if err, ok := <-errCh; ok && err != nil {
			return streamErrMsg{err: err}
		}
		return streamDoneMsg{}
	}
}

// handleEvent renders one protocol event
func (m *chatModel) handleEvent(ev types.StreamEvent) {
	switch ev.Type {
	case types.EventSession:
		m.threadID = ev.ThreadID
		if m.onThread != nil {
			m.onThread(ev.ThreadID)
		}

	case types.EventTextDelta:
		m.content.WriteString(ev.Content)

	case types.EventToolCall:
		m.content.WriteString("\n")
		m.content.WriteString(dimStyle.Render(fmt.Sprintf("→ %s %s", ev.ToolName, ui.FormatValue(ev.Args))))
		m.content.WriteString("\n")

	case types.EventToolResult:
		m.content.WriteString(dimStyle.Render(fmt.Sprintf("← %s %s", ev.ToolName, ui.FormatValue(ev.Result))))
		m.content.WriteString("\n")

	case types.EventApprovalRequested:
		m.pending = &types.Approval{ToolCallID: ev.ToolCallID, ToolName: ev.ToolName, Args: ev.Args}
		m.content.WriteString("\n")
		m.content.WriteString(approvalStyle.Render(
			fmt.Sprintf("Approval required: %s\n%s\n\n[y] approve  [n] reject", ev.ToolName, ui.FormatValue(ev.Args)),
		))
		m.content.WriteString("\n")

	case types.EventStatus:
		m.content.WriteString(dimStyle.Render(fmt.Sprintf("[%s] %s", ev.Code, ev.Message)))
		m.content.WriteString("\n")

	case types.EventError:
		m.content.WriteString("\n")
		m.content.WriteString(errorStyle.Render(fmt.Sprintf("Error: %s", ev.Message)))
		m.content.WriteString("\n")

	case types.EventFinish:
		if ev.FinishReason != "" && ev.FinishReason != "stop" {
			m.content.WriteString(dimStyle.Render("(" + ev.FinishReason + ")"))
		}
	}

	m.refreshContent()
}

func (m *chatModel) refreshContent() {
	display := m.content.String()
	if m.err != nil {
		display += "\n" + errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}

	if m.width > 0 {
		display = wrapText(display, m.width)
	}

	m.contentView.SetContent(display)
	m.contentView.GotoBottom()
}

// wrapText wraps every line to maxWidth display cells
func wrapText(text string, maxWidth int) string {
	if maxWidth <= 10 {
		return text
	}

	lines := strings.Split(text, "\n")
	var result strings.Builder

	for i, line := range lines {
		if i > 0 {
			result.WriteString("\n")
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		result.WriteString(wrapLine(line, maxWidth))
	}

	return result.String()
}

// wrapLine breaks a line by display width so wide runes wrap correctly.
// Lines carrying ANSI styling are left to the terminal.
func wrapLine(line string, maxWidth int) string {
	if strings.Contains(line, "\x1b[") || runewidth.StringWidth(line) <= maxWidth {
		return line
	}

	var result strings.Builder
	var currentLine strings.Builder
	currentWidth := 0

	for _, r := range line {
		runeW := runewidth.RuneWidth(r)

		if currentWidth+runeW > maxWidth && currentWidth > 0 {
			result.WriteString(currentLine.String())
			result.WriteString("\n")
			currentLine.Reset()
			currentWidth = 0
		}

		currentLine.WriteRune(r)
		currentWidth += runeW
	}

	if currentLine.Len() > 0 {
		result.WriteString(currentLine.String())
	}

	return result.String()
}

// View renders the UI (Bubble Tea interface)
func (m chatModel) View() string {
	thread := "new thread"
	if m.threadID != "" {
		thread = "thread " + runewidth.Truncate(m.threadID, threadIDDisplayLength, "")
	}
	status := dimStyle.Render(thread)

	var inputView, help string
	switch m.state {
	case streamStreaming:
		status += dimStyle.Render(" • generating...")
		inputView = dimStyle.Render("> ") + dimStyle.Render("waiting for the reply...")
	case streamAwaitingApproval:
		status += dimStyle.Render(" • awaiting approval")
		inputView = promptStyle.Render("> ") + m.input.View()
		help = dimStyle.Render("y approve • n reject • type a message to cancel • Esc quit")
	default:
		inputView = promptStyle.Render("> ") + m.input.View()
		help = dimStyle.Render("Enter send • ↑↓ scroll • Esc quit")
	}

	parts := []string{status, "", m.contentView.View(), "", inputView}
	if help != "" {
		parts = append(parts, help)
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
