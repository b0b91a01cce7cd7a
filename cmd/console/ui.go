package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/tileworld/pkg/chat"
)

const (
	AgentName       = "Narrator"
	PlaceHolderText = "What do you do?"

	noticeLimit = 5
)

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	api          *APIClient
	game         *GameView
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	loading      bool

	// sent is the player message shown while its turn is in flight
	sent string
	// notes are console-only lines appended below the story
	notes []string

	// manual mode
	pendingPrompt *PendingPrompt

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type turnResultMsg struct {
	result *TurnResult
	err    error
}

type gameStateMsg struct {
	game *GameView
	err  error
}

type pendingPromptMsg struct {
	prompt *PendingPrompt
	err    error
}

type noteMsg struct {
	text string
	err  error
}

type sseEventMsg struct {
	event SSEEvent
}

type sseStatusMsg struct {
	err error
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	mapStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("62"))

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

const helpText = `Commands:
• /help - Show this help
• /continue - Let the story move on without acting
• /cancel - Abandon the turn in progress
• /reset - Start a fresh world
• /restart <persona> - Fresh world, opening as <persona>
• /prompt - Copy the waiting manual prompt to the clipboard
• /paste - Answer the manual prompt with the clipboard
• /decline - Decline the manual prompt
• Esc or Ctrl+C - Quit`

func NewConsoleUI(cfg *ConsoleConfig, api *APIClient, game *GameView) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:       cfg,
		api:          api,
		game:         game,
		textarea:     ta,
		chatViewport: chatVp,
		metaViewport: metaVp,
	}
}

func writeMetadata(gv *GameView, pending *PendingPrompt) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("WORLD") + "\n\n")
	if gv == nil {
		return content.String()
	}
	gs := &gv.GameState

	content.WriteString(mapStyle.Render(renderASCIIMap(gs)) + "\n\n")

	content.WriteString(fmt.Sprintf("%s · turn %d\n", gs.LocationName, gs.Turn))
	content.WriteString(fmt.Sprintf("Time: %s\n", gs.TimeOfDay))
	content.WriteString(fmt.Sprintf("Position: %d,%d\n", gs.PlayerPosition.X, gs.PlayerPosition.Y))
	if gv.Status != "" {
		content.WriteString(fmt.Sprintf("Engine: %s\n", gv.Status))
	}
	if pending != nil {
		content.WriteString(loadingStyle.Render(fmt.Sprintf("Prompt #%d waiting", pending.ID)) + "\n")
	}
	content.WriteString("\n")

	content.WriteString("Parameters:\n")
	if len(gs.Parameters) == 0 {
		content.WriteString("None\n")
	}
	for _, p := range gs.Parameters {
		content.WriteString(fmt.Sprintf("• %s: %s\n", p.Name, p.Value))
	}

	if len(gs.StatusEffects) > 0 {
		content.WriteString("\nEffects:\n")
		for _, e := range gs.StatusEffects {
			if e.Duration > 0 {
				content.WriteString(fmt.Sprintf("• %s (%d)\n", e.Name, e.Duration))
			} else {
				content.WriteString(fmt.Sprintf("• %s\n", e.Name))
			}
		}
	}

	content.WriteString(fmt.Sprintf("\nInventory (%d/%d):\n", gs.UsedCapacity(), gs.InventoryCapacity()))
	if len(gs.Inventory) == 0 {
		content.WriteString("Empty\n")
	}
	for _, it := range gs.Inventory {
		line := fmt.Sprintf("• %s x%d", it.Name, it.Quantity)
		if it.IsEquipped {
			line += " (equipped)"
		}
		content.WriteString(line + "\n")
	}

	if len(gs.Quests) > 0 {
		content.WriteString("\nQuests:\n")
		for _, q := range gs.Quests {
			content.WriteString(fmt.Sprintf("• %s [%s]\n", q.Title, q.Status))
		}
	}

	if n := len(gs.SystemLog); n > 0 {
		content.WriteString("\nNotices:\n")
		for _, msg := range gs.SystemLog[max(0, n-noticeLimit):] {
			content.WriteString(promptStyle.Render("• "+msg.Content) + "\n")
		}
	}

	content.WriteString("\n")
	content.WriteString("Commands:\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• /help: Help\n")
	return content.String()
}

// writeChatContent builds the chat content from game state for the current viewport width
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6 // Account for left(3) + right(3) padding

	var content strings.Builder
	content.WriteString(titleStyle.Render("TILEWORLD") + "\n\n")
	content.WriteString("Describe what you do. The world is drawn as the story unfolds.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", max(1, chatWidth-6))) + "\n\n")

	if m.game != nil {
		for _, msg := range m.game.StoryLog {
			switch msg.Role {
			case chat.ChatRoleAgent:
				content.WriteString(formatNarratorResponse(msg.Content, chatWidth) + "\n\n")
			case chat.ChatRoleUser:
				content.WriteString(userStyle.Render("You: ") + wordwrap.String(msg.Content, chatWidth-6) + "\n\n")
			}
		}
	}

	if m.sent != "" {
		content.WriteString(userStyle.Render("You: ") + wordwrap.String(m.sent, chatWidth-6) + "\n\n")
	}

	for _, note := range m.notes {
		content.WriteString(note + "\n\n")
	}

	// If currently loading, add the progress bar
	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func (m *ConsoleUI) addNote(note string) {
	m.notes = append(m.notes, note)
	m.writeChatContent()
}

func (m *ConsoleUI) addError(err error) {
	m.addNote(errorStyle.Render("Error: " + err.Error()))
}

func (m *ConsoleUI) refreshMeta() {
	m.metaViewport.SetContent(writeMetadata(m.game, m.pendingPrompt))
}

func (m ConsoleUI) Init() tea.Cmd {
	return textarea.Blink
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		chatWidth := int(float64(m.width)*0.65) - 4
		metaWidth := m.width - chatWidth - 6

		m.chatViewport.Width = chatWidth - 2
		m.chatViewport.Height = m.height - 7
		m.metaViewport.Width = metaWidth - 2
		m.metaViewport.Height = m.height - 4
		m.textarea.SetWidth(chatWidth - 4)

		m.ready = true
		m.writeChatContent()
		m.refreshMeta()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}
			if m.loading {
				return m, nil
			}

			m.textarea.Reset()
			m.notes = nil
			m.sent = input
			m.startTurn()
			return m, tea.Batch(m.sendTurn(input), progressTick())
		}

	case turnResultMsg:
		m.loading = false
		m.sent = ""
		switch {
		case msg.err != nil:
			m.addError(msg.err)
		case msg.result.Cancelled:
			m.addNote(loadingStyle.Render("Turn cancelled."))
		case msg.result.Error != "":
			m.addError(errors.New(msg.result.Error))
		default:
			m.writeChatContent()
		}
		return m, m.refreshGameState()

	case gameStateMsg:
		if msg.err != nil {
			m.addError(msg.err)
			break
		}
		m.game = msg.game
		m.writeChatContent()
		m.refreshMeta()

	case pendingPromptMsg:
		if msg.err != nil {
			m.addError(msg.err)
			break
		}
		m.pendingPrompt = msg.prompt
		m.refreshMeta()

	case noteMsg:
		if msg.err != nil {
			m.addError(msg.err)
		} else if msg.text != "" {
			m.addNote(promptStyle.Render(msg.text))
		}

	case sseEventMsg:
		return m, m.handleEvent(msg.event)

	case sseStatusMsg:
		// the api runs without redis unless configured; stay quiet
		if msg.err != nil && !strings.Contains(msg.err.Error(), "status 404") {
			m.addNote(promptStyle.Render("Event stream: " + msg.err.Error()))
		}

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()     // Refresh the chat content to update the progress bar
			return m, progressTick() // Continue the animation
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

func (m *ConsoleUI) startTurn() {
	m.loading = true
	m.progressTick = 0 // Reset progress animation
	m.writeChatContent()
}

// handleEvent reacts to engine events pushed over the event stream.
func (m *ConsoleUI) handleEvent(ev SSEEvent) tea.Cmd {
	switch ev.Type {
	case "prompt.pending":
		return m.fetchPendingPrompt()
	case "game.state_updated", "game.reset":
		m.pendingPrompt = nil
		if m.loading {
			return nil
		}
		return m.refreshGameState()
	case "turn.failed", "turn.cancelled":
		m.pendingPrompt = nil
		m.refreshMeta()
	}
	return nil
}

func formatNarratorResponse(response string, width int) string {
	// Check if response already has a speaker prefix
	hasPrefix := false
	if idx := strings.Index(response, ":"); idx > 0 && idx <= 20 {
		speaker := response[:idx]
		if len(strings.Fields(speaker)) <= 2 {
			hasPrefix = true
		}
	}

	// If no prefix, we'll add "Narrator: " so reduce available width
	wrapWidth := width
	if !hasPrefix {
		narratorPrefix := AgentName + ": "
		wrapWidth = width - len(narratorPrefix)
	}

	wrappedResponse := wordwrap.String(response, wrapWidth)
	lines := strings.Split(wrappedResponse, "\n")
	var formattedLines []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			formattedLines = append(formattedLines, "")
			continue
		}

		if idx := strings.Index(trimmed, ":"); idx > 0 && idx <= 20 {
			speaker := trimmed[:idx]
			rest := trimmed[idx+1:]
			if len(strings.Fields(speaker)) <= 2 {
				formattedLines = append(formattedLines, speakerStyle.Render(speaker+":")+rest)
				continue
			}
		}

		formattedLines = append(formattedLines, line)
	}

	result := strings.Join(formattedLines, "\n")
	if !hasPrefix {
		result = narratorStyle.Render(AgentName+": ") + result
	}
	return result
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	m.textarea.Reset()
	name, arg, _ := strings.Cut(strings.TrimSpace(input), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/help":
		m.addNote(titleStyle.Render("Help:") + "\n" + helpText)

	case "/continue":
		if m.loading {
			return m, nil
		}
		m.notes = nil
		m.startTurn()
		return m, tea.Batch(m.continueStory(), progressTick())

	case "/cancel":
		return m, m.run(func(ctx context.Context) (string, error) {
			return "Cancelling turn...", m.api.CancelTurn(ctx)
		})

	case "/reset", "/restart":
		if m.loading {
			m.addError(errors.New("a turn is in progress; /cancel it first"))
			return m, nil
		}
		m.notes = nil
		m.pendingPrompt = nil
		return m, m.resetGame(strings.ToLower(name) == "/restart", arg)

	case "/prompt":
		return m, m.run(func(ctx context.Context) (string, error) {
			p, err := m.api.PendingPrompt(ctx)
			if err != nil {
				return "", err
			}
			if err := clipboard.WriteAll(p.Prompt); err != nil {
				return "", fmt.Errorf("failed to copy prompt: %w", err)
			}
			return fmt.Sprintf("Prompt #%d copied to clipboard (%d chars).", p.ID, len(p.Prompt)), nil
		})

	case "/paste":
		return m, m.run(func(ctx context.Context) (string, error) {
			text, err := clipboard.ReadAll()
			if err != nil {
				return "", fmt.Errorf("failed to read clipboard: %w", err)
			}
			if strings.TrimSpace(text) == "" {
				return "", errors.New("clipboard is empty")
			}
			return "Response submitted.", m.api.RespondManual(ctx, text)
		})

	case "/decline":
		return m, m.run(func(ctx context.Context) (string, error) {
			return "Prompt declined.", m.api.DeclineManual(ctx)
		})

	default:
		m.addError(fmt.Errorf("unknown command %s, try /help", name))
	}
	return m, nil
}

// run performs a short api call off the UI goroutine and reports the outcome
// as a note.
func (m ConsoleUI) run(fn func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		text, err := fn(context.Background())
		if err != nil {
			return noteMsg{err: err}
		}
		return noteMsg{text: text}
	}
}

func (m ConsoleUI) sendTurn(message string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.api.SendTurn(context.Background(), message)
		return turnResultMsg{res, err}
	}
}

func (m ConsoleUI) continueStory() tea.Cmd {
	return func() tea.Msg {
		res, err := m.api.ContinueStory(context.Background())
		return turnResultMsg{res, err}
	}
}

func (m ConsoleUI) resetGame(restart bool, persona string) tea.Cmd {
	return func() tea.Msg {
		var (
			gv  *GameView
			err error
		)
		if restart {
			gv, err = m.api.Restart(context.Background(), persona)
		} else {
			gv, err = m.api.Reset(context.Background())
		}
		return gameStateMsg{gv, err}
	}
}

func (m ConsoleUI) refreshGameState() tea.Cmd {
	return func() tea.Msg {
		gv, err := m.api.GameState(context.Background())
		return gameStateMsg{gv, err}
	}
}

func (m ConsoleUI) fetchPendingPrompt() tea.Cmd {
	return func() tea.Msg {
		p, err := m.api.PendingPrompt(context.Background())
		if errors.Is(err, errNoPrompt) {
			return pendingPromptMsg{}
		}
		return pendingPromptMsg{p, err}
	}
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	content.WriteString("The world keeps running on the server. Leave the console?")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.65) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"", // Add empty line for spacing
			separatorStyle.Render(strings.Repeat("─", max(1, chatWidth-4))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30 // fallback before sizing
	}
	usable = min(max(usable, 10), 80)

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := range usable {
		switch {
		case i < filled:
			bar.WriteString("█")
		case i == filled && frame%4 < 2:
			bar.WriteString("▓") // Blinking effect at the progress point
		default:
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
