package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/trail-engine/pkg/chat"
	"github.com/jwebster45206/trail-engine/pkg/state"
)

const (
	placeholderText     = "What do you do next, pioneer?"
	namePlaceholderText = "Enter your name for the leaderboard..."

	transcriptContextLimit = 24
	transcriptContextChars = 1800

	missingOutcomeText = "The prairie wind howls, but no clear outcome reaches your campfire."
)

var anachronismRe = regexp.MustCompile(`(?i)\b(phone|smart ?phone|gps|google|internet|wifi|uber|lyft|chatgpt|tesla|tiktok|instagram|youtube|email|app|address bar)\b`)

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
			Foreground(lipgloss.Color("178")). // amber
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("246")) // grey

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	gameOverStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178")).
			Bold(true).
			Align(lipgloss.Center)
)

// ConsoleUI is the BubbleTea model that runs the terminal client.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config  *ConsoleConfig
	client  *http.Client
	storage *Storage

	trailState  *state.TrailState
	transcript  []chat.TranscriptMessage
	leaderboard []LeaderboardEntry
	lastMeta    *chat.MetaEvent

	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	errText      string
	loading      bool
	progressTick int

	// In-flight turn state
	events          chan turnEvent
	cancelTurn      context.CancelFunc
	aggregated      string
	streamNarrative string
	streamState     *state.TrailState
	streamErr       string
	anachronistic   bool

	awaitingName    bool
	scoreSaved      bool
	started         bool
	showQuitModal   bool
	showLeaderboard bool
	statusLine      string
}

type turnEventMsg struct {
	event turnEvent
	ok    bool
}

type progressTickMsg struct{}

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client, storage *Storage) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = placeholderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 320
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	ui := ConsoleUI{
		config:       cfg,
		client:       client,
		storage:      storage,
		textarea:     ta,
		chatViewport: chatVp,
		metaViewport: metaVp,
		leaderboard:  storage.LoadLeaderboard(),
	}

	if run := storage.LoadActiveRun(); run != nil {
		if run.State != nil {
			fallback := state.NewTrailState(run.State.SessionID)
			ui.trailState = state.Normalize(run.State, fallback)
		}
		ui.transcript = run.Transcript
		ui.awaitingName = run.AwaitingName
		ui.scoreSaved = run.ScoreSaved
		ui.started = ui.trailState != nil || len(ui.transcript) > 0
	}
	if ui.awaitingName {
		ui.textarea.Placeholder = namePlaceholderText
	}

	return ui
}

func (m ConsoleUI) Init() tea.Cmd {
	// The first turn boots once the window size arrives.
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
		m.textarea, tiCmd = m.textarea.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(tiCmd, vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizePanels()

		var bootCmd tea.Cmd
		if !m.ready {
			m.ready = true
			if !m.started {
				// First launch with no save: boot a fresh run.
				m.started = true
				bootCmd = m.beginTurn(state.ModeStart, "")
			}
		}
		m.writeChatContent()
		m.writeMetaContent()
		if bootCmd != nil {
			return m, tea.Batch(bootCmd, progressTick())
		}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			return m.handleEnter()
		}

	case turnEventMsg:
		return m.handleTurnEvent(msg)

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

func (m *ConsoleUI) resizePanels() {
	chatWidth := int(float64(m.width)*0.68) - 4
	metaWidth := m.width - chatWidth - 6

	m.chatViewport.Width = chatWidth - 2
	m.chatViewport.Height = m.height - 7
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(chatWidth - 4)
}

func (m ConsoleUI) handleEnter() (tea.Model, tea.Cmd) {
	if m.loading {
		return m, nil
	}

	input := strings.TrimSpace(m.textarea.Value())
	if input == "" {
		return m, nil
	}

	if m.awaitingName {
		m.submitLeaderboardName(input)
		m.textarea.Reset()
		m.textarea.Placeholder = placeholderText
		m.writeChatContent()
		m.writeMetaContent()
		return m, nil
	}

	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}

	if m.trailState.IsGameOver() {
		m.statusLine = "The journey is over. Use /new to start another run."
		m.writeChatContent()
		return m, nil
	}

	m.textarea.Reset()
	cmd := m.beginTurn(state.ModeTurn, input)
	return m, tea.Batch(cmd, progressTick())
}

// beginTurn starts a streaming turn against the API. Transcript entries
// for the player input (and the boot banner on start) are committed
// immediately; the assistant entry lands when the turn resolves.
func (m *ConsoleUI) beginTurn(mode, playerInput string) tea.Cmd {
	m.loading = true
	m.progressTick = 0
	m.errText = ""
	m.statusLine = ""
	m.aggregated = ""
	m.streamNarrative = ""
	m.streamState = nil
	m.streamErr = ""
	m.anachronistic = mode == state.ModeTurn && anachronismRe.MatchString(playerInput)

	if mode == state.ModeStart {
		m.transcript = []chat.TranscriptMessage{{
			Role: chat.ChatRoleSystem,
			Text: ">> Wagon systems initialized. The year is 1848. The trail is unforgiving.",
		}}
		if m.trailState == nil {
			m.trailState = state.NewTrailState("")
		}
	} else {
		m.transcript = append(m.transcript, chat.TranscriptMessage{Role: chat.ChatRoleUser, Text: playerInput})
	}
	m.persistRun()
	m.writeChatContent()

	stateJSON, _ := json.Marshal(m.trailState)
	turnReq := &chat.TurnRequest{
		Mode:        mode,
		PlayerInput: playerInput,
		State:       stateJSON,
		Transcript:  contextTranscript(m.transcript),
		ClientHints: chat.ClientHints{AnachronisticInput: m.anachronistic},
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.config.Timeout)
	m.cancelTurn = cancel

	events := make(chan turnEvent, 32)
	m.events = events
	go streamTurn(ctx, m.client, m.config.APIBaseURL, turnReq, events)

	return waitForTurnEvent(events)
}

func waitForTurnEvent(events <-chan turnEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		return turnEventMsg{event: event, ok: ok}
	}
}

func (m ConsoleUI) handleTurnEvent(msg turnEventMsg) (tea.Model, tea.Cmd) {
	if !msg.ok {
		// Stream closed: resolve the turn with whatever arrived.
		m.finishTurn()
		m.writeChatContent()
		m.writeMetaContent()
		return m, nil
	}

	switch msg.event.kind {
	case "token":
		m.aggregated += msg.event.token
		m.writeChatContent()
	case "state":
		m.streamState = msg.event.state
		m.streamNarrative = msg.event.narrative
	case "meta":
		meta := msg.event.meta
		m.lastMeta = &meta
	case "error":
		m.streamErr = msg.event.message
	case "fail":
		if msg.event.err != nil {
			if errors.Is(msg.event.err, context.DeadlineExceeded) {
				m.streamErr = "Trail response timed out. Try your command again."
			} else if m.streamErr == "" {
				m.streamErr = msg.event.err.Error()
			}
		}
	}

	return m, waitForTurnEvent(m.events)
}

// finishTurn commits the resolved turn: the assistant transcript entry,
// the next state with the client-side anachronism floor, persistence,
// and the name prompt when the run just ended.
func (m *ConsoleUI) finishTurn() {
	m.loading = false
	if m.cancelTurn != nil {
		m.cancelTurn()
		m.cancelTurn = nil
	}
	m.events = nil

	narrative := m.streamNarrative
	if narrative == "" {
		narrative = toVisibleNarrative(m.aggregated)
	}
	if narrative == "" {
		narrative = missingOutcomeText
	}
	m.transcript = append(m.transcript, chat.TranscriptMessage{Role: chat.ChatRoleAssistant, Text: narrative})

	if m.streamState == nil {
		if m.streamErr == "" {
			m.streamErr = "The model response was missing valid trail state. Try another command."
		}
		m.errText = m.streamErr
		m.persistRun()
		return
	}

	next := m.streamState
	if m.anachronistic && m.trailState != nil && next.Flags.AnachronismCount <= m.trailState.Flags.AnachronismCount {
		bumped := *next
		bumped.Flags.AnachronismCount = m.trailState.Flags.AnachronismCount + 1
		next = &bumped
	}
	m.trailState = next
	m.errText = m.streamErr

	if m.trailState.IsGameOver() && !m.scoreSaved {
		m.awaitingName = true
		m.textarea.Placeholder = namePlaceholderText
	}
	m.persistRun()
}

func (m *ConsoleUI) submitLeaderboardName(input string) {
	if m.trailState == nil || !m.trailState.IsGameOver() || m.scoreSaved {
		m.statusLine = "No completed run is available to save."
		return
	}

	safeName := SanitizePlayerName(input)
	score := state.Score(m.trailState)
	m.leaderboard = m.storage.AddLeaderboardEntry(LeaderboardEntry{
		Name:          safeName,
		Score:         score,
		Won:           m.trailState.Flags.Won,
		MilesTraveled: m.trailState.Progress.MilesTraveled,
		Turns:         m.trailState.Turn.Index,
		EndedAt:       time.Now().UTC().Format(time.RFC3339),
		LossReason:    m.trailState.Flags.LossReason,
	})
	m.scoreSaved = true
	m.awaitingName = false
	m.statusLine = fmt.Sprintf("Saved %d points for %s.", score, safeName)
	m.persistRun()
}

func (m *ConsoleUI) persistRun() {
	m.storage.SaveActiveRun(ActiveRun{
		State:        m.trailState,
		Transcript:   m.transcript,
		AwaitingName: m.awaitingName,
		ScoreSaved:   m.scoreSaved,
	})
}

// contextTranscript keeps a recent window of the transcript. The window
// is deliberately wider than the server's default transcript window; the
// server re-trims to its own configured limits and stays authoritative.
func contextTranscript(transcript []chat.TranscriptMessage) []chat.TranscriptMessage {
	start := 0
	if len(transcript) > transcriptContextLimit {
		start = len(transcript) - transcriptContextLimit
	}
	window := make([]chat.TranscriptMessage, 0, len(transcript)-start)
	for _, msg := range transcript[start:] {
		text := msg.Text
		if runes := []rune(text); len(runes) > transcriptContextChars {
			text = string(runes[len(runes)-transcriptContextChars:])
		}
		window = append(window, chat.TranscriptMessage{Role: msg.Role, Text: text})
	}
	return window
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	cmd := strings.ToLower(strings.TrimSpace(input))
	m.textarea.Reset()

	switch cmd {
	case "/help":
		m.statusLine = "Commands: /new restart, /score leaderboard, /copy copy last outcome, Ctrl+C quit."
	case "/new":
		if m.cancelTurn != nil {
			m.cancelTurn()
			m.cancelTurn = nil
		}
		m.storage.ClearActiveRun()
		m.trailState = nil
		m.transcript = nil
		m.awaitingName = false
		m.scoreSaved = false
		m.errText = ""
		m.showLeaderboard = false
		m.textarea.Placeholder = placeholderText
		turnCmd := m.beginTurn(state.ModeStart, "")
		m.writeMetaContent()
		return m, tea.Batch(turnCmd, progressTick())
	case "/score":
		m.showLeaderboard = !m.showLeaderboard
	case "/copy":
		if last := m.lastAssistantText(); last != "" {
			if err := clipboard.WriteAll(last); err != nil {
				m.statusLine = "Clipboard unavailable: " + err.Error()
			} else {
				m.statusLine = "Last outcome copied to clipboard."
			}
		} else {
			m.statusLine = "Nothing to copy yet."
		}
	default:
		m.statusLine = "Unknown command. Try /help."
	}

	m.writeChatContent()
	m.writeMetaContent()
	return m, nil
}

func (m ConsoleUI) lastAssistantText() string {
	for i := len(m.transcript) - 1; i >= 0; i-- {
		if m.transcript[i].Role == chat.ChatRoleAssistant {
			return m.transcript[i].Text
		}
	}
	return ""
}

// writeChatContent rebuilds the chat panel from the transcript for the
// current viewport width.
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6
	if chatWidth < 20 {
		chatWidth = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("THE OREGON TRAIL — 1848") + "\n\n")
	content.WriteString("Type commands to guide your wagon party west.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", chatWidth-6)) + "\n\n")

	for _, msg := range m.transcript {
		switch msg.Role {
		case chat.ChatRoleAssistant:
			content.WriteString(narratorStyle.Render("Narrator: ") + wordwrap.String(msg.Text, chatWidth-6) + "\n\n")
		case chat.ChatRoleUser:
			content.WriteString(userStyle.Render("You: ") + wordwrap.String(msg.Text, chatWidth-6) + "\n\n")
		case chat.ChatRoleSystem:
			content.WriteString(systemStyle.Render(wordwrap.String(msg.Text, chatWidth-6)) + "\n\n")
		}
	}

	if m.loading {
		if visible := toVisibleNarrative(m.aggregated); visible != "" {
			content.WriteString(narratorStyle.Render("Narrator: ") + wordwrap.String(visible, chatWidth-6) + "\n\n")
		}
		content.WriteString(m.renderProgressBar() + "\n")
	}

	if m.errText != "" {
		content.WriteString(errorStyle.Render("Error: "+m.errText) + "\n\n")
	}
	if m.statusLine != "" {
		content.WriteString(systemStyle.Render(m.statusLine) + "\n\n")
	}
	if m.trailState.IsGameOver() {
		content.WriteString(m.renderGameOver(chatWidth))
	}
	if m.showLeaderboard {
		content.WriteString(m.renderLeaderboard())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func (m ConsoleUI) renderGameOver(chatWidth int) string {
	var content strings.Builder
	if m.trailState.Flags.Won {
		content.WriteString(gameOverStyle.Render("You made it to Oregon!") + "\n")
	} else {
		reason := m.trailState.Flags.LossReason
		if reason == "" {
			reason = "The trail claimed your party."
		}
		content.WriteString(gameOverStyle.Render("Game over: ") + wordwrap.String(reason, chatWidth-6) + "\n")
	}
	content.WriteString(fmt.Sprintf("Final score: %d\n", state.Score(m.trailState)))
	if m.awaitingName {
		content.WriteString(promptStyle.Render("Type a name below to record your run.") + "\n")
	} else {
		content.WriteString(promptStyle.Render("Use /new to hitch up another wagon.") + "\n")
	}
	content.WriteString("\n")
	return content.String()
}

func (m ConsoleUI) renderLeaderboard() string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("LEADERBOARD") + "\n")
	if len(m.leaderboard) == 0 {
		content.WriteString("No finished runs yet.\n\n")
		return content.String()
	}
	limit := len(m.leaderboard)
	if limit > 10 {
		limit = 10
	}
	for i := 0; i < limit; i++ {
		entry := m.leaderboard[i]
		outcome := "lost"
		if entry.Won {
			outcome = "won"
		}
		content.WriteString(fmt.Sprintf("%2d. %-24s %6d  (%s, %.0f mi, %.0f turns)\n",
			i+1, entry.Name, entry.Score, outcome, entry.MilesTraveled, entry.Turns))
	}
	content.WriteString("\n")
	return content.String()
}

// writeMetaContent rebuilds the status panel from the current state.
func (m *ConsoleUI) writeMetaContent() {
	var content strings.Builder
	content.WriteString(titleStyle.Render("TRAIL STATUS") + "\n\n")

	ts := m.trailState
	if ts == nil {
		content.WriteString("Waiting for the first turn...\n")
		m.metaViewport.SetContent(content.String())
		return
	}

	content.WriteString(fmt.Sprintf("Date: %s (%s)\n", shortDate(ts.Calendar.DateISO), ts.Calendar.Season))
	content.WriteString(fmt.Sprintf("Landmark: %s\n", ts.Progress.Landmark))
	content.WriteString(fmt.Sprintf("Miles: %.0f gone, %.0f left\n\n", ts.Progress.MilesTraveled, ts.Progress.MilesRemaining))

	content.WriteString(fmt.Sprintf("Weather: %s\n", ts.Conditions.Weather))
	content.WriteString(fmt.Sprintf("Terrain: %s\n", ts.Conditions.Terrain))
	content.WriteString(fmt.Sprintf("Risk: %s\n\n", ts.Conditions.TrailRisk))

	content.WriteString(fmt.Sprintf("Party (%.0f alive):\n", ts.Party.AliveCount))
	for _, member := range ts.Party.Members {
		content.WriteString(fmt.Sprintf("• %s %3.0f%% %s\n", member.Name, member.Health, member.Status))
	}
	content.WriteString("\n")

	r := ts.Resources
	content.WriteString("Supplies:\n")
	content.WriteString(fmt.Sprintf("• Food %.0f  Ammo %.0f\n", r.Food, r.Ammo))
	content.WriteString(fmt.Sprintf("• Medicine %.0f  Clothing %.0f\n", r.Medicine, r.Clothing))
	content.WriteString(fmt.Sprintf("• Money $%.0f  Oxen %.0f\n", r.Money, r.Oxen))
	content.WriteString(fmt.Sprintf("• Wagon %.0f%%\n\n", r.WagonHealth))

	content.WriteString(fmt.Sprintf("Turn %.0f — score %d\n\n", ts.Turn.Index, state.Score(ts)))

	if m.lastMeta != nil {
		content.WriteString("Last turn:\n")
		content.WriteString(fmt.Sprintf("• %s\n", m.lastMeta.Model))
		content.WriteString(fmt.Sprintf("• %dms, state via %s\n\n", m.lastMeta.DurationMs, m.lastMeta.StateSource))
	}

	content.WriteString("Commands:\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• /score: Leaderboard\n")
	content.WriteString("• /new: Restart\n")
	content.WriteString("• Ctrl+C: Quit\n")

	m.metaViewport.SetContent(content.String())
}

func shortDate(iso string) string {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return iso
	}
	return t.Format("Jan 2, 2006")
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEnter:
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
	content.WriteString(modalTitleStyle.Render("Leave the Trail?"))
	content.WriteString("\n\n")
	content.WriteString("Your run is saved and will resume next launch.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to keep going"))

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

	chatWidth := int(float64(m.width)*0.68) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", chatWidth-4)),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar draws the animated bar shown while a turn streams.
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30
	}
	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓")
		} else {
			bar.WriteString("░")
		}
	}
	return loadingStyle.Render(bar.String())
}

func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
