package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/mcdev12/roast-arena/go/internal/arena/orchestrator"
	"github.com/mcdev12/roast-arena/go/internal/arena/round"
)

const (
	actionTimeout = 30 * time.Second
	maxRoastRunes = 280
)

// Game is what the terminal client drives
type Game interface {
	View() orchestrator.View
	Subscribe(fn func(orchestrator.View)) func()
	JoinRound(ctx context.Context, roastText string) bool
	CastVote(ctx context.Context, characterID string) bool
	ClearError()
}

type mode int

const (
	modeNormal mode = iota
	modeVote
	modeCompose
)

// ViewMsg carries a fresh orchestrator view
type ViewMsg struct {
	View orchestrator.View
}

type actionMsg struct {
	action   string
	accepted bool
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f9fafb")).Background(lipgloss.Color("#b91c1c")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	winnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#facc15")).Bold(true)
)

func padToWidth(s string, width int) string {
	current := runewidth.StringWidth(s)
	if current >= width {
		return s
	}
	return s + strings.Repeat(" ", width-current)
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "...")
}

// Model holds the terminal client state
type Model struct {
	game   Game
	view   orchestrator.View
	mode   mode
	input  []rune
	status string
	width  int
	height int
}

// NewModel creates a model seeded with the current view
func NewModel(game Game) Model {
	return Model{game: game, view: game.View()}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case ViewMsg:
		m.view = msg.View
		return m, nil

	case actionMsg:
		if msg.accepted {
			m.status = msg.action + " sent"
			if msg.action == "roast" {
				m.input = nil
			}
		} else {
			m.status = msg.action + " not possible right now"
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	switch m.mode {
	case modeCompose:
		switch msg.Type {
		case tea.KeyEsc:
			m.mode = modeNormal
		case tea.KeyEnter:
			text := strings.TrimSpace(string(m.input))
			m.mode = modeNormal
			if text == "" {
				return m, nil
			}
			m.status = "submitting roast..."
			return m, m.join(text)
		case tea.KeyBackspace:
			if len(m.input) > 0 {
				m.input = m.input[:len(m.input)-1]
			}
		case tea.KeySpace:
			m.appendInput([]rune{' '})
		case tea.KeyRunes:
			m.appendInput(msg.Runes)
		}
		return m, nil

	case modeVote:
		m.mode = modeNormal
		key := msg.String()
		if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
			idx := int(key[0] - '1')
			if idx < len(m.view.Candidates) {
				id := m.view.Candidates[idx].ID
				m.status = "voting for " + m.view.Candidates[idx].Name + "..."
				return m, m.vote(id)
			}
		}
		m.status = "vote cancelled"
		return m, nil
	}

	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "v":
		m.mode = modeVote
		m.status = "pick a judge 1-" + fmt.Sprint(len(m.view.Candidates))
	case "i", "r":
		m.mode = modeCompose
		if len(m.input) == 0 && m.view.DraftRoast != "" {
			m.input = []rune(m.view.DraftRoast)
		}
	case "enter":
		text := strings.TrimSpace(string(m.input))
		if text == "" {
			text = m.view.DraftRoast
		}
		if text == "" {
			m.mode = modeCompose
			return m, nil
		}
		m.status = "submitting roast..."
		return m, m.join(text)
	case "x":
		m.game.ClearError()
		m.view = m.game.View()
		m.status = ""
	}
	return m, nil
}

func (m *Model) appendInput(r []rune) {
	m.input = append(m.input, r...)
	if len(m.input) > maxRoastRunes {
		m.input = m.input[:maxRoastRunes]
	}
}

func (m Model) join(text string) tea.Cmd {
	game := m.game
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionMsg{action: "roast", accepted: game.JoinRound(ctx, text)}
	}
}

func (m Model) vote(characterID string) tea.Cmd {
	game := m.game
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionMsg{action: "vote", accepted: game.CastVote(ctx, characterID)}
	}
}

// View renders the UI
func (m Model) View() string {
	width := m.width
	if width == 0 {
		width = 80
	}
	inner := width - 4
	if inner < 20 {
		inner = 20
	}

	sections := []string{m.renderHeader(inner), m.renderRound(inner), m.renderVoting(inner)}
	if m.view.Error != "" {
		sections = append(sections, errorStyle.Render(padToWidth(" ! "+truncate(m.view.Error, inner-4), inner)))
	}
	sections = append(sections, m.renderInput(inner), m.renderFooter(inner))

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Width(inner + 2)
	return box.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m Model) renderHeader(width int) string {
	v := m.view
	conn := okStyle.Render("live")
	if !v.Connection.Connected {
		conn = errorStyle.Render("offline")
	}
	left := titleStyle.Render("ROAST ARENA")
	if v.RoundID != 0 {
		left += fmt.Sprintf("  round #%d", v.RoundID)
	}
	right := conn + "  " + mutedStyle.Render(shortAddress(v.Identity.Address))
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) renderRound(width int) string {
	v := m.view
	if v.RoundID == 0 {
		return mutedStyle.Render("Waiting for the next round...")
	}

	judge := lipgloss.NewStyle().Foreground(lipgloss.Color(v.Judge.Color)).Bold(true).Render(v.Judge.Name)
	lines := []string{
		fmt.Sprintf("%s  judge: %s", strings.ToUpper(v.Phase.String()), judge),
	}
	if v.Judge.Catchphrase != "" {
		lines = append(lines, mutedStyle.Render(truncate("\""+v.Judge.Catchphrase+"\"", width)))
	}

	switch v.Phase {
	case round.PhaseWriting, round.PhaseJudging:
		lines = append(lines, fmt.Sprintf("time left: %ds   prize pool: %.3f   roasters: %d", v.Countdown, v.PrizePool, v.ParticipantCount))
	case round.PhaseResults:
		if v.Result != nil {
			lines = append(lines, winnerStyle.Render("winner: "+shortAddress(v.Result.WinnerAddress)))
			lines = append(lines, truncate("\""+v.Result.WinningRoastText+"\"", width))
			if v.Result.Payout != nil {
				lines = append(lines, mutedStyle.Render(fmt.Sprintf("paid %.4f  tx %s", v.Result.Payout.Amount, truncate(v.Result.Payout.TxHash, 18))))
			}
		}
		lines = append(lines, fmt.Sprintf("next round in %ds", v.NextRoundCountdown))
	}

	switch {
	case v.UserSubmitted:
		lines = append(lines, okStyle.Render("your roast is in"))
	case v.Submitting:
		lines = append(lines, "submitting your roast...")
	case v.SubmissionLocked:
		lines = append(lines, mutedStyle.Render("submissions closed"))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderVoting(width int) string {
	v := m.view
	lines := []string{titleStyle.Render("NEXT JUDGE")}
	if v.Voting.Locked {
		lines[0] += mutedStyle.Render("  (voting closed)")
	}

	nameWidth := 0
	for _, c := range v.Candidates {
		if w := runewidth.StringWidth(c.Name); w > nameWidth {
			nameWidth = w
		}
	}
	barMax := width - nameWidth - 16
	if barMax < 5 {
		barMax = 5
	}

	for i, c := range v.Candidates {
		votes := v.Voting.Votes[c.ID]
		bar := 0
		if v.Voting.TotalVotes > 0 {
			bar = votes * barMax / v.Voting.TotalVotes
		}
		marker := " "
		if v.Voting.UserVote == c.ID {
			marker = "*"
		}
		name := lipgloss.NewStyle().Foreground(lipgloss.Color(c.Color)).Render(padToWidth(c.Name, nameWidth))
		lines = append(lines, fmt.Sprintf("%s%d %s %s %d", marker, i+1, name, strings.Repeat("█", bar), votes))
	}
	if v.VotingOutcome != "" {
		lines = append(lines, winnerStyle.Render(truncate(v.VotingOutcome, width)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderInput(width int) string {
	if m.mode != modeCompose {
		if len(m.input) == 0 {
			return mutedStyle.Render("press i to write a roast")
		}
		return mutedStyle.Render("draft: ") + truncate(string(m.input), width-7)
	}
	text := string(m.input)
	// keep the tail visible while typing
	for runewidth.StringWidth(text) > width-3 {
		_, size := utf8.DecodeRuneInString(text)
		text = text[size:]
	}
	return "> " + text + "_"
}

func (m Model) renderFooter(width int) string {
	help := "i write  enter submit  v+1-9 vote  x clear error  q quit"
	if m.mode == modeCompose {
		help = "enter submit  esc done  ctrl+c quit"
	}
	if m.status != "" {
		help = m.status + "  |  " + help
	}
	return mutedStyle.Render(truncate(help, width))
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// Run starts the TUI program and feeds it orchestrator views until ctx is cancelled or the
// user quits.
func Run(ctx context.Context, game Game) error {
	p := tea.NewProgram(NewModel(game), tea.WithAltScreen(), tea.WithContext(ctx))

	unsubscribe := game.Subscribe(func(v orchestrator.View) {
		p.Send(ViewMsg{View: v})
	})
	defer unsubscribe()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
