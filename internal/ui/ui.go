package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/firi-app/firi/internal/oracle"
	"github.com/firi-app/firi/internal/research"
	"github.com/firi-app/firi/internal/session"
	"github.com/firi-app/firi/internal/state"
)

const (
	paneRecent    = "recent"
	paneFavorites = "favorites"

	defaultSplitRatio = 0.55
	minSplitRatio     = 0.2
	maxSplitRatio     = 0.8
)

// stateChangedMsg is pumped into the program whenever a flow merges a
// result into the store.
type stateChangedMsg struct{}

type model struct {
	ctx     context.Context
	st      *state.Store
	ctrl    *session.Controller
	version string

	themeName string
	pal       palette
	styles    styleSet

	width  int
	height int

	emailInput textinput.Model
	nameInput  textinput.Model
	loginFocus int

	topicInput textinput.Model
	chatInput  textinput.Model
	toolInput  textinput.Model

	transcript viewport.Model

	resultIndex    int
	dashboardIndex int
	dashboardPane  string
	recentCycle    int
	guideIndex     int
	guideOpen      bool
	scrollOffset   int

	attachStatus string

	// last snapshot seen, for transcript-growth detection
	prev state.AppState
}

func initialModel(ctx context.Context, st *state.Store, ctrl *session.Controller, version string) model {
	email := textinput.New()
	email.Placeholder = "you@school.edu"
	email.CharLimit = 120
	email.Focus()

	name := textinput.New()
	name.Placeholder = "Display name"
	name.CharLimit = 60

	topic := textinput.New()
	topic.Placeholder = "What field fascinates you? (e.g. soil microbes)"
	topic.CharLimit = 200
	topic.Focus()

	chat := textinput.New()
	chat.Placeholder = "Ask your coach..."
	chat.CharLimit = 1000

	tool := textinput.New()
	tool.Placeholder = "Paste your project summary..."
	tool.CharLimit = 2000

	m := model{
		ctx:           ctx,
		st:            st,
		ctrl:          ctrl,
		version:       version,
		themeName:     "catppuccin",
		emailInput:    email,
		nameInput:     name,
		topicInput:    topic,
		chatInput:     chat,
		toolInput:     tool,
		transcript:    viewport.New(60, 20),
		dashboardPane: paneRecent,
		prev:          st.Get(),
	}
	m.pal = paletteFor(m.themeName)
	m.styles = stylesFor(m.pal)
	return m
}

// flow wraps a blocking controller call as a command so it runs off the
// update loop.
func (m *model) flow(fn func()) tea.Cmd {
	return func() tea.Msg {
		fn()
		return nil
	}
}

// navigate is the only place the view field changes by user intent. It
// bumps the epoch so in-flight flows for the abandoned view discard their
// results, and drops chat context when leaving a chat-hosting view.
func (m *model) navigate(view string) {
	m.st.Advance()
	m.scrollOffset = 0
	m.st.Update(func(s *state.AppState) {
		if s.View == state.ViewProject || s.View == state.ViewTools {
			s.ChatHistory = nil
			s.SystemInstruction = ""
			s.JudgeImage = ""
			s.PanelLayout = nil
			s.IsLoading = false
		}
		if view == state.ViewTools {
			s.ActiveTool = state.ToolAbstract
			s.ToolOutput = ""
		}
		s.View = view
		s.Error = ""
	})
	m.attachStatus = ""
}

func (m model) Init() tea.Cmd { return textinput.Blink }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.syncTranscript(m.st.Get())
		return m, nil
	case stateChangedMsg:
		snap := m.st.Get()
		if state.TranscriptChanged(m.prev, snap) {
			m.syncTranscript(snap)
			m.transcript.GotoBottom()
		}
		m.clampIndexes(snap)
		m.prev = snap
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := msg.String()
	if k == "ctrl+c" {
		return m, tea.Quit
	}
	snap := m.st.Get()
	if snap.FatalError != "" {
		if k == "q" || k == "esc" || k == "enter" {
			return m, tea.Quit
		}
		return m, nil
	}
	if snap.AuthStatus != state.AuthSignedIn {
		return m.updateLogin(msg, snap)
	}
	if k == "ctrl+e" {
		m.themeName = nextThemeName(m.themeName, 1)
		m.pal = paletteFor(m.themeName)
		m.styles = stylesFor(m.pal)
		return m, nil
	}
	if k == "ctrl+o" {
		m.topicInput.SetValue("")
		m.chatInput.SetValue("")
		m.toolInput.SetValue("")
		return m, m.flow(func() { m.ctrl.SignOut() })
	}
	switch snap.View {
	case state.ViewDashboard:
		return m.updateDashboard(msg, snap)
	case state.ViewResults:
		return m.updateResults(msg, snap)
	case state.ViewProject:
		return m.updateProject(msg, snap)
	case state.ViewTools:
		return m.updateTools(msg, snap)
	case state.ViewMembership:
		return m.updateMembership(msg, snap)
	case state.ViewGuides:
		return m.updateGuides(msg)
	}
	return m, nil
}

func (m model) updateLogin(msg tea.KeyMsg, snap state.AppState) (tea.Model, tea.Cmd) {
	if snap.AuthStatus == state.AuthLoading || snap.AuthStatus == state.AuthInitializing {
		return m, nil
	}
	switch msg.String() {
	case "tab", "shift+tab":
		m.loginFocus = (m.loginFocus + 1) % 2
		if m.loginFocus == 0 {
			m.emailInput.Focus()
			m.nameInput.Blur()
		} else {
			m.nameInput.Focus()
			m.emailInput.Blur()
		}
		return m, nil
	case "ctrl+g":
		return m, m.flow(func() { m.ctrl.SignInGuest() })
	case "enter":
		email := strings.TrimSpace(m.emailInput.Value())
		name := strings.TrimSpace(m.nameInput.Value())
		if email == "" {
			return m, nil
		}
		if name == "" {
			name = email[:strings.IndexByte(email+"@", '@')]
		}
		return m, m.flow(func() { m.ctrl.SignIn(m.ctx, email, name) })
	}
	var cmd tea.Cmd
	if m.loginFocus == 0 {
		m.emailInput, cmd = m.emailInput.Update(msg)
	} else {
		m.nameInput, cmd = m.nameInput.Update(msg)
	}
	return m, cmd
}

func (m model) updateDashboard(msg tea.KeyMsg, snap state.AppState) (tea.Model, tea.Cmd) {
	list := m.paneList(snap)
	switch msg.String() {
	case "up":
		if m.dashboardIndex > 0 {
			m.dashboardIndex--
		}
		return m, nil
	case "down":
		if m.dashboardIndex < len(list)-1 {
			m.dashboardIndex++
		}
		return m, nil
	case "tab":
		if len(snap.RecentQueries) > 0 {
			q := snap.RecentQueries[m.recentCycle%len(snap.RecentQueries)]
			m.recentCycle++
			m.topicInput.SetValue(q.Topic)
			m.topicInput.CursorEnd()
		}
		return m, nil
	case "ctrl+f":
		if m.dashboardPane == paneRecent {
			m.dashboardPane = paneFavorites
		} else {
			m.dashboardPane = paneRecent
		}
		m.dashboardIndex = 0
		return m, nil
	case "ctrl+s":
		if m.dashboardIndex < len(list) {
			p := list[m.dashboardIndex]
			return m, m.flow(func() { m.ctrl.ToggleFavorite(m.ctx, p) })
		}
		return m, nil
	case "ctrl+x":
		if m.dashboardIndex < len(list) {
			p := list[m.dashboardIndex]
			return m, m.flow(func() { m.ctrl.DeleteProject(m.ctx, p) })
		}
		return m, nil
	case "ctrl+t":
		m.navigate(state.ViewTools)
		return m, nil
	case "ctrl+g":
		m.guideOpen = false
		m.navigate(state.ViewGuides)
		return m, nil
	case "ctrl+b":
		m.navigate(state.ViewMembership)
		return m, nil
	case "enter":
		topic := strings.TrimSpace(m.topicInput.Value())
		if topic != "" {
			m.topicInput.SetValue("")
			m.resultIndex = 0
			m.recentCycle = 0
			return m, m.flow(func() { m.ctrl.Ideate(m.ctx, topic) })
		}
		if m.dashboardIndex < len(list) {
			idea := list[m.dashboardIndex]
			m.chatInput.Focus()
			return m, m.flow(func() { m.ctrl.OpenProject(m.ctx, idea) })
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.topicInput, cmd = m.topicInput.Update(msg)
	return m, cmd
}

func (m model) updateResults(msg tea.KeyMsg, snap state.AppState) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up":
		if m.resultIndex > 0 {
			m.resultIndex--
		}
	case "down":
		if m.resultIndex < len(snap.GeneratedProjects)-1 {
			m.resultIndex++
		}
	case "pgdown", "ctrl+d":
		m.scrollOffset += 8
	case "pgup", "ctrl+u":
		m.scrollOffset -= 8
		if m.scrollOffset < 0 {
			m.scrollOffset = 0
		}
	case "home":
		m.scrollOffset = 0
	case "end":
		// scrollWindow clamps this to the last page
		m.scrollOffset = 1 << 20
	case "enter":
		if snap.IsIdeating || len(snap.GeneratedProjects) == 0 {
			return m, nil
		}
		idx := m.resultIndex
		m.chatInput.Focus()
		return m, m.flow(func() { m.ctrl.SelectIdea(m.ctx, idx) })
	case "esc":
		m.navigate(state.ViewDashboard)
	}
	return m, nil
}

func (m model) updateProject(msg tea.KeyMsg, snap state.AppState) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if snap.ProjectSource == state.SourceIdeation {
			m.navigate(state.ViewResults)
		} else {
			m.navigate(state.ViewDashboard)
		}
		return m, nil
	case "ctrl+h":
		m.adjustSplit(-0.05)
		return m, nil
	case "ctrl+l":
		m.adjustSplit(0.05)
		return m, nil
	case "ctrl+s":
		if snap.SelectedProject != nil {
			p := *snap.SelectedProject
			return m, m.flow(func() { m.ctrl.ToggleFavorite(m.ctx, p) })
		}
		return m, nil
	case "pgdown":
		m.scrollOffset += 8
	case "pgup":
		m.scrollOffset -= 8
		if m.scrollOffset < 0 {
			m.scrollOffset = 0
		}
	case "enter":
		if snap.IsLoading {
			return m, nil
		}
		text := strings.TrimSpace(m.chatInput.Value())
		if text == "" {
			return m, nil
		}
		m.chatInput.SetValue("")
		return m, m.flow(func() { m.ctrl.ChatSend(m.ctx, text, "") })
	}
	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	return m, cmd
}

func (m model) updateTools(msg tea.KeyMsg, snap state.AppState) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.navigate(state.ViewDashboard)
		return m, nil
	case "tab":
		m.cycleTool(snap)
		return m, nil
	case "enter":
		input := strings.TrimSpace(m.toolInput.Value())
		if input == "" {
			return m, nil
		}
		if snap.ActiveTool == state.ToolJudge {
			return m.submitJudgeTurn(input, snap)
		}
		if snap.IsToolLoading {
			return m, nil
		}
		tool := snap.ActiveTool
		m.toolInput.SetValue("")
		return m, m.flow(func() { m.ctrl.RunTool(m.ctx, tool, input) })
	}
	var cmd tea.Cmd
	m.toolInput, cmd = m.toolInput.Update(msg)
	return m, cmd
}

// submitJudgeTurn handles the judge tab's chat line, including the
// ":attach <path>" command that stages a board photo for the next turn.
func (m model) submitJudgeTurn(input string, snap state.AppState) (tea.Model, tea.Cmd) {
	if path, ok := strings.CutPrefix(input, ":attach "); ok {
		dataURL, err := oracle.EncodeImageFile(strings.TrimSpace(path))
		if err != nil {
			m.attachStatus = "attach failed: " + err.Error()
			m.toolInput.SetValue("")
			return m, nil
		}
		m.st.Update(func(s *state.AppState) { s.JudgeImage = dataURL })
		m.attachStatus = "image attached to your next message"
		m.toolInput.SetValue("")
		return m, nil
	}
	if snap.IsLoading {
		return m, nil
	}
	image := snap.JudgeImage
	m.toolInput.SetValue("")
	m.attachStatus = ""
	return m, m.flow(func() { m.ctrl.ChatSend(m.ctx, input, image) })
}

func (m *model) cycleTool(snap state.AppState) {
	order := []string{state.ToolAbstract, state.ToolFeedback, state.ToolJudge}
	cur := 0
	for i, t := range order {
		if t == snap.ActiveTool {
			cur = i
			break
		}
	}
	next := order[(cur+1)%len(order)]
	m.st.Advance()
	m.st.Update(func(s *state.AppState) {
		s.ActiveTool = next
		s.ToolOutput = ""
		// the judge persona lives in its own transcript
		s.ChatHistory = nil
		s.JudgeImage = ""
		s.IsLoading = false
		if next == state.ToolJudge {
			s.SystemInstruction = oracle.JudgeSystemInstruction
		} else {
			s.SystemInstruction = ""
		}
	})
	m.toolInput.SetValue("")
	m.attachStatus = ""
	if next == state.ToolJudge {
		m.toolInput.Placeholder = "Describe your project to the judge, or :attach photo.png"
	} else {
		m.toolInput.Placeholder = "Paste your project summary..."
	}
	m.syncTranscript(m.st.Get())
}

func (m model) updateMembership(msg tea.KeyMsg, snap state.AppState) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if snap.User != nil && snap.User.Plan == "pro" {
			return m, nil
		}
		return m, m.flow(func() { m.ctrl.Upgrade(m.ctx) })
	case "esc":
		m.navigate(state.ViewDashboard)
	}
	return m, nil
}

func (m model) updateGuides(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up":
		if !m.guideOpen && m.guideIndex > 0 {
			m.guideIndex--
		}
		if m.guideOpen {
			m.scrollOffset -= 4
			if m.scrollOffset < 0 {
				m.scrollOffset = 0
			}
		}
	case "down":
		if !m.guideOpen && m.guideIndex < len(guides)-1 {
			m.guideIndex++
		}
		if m.guideOpen {
			m.scrollOffset += 4
		}
	case "enter":
		m.guideOpen = true
		m.scrollOffset = 0
	case "esc":
		if m.guideOpen {
			m.guideOpen = false
			m.scrollOffset = 0
		} else {
			m.navigate(state.ViewDashboard)
		}
	}
	return m, nil
}

func (m *model) adjustSplit(delta float64) {
	m.st.Update(func(s *state.AppState) {
		ratio := defaultSplitRatio
		if s.PanelLayout != nil {
			ratio = s.PanelLayout.Ratio
		}
		ratio += delta
		if ratio < minSplitRatio {
			ratio = minSplitRatio
		}
		if ratio > maxSplitRatio {
			ratio = maxSplitRatio
		}
		s.PanelLayout = &state.PanelLayout{Ratio: ratio}
	})
	m.syncTranscript(m.st.Get())
}

func (m *model) clampIndexes(snap state.AppState) {
	list := m.paneList(snap)
	if m.dashboardIndex >= len(list) {
		m.dashboardIndex = len(list) - 1
	}
	if m.dashboardIndex < 0 {
		m.dashboardIndex = 0
	}
	if m.resultIndex >= len(snap.GeneratedProjects) {
		m.resultIndex = 0
	}
}

func (m model) paneList(snap state.AppState) []research.ProjectIdea {
	if m.dashboardPane == paneFavorites {
		return snap.FavoritedProjects
	}
	return snap.RecentProjects
}

// Layout rendering -----------------------------------------------------------

func (m model) View() string {
	snap := m.st.Get()
	if snap.FatalError != "" {
		return m.renderFatal(snap)
	}
	switch snap.AuthStatus {
	case state.AuthInitializing:
		return m.styles.muted.Render("firi " + m.version + "\n\nconnecting...")
	case state.AuthLoading:
		return m.styles.muted.Render("signing in...")
	case state.AuthSignedOut:
		return m.renderLogin(snap)
	}
	var body string
	switch snap.View {
	case state.ViewDashboard:
		body = m.renderDashboard(snap)
	case state.ViewResults:
		body = m.renderResults(snap)
	case state.ViewProject:
		body = m.renderProject(snap)
	case state.ViewTools:
		body = m.renderTools(snap)
	case state.ViewMembership:
		body = m.renderMembership(snap)
	case state.ViewGuides:
		body = m.renderGuides()
	default:
		body = m.renderDashboard(snap)
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderTopBar(snap), body, m.renderBottomBar(snap))
}

func (m model) renderFatal(snap state.AppState) string {
	box := m.styles.panel.Width(70)
	return box.Render(m.styles.errorBar.Render("FIRI could not start") + "\n\n" +
		snap.FatalError + "\n\n" + m.styles.muted.Render("[Enter] quit"))
}

func (m model) renderLogin(snap state.AppState) string {
	box := m.styles.panel.Width(64)
	var b strings.Builder
	b.WriteString(m.styles.title.Render("FIRI") + m.styles.muted.Render("  your science fair research assistant") + "\n\n")
	b.WriteString("Email\n" + m.emailInput.View() + "\n\n")
	b.WriteString("Name\n" + m.nameInput.View() + "\n\n")
	if snap.Error != "" {
		b.WriteString(m.styles.errorBar.Render(snap.Error) + "\n\n")
	}
	b.WriteString(m.styles.muted.Render("[Enter] sign in  [Tab] switch field  [Ctrl+G] continue as guest  [Ctrl+C] quit"))
	return box.Render(b.String())
}

func (m model) renderTopBar(snap state.AppState) string {
	name := "Guest"
	if snap.User != nil && snap.User.DisplayName != "" {
		name = snap.User.DisplayName
	}
	left := "FIRI • " + name
	if snap.User != nil && snap.User.Plan == "pro" {
		left += " • pro"
	}
	right := m.tokenBadge(snap)
	w := m.width
	if w <= 0 {
		w = 100
	}
	gap := w - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return m.styles.banner.Render(left) + strings.Repeat(" ", gap) + right
}

func (m model) tokenBadge(snap state.AppState) string {
	badge := fmt.Sprintf("%d tokens", snap.Tokens)
	if snap.Tokens <= 3 {
		return m.styles.tokenLow.Render(badge)
	}
	return m.styles.tokenOK.Render(badge)
}

func (m model) renderBottomBar(snap state.AppState) string {
	var keys string
	switch snap.View {
	case state.ViewDashboard:
		keys = "[Enter] generate/open  [Tab] recent topic  [Ctrl+F] favorites  [Ctrl+S] star  [Ctrl+X] delete  [Ctrl+T] tools  [Ctrl+G] guides  [Ctrl+B] membership  [Ctrl+O] sign out"
	case state.ViewResults:
		keys = "[Up/Down] select  [Enter] develop idea  [PgUp/PgDn] scroll  [Esc] back"
	case state.ViewProject:
		keys = "[Enter] send  [Ctrl+H/L] resize panes  [Ctrl+S] star  [PgUp/PgDn] scroll timeline  [Esc] back"
	case state.ViewTools:
		keys = "[Tab] switch tool  [Enter] run/send  [Esc] back"
	case state.ViewMembership:
		keys = "[Enter] upgrade  [Esc] back"
	case state.ViewGuides:
		keys = "[Up/Down] browse  [Enter] read  [Esc] back"
	}
	bar := m.styles.statusBar.Render(keys)
	if snap.Error != "" && snap.View != state.ViewMembership {
		return m.styles.errorBar.Render(snap.Error) + "\n" + bar
	}
	if snap.UpgradePrompt {
		return m.styles.banner.Render("You are out of tokens. Press Ctrl+B to upgrade.") + "\n" + bar
	}
	return bar
}

func (m model) renderDashboard(snap state.AppState) string {
	var b strings.Builder
	b.WriteString("\n" + m.topicInput.View() + "\n")
	if len(snap.RecentQueries) > 0 {
		topics := make([]string, 0, len(snap.RecentQueries))
		for _, q := range snap.RecentQueries {
			topics = append(topics, q.Topic)
		}
		b.WriteString(m.styles.muted.Render("recent: "+strings.Join(topics, " · ")) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%d projects, %d favorited\n\n", snap.Stats.Projects, snap.Stats.Favorited))

	title := "RECENT PROJECTS"
	if m.dashboardPane == paneFavorites {
		title = "FAVORITED PROJECTS"
	}
	b.WriteString(m.styles.title.Render(title) + "\n")
	list := m.paneList(snap)
	if len(list) == 0 {
		b.WriteString(m.styles.muted.Render("(none yet - type a topic above to get started)") + "\n")
	}
	for i, p := range list {
		cursor := "  "
		if i == m.dashboardIndex {
			cursor = m.styles.cursor.Render("> ")
		}
		star := "  "
		if p.IsFavorited {
			star = m.styles.favorite.Render("★ ")
		}
		line := fmt.Sprintf("%s%s%-40s %s", cursor, star, truncate(p.Title, 40), m.styles.muted.Render(p.Category))
		if p.Timeline == "" && p.Saved() {
			line += m.styles.muted.Render("  (no timeline)")
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (m model) renderResults(snap state.AppState) string {
	w := m.contentWidth()
	var b strings.Builder
	b.WriteString(m.styles.title.Render("IDEAS: "+snap.Topic) + "\n\n")
	if snap.IsIdeating && snap.FieldAnalysis == "" {
		b.WriteString(m.styles.muted.Render("researching the field...") + "\n")
		return b.String()
	}
	if snap.FieldAnalysis != "" {
		b.WriteString(renderMarkdown(snap.FieldAnalysis, w) + "\n")
	}
	if len(snap.Sources) > 0 {
		b.WriteString(m.styles.muted.Render("SOURCES") + "\n")
		for _, src := range snap.Sources {
			title := src.Title
			if title == "" {
				title = src.URI
			}
			b.WriteString(m.styles.muted.Render("  • "+title) + "\n")
		}
		b.WriteString("\n")
	}
	if snap.IsIdeating {
		b.WriteString(m.styles.muted.Render("generating project ideas...") + "\n")
	}
	for i, idea := range snap.GeneratedProjects {
		cursor := "  "
		if i == m.resultIndex {
			cursor = m.styles.cursor.Render("> ")
		}
		b.WriteString(fmt.Sprintf("%s%s %s\n", cursor, m.styles.title.Render(idea.Title), m.styles.muted.Render("["+idea.Category+"]")))
		b.WriteString("    " + truncate(idea.Description, w-6) + "\n")
		b.WriteString("    " + m.scoreLine(idea) + "\n\n")
	}
	return m.scrollWindow(b.String())
}

func (m model) scoreLine(idea research.ProjectIdea) string {
	return m.styles.muted.Render(fmt.Sprintf("impact %d  rigor %d  novelty %d  wow %d",
		idea.Impact, idea.Rigor, idea.Novelty, idea.WowFactor))
}

func (m model) renderProject(snap state.AppState) string {
	if snap.SelectedProject == nil {
		return m.styles.muted.Render("no project selected")
	}
	w := m.width
	if w <= 0 {
		w = 100
	}
	ratio := defaultSplitRatio
	if snap.PanelLayout != nil {
		ratio = snap.PanelLayout.Ratio
	}
	leftWidth := int(float64(w) * ratio)
	rightWidth := w - leftWidth - 3

	idea := snap.SelectedProject
	var left strings.Builder
	star := ""
	if idea.IsFavorited {
		star = m.styles.favorite.Render(" ★")
	}
	left.WriteString(m.styles.title.Render(idea.Title) + star + "\n")
	left.WriteString(m.styles.muted.Render(idea.Category) + "\n\n")
	left.WriteString(idea.Description + "\n\n")
	if snap.IsLoading && snap.Timeline == "" {
		left.WriteString(m.styles.muted.Render("drafting your project timeline...") + "\n")
	}
	if snap.Timeline != "" {
		left.WriteString(renderMarkdown(snap.Timeline, leftWidth-4))
	} else if !snap.IsLoading {
		left.WriteString(m.styles.muted.Render("(timeline pending)"))
	}
	leftPane := m.styles.panel.Width(leftWidth).Render(m.clipLines(left.String(), m.bodyHeight()))

	var right strings.Builder
	right.WriteString(m.styles.title.Render("COACH") + "\n")
	right.WriteString(m.transcript.View() + "\n")
	if snap.IsLoading && len(snap.ChatHistory) > 0 {
		right.WriteString(m.styles.muted.Render("thinking...") + "\n")
	}
	right.WriteString(m.chatInput.View())
	rightPane := m.styles.panel.Width(rightWidth).Render(right.String())

	return lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)
}

func (m model) renderTools(snap state.AppState) string {
	var b strings.Builder
	tabs := []struct{ key, label string }{
		{state.ToolAbstract, "Abstract"},
		{state.ToolFeedback, "Feedback"},
		{state.ToolJudge, "Mock Judge"},
	}
	parts := make([]string, 0, len(tabs))
	for _, t := range tabs {
		if t.key == snap.ActiveTool || (snap.ActiveTool == "" && t.key == state.ToolAbstract) {
			parts = append(parts, m.styles.title.Render("["+t.label+"]"))
		} else {
			parts = append(parts, m.styles.muted.Render(" "+t.label+" "))
		}
	}
	b.WriteString(strings.Join(parts, " ") + "\n\n")

	if snap.ActiveTool == state.ToolJudge {
		b.WriteString(m.transcript.View() + "\n")
		if snap.IsLoading {
			b.WriteString(m.styles.muted.Render("the judge is considering...") + "\n")
		}
		if m.attachStatus != "" {
			b.WriteString(m.styles.muted.Render(m.attachStatus) + "\n")
		}
		b.WriteString(m.toolInput.View())
		return b.String()
	}

	b.WriteString(m.toolInput.View() + "\n\n")
	if snap.IsToolLoading {
		b.WriteString(m.styles.muted.Render("working...") + "\n")
	}
	if snap.ToolOutput != "" {
		b.WriteString(renderMarkdown(snap.ToolOutput, m.contentWidth()))
	}
	return m.scrollWindow(b.String())
}

func (m model) renderMembership(snap state.AppState) string {
	box := m.styles.panel.Width(64)
	var b strings.Builder
	b.WriteString(m.styles.title.Render("FIRI PRO") + "\n\n")
	plan := "free"
	if snap.User != nil && snap.User.Plan != "" {
		plan = snap.User.Plan
	}
	b.WriteString(fmt.Sprintf("Current plan: %s\nToken balance: %d\n\n", plan, snap.Tokens))
	if plan == "pro" {
		b.WriteString(m.styles.tokenOK.Render("You're on Pro. Go win that fair.") + "\n")
	} else {
		b.WriteString("Pro refills your balance to 500 tokens.\n")
		b.WriteString(m.styles.muted.Render("(payment is simulated in this build)") + "\n\n")
		b.WriteString(m.styles.banner.Render("[Enter] upgrade now"))
	}
	if snap.Error != "" {
		b.WriteString("\n" + m.styles.errorBar.Render(snap.Error))
	}
	return box.Render(b.String())
}

func (m model) renderGuides() string {
	if m.guideOpen {
		g := guides[m.guideIndex]
		return m.scrollWindow(renderMarkdown(g.Body, m.contentWidth()))
	}
	var b strings.Builder
	b.WriteString(m.styles.title.Render("GUIDES") + "\n\n")
	for i, g := range guides {
		cursor := "  "
		if i == m.guideIndex {
			cursor = m.styles.cursor.Render("> ")
		}
		b.WriteString(cursor + g.Title + "\n")
	}
	return b.String()
}

// syncTranscript rebuilds the chat viewport from the current history and
// resizes it to the active layout.
func (m *model) syncTranscript(snap state.AppState) {
	w := m.width
	if w <= 0 {
		w = 100
	}
	ratio := defaultSplitRatio
	if snap.PanelLayout != nil {
		ratio = snap.PanelLayout.Ratio
	}
	tw := w - int(float64(w)*ratio) - 7
	if snap.View == state.ViewTools {
		tw = w - 4
	}
	if tw < 20 {
		tw = 20
	}
	th := m.bodyHeight() - 4
	if th < 5 {
		th = 5
	}
	m.transcript.Width = tw
	m.transcript.Height = th

	var b strings.Builder
	for _, msg := range snap.ChatHistory {
		if msg.Role == research.RoleUser {
			b.WriteString(m.styles.banner.Render("You") + "\n")
			b.WriteString(msg.Content + "\n")
			if msg.Image != "" {
				b.WriteString(m.styles.muted.Render("(image attached)") + "\n")
			}
			b.WriteString("\n")
			continue
		}
		b.WriteString(m.styles.title.Render("Coach") + "\n")
		b.WriteString(renderMarkdown(msg.Content, tw-2) + "\n")
	}
	m.transcript.SetContent(b.String())
}

func (m model) contentWidth() int {
	w := m.width
	if w <= 0 {
		w = 100
	}
	if w > 110 {
		w = 110
	}
	return w - 4
}

func (m model) bodyHeight() int {
	h := m.height
	if h <= 0 {
		h = 32
	}
	return h - 4
}

// scrollWindow clips body text to the visible height at the current
// offset, driven by the pgup/pgdn keys.
func (m model) scrollWindow(body string) string {
	lines := strings.Split(body, "\n")
	avail := m.bodyHeight()
	if avail < 5 || len(lines) <= avail {
		return body
	}
	offset := m.scrollOffset
	if offset > len(lines)-avail {
		offset = len(lines) - avail
	}
	if offset < 0 {
		offset = 0
	}
	return strings.Join(lines[offset:offset+avail], "\n")
}

func (m model) clipLines(body string, max int) string {
	lines := strings.Split(body, "\n")
	if max < 5 || len(lines) <= max {
		return body
	}
	offset := m.scrollOffset
	if offset > len(lines)-max {
		offset = len(lines) - max
	}
	if offset < 0 {
		offset = 0
	}
	return strings.Join(lines[offset:offset+max], "\n")
}

func renderMarkdown(md string, width int) string {
	if width < 20 {
		width = 20
	}
	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

func truncate(s string, max int) string {
	if max < 4 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
