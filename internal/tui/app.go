// Package tui renders the study session in the terminal with bubbletea.
//
// Every session action that reaches the oracle runs as a tea.Cmd so the UI
// keeps drawing (and the spinner keeps turning) while Light calculates.
// The model never mutates study state itself; it reads snapshots from the
// session subscription and dispatches actions back into the session.
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"study-companion/internal/app"
	"study-companion/internal/domain"
	"study-companion/internal/logger"
)

type setupField int

const (
	fieldSemester setupField = iota
	fieldBranch
)

type illuminationFocus int

const (
	focusTopics illuminationFocus = iota
	focusDoubt
)

// snapshotMsg carries a session update from the subscription channel.
type snapshotMsg struct {
	snap app.Snapshot
	ok   bool
}

// actionDoneMsg reports the outcome of an asynchronous session action.
type actionDoneMsg struct {
	action string
	ok     bool
	err    error
}

// App is the bubbletea model for the study session.
type App struct {
	ctx     context.Context
	session *app.Session
	log     *zap.Logger
	updates <-chan app.Snapshot
	cancel  func()

	snap    app.Snapshot
	status  string
	spinner spinner.Model
	input   textinput.Model

	field       setupField
	semesterIdx int
	branchIdx   int
	choiceIdx   int
	topicIdx    int
	focus       illuminationFocus

	width  int
	height int
}

var (
	accent  = lipgloss.Color("#D7263D")
	muted   = lipgloss.Color("#8A8A8A")
	bright  = lipgloss.Color("#F2F2F2")
	success = lipgloss.Color("#3DDC97")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle   = lipgloss.NewStyle().Foreground(muted)
	textStyle    = lipgloss.NewStyle().Foreground(bright)
	selected     = lipgloss.NewStyle().Bold(true).Foreground(accent)
	correctStyle = lipgloss.NewStyle().Bold(true).Foreground(success)
	noticeStyle  = lipgloss.NewStyle().Foreground(accent).Italic(true)
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 2)
)

func NewApp(ctx context.Context, session *app.Session, log *zap.Logger) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(accent)

	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 1024

	updates, cancel := session.Subscribe()
	return &App{
		ctx:         ctx,
		session:     session,
		log:         logger.OrNop(log).Named("tui"),
		updates:     updates,
		cancel:      cancel,
		snap:        session.Snapshot(),
		spinner:     sp,
		input:       input,
		semesterIdx: -1,
		branchIdx:   -1,
	}
}

// Close releases the session subscription.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.waitForSnapshot())
}

func (a *App) waitForSnapshot() tea.Cmd {
	updates := a.updates
	return func() tea.Msg {
		snap, ok := <-updates
		return snapshotMsg{snap: snap, ok: ok}
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = max(20, msg.Width-10)
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case snapshotMsg:
		if !msg.ok {
			return a, nil
		}
		a.applySnapshot(msg.snap)
		return a, a.waitForSnapshot()

	case actionDoneMsg:
		return a, a.handleActionDone(msg)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit
		case "ctrl+r":
			a.session.Restart()
			a.resetLocalState()
			a.applySnapshot(a.session.Snapshot())
			return a, nil
		}
		return a, a.handleKey(msg)
	}
	return a, nil
}

func (a *App) applySnapshot(snap app.Snapshot) {
	prev := a.snap.Phase
	a.snap = snap
	if prev == snap.Phase {
		return
	}
	a.status = ""
	switch snap.Phase {
	case domain.PhaseUpload:
		a.input.Placeholder = "path/to/notes.pdf"
		a.input.SetValue("")
		a.input.Focus()
	case domain.PhaseIllumination:
		a.topicIdx = 0
		a.focus = focusTopics
		a.input.Placeholder = "Ask Light a question about the material"
		a.input.SetValue("")
		a.input.Blur()
	case domain.PhaseChoice:
		a.choiceIdx = 0
		a.input.Blur()
	default:
		a.input.Blur()
	}
}

func (a *App) resetLocalState() {
	a.field = fieldSemester
	a.semesterIdx = -1
	a.branchIdx = -1
	a.choiceIdx = 0
	a.topicIdx = 0
	a.focus = focusTopics
	a.status = ""
	a.input.SetValue("")
}

func (a *App) handleActionDone(msg actionDoneMsg) tea.Cmd {
	switch {
	case msg.err != nil:
		a.log.Debug("action failed", zap.String("action", msg.action), zap.Error(msg.err))
		a.status = ""
	case !msg.ok:
		a.status = ""
	case msg.action == "doubt":
		a.input.SetValue("")
	}
	a.applySnapshot(a.session.Snapshot())
	return nil
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch a.snap.Phase {
	case domain.PhaseSetup:
		return a.handleSetupKey(msg)
	case domain.PhaseUpload:
		return a.handleUploadKey(msg)
	case domain.PhaseChoice:
		return a.handleChoiceKey(msg)
	case domain.PhaseQuiz:
		return a.handleQuizKey(msg)
	case domain.PhaseIllumination:
		return a.handleIlluminationKey(msg)
	case domain.PhaseSummary:
		return a.handleSummaryKey(msg)
	}
	return nil
}

func (a *App) handleSetupKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q":
		return tea.Quit
	case "up", "k", "down", "j", "tab":
		if a.field == fieldSemester {
			a.field = fieldBranch
		} else {
			a.field = fieldSemester
		}
	case "left", "h":
		a.cycle(-1)
	case "right", "l":
		a.cycle(1)
	case "enter":
		if !a.session.SubmitContext(a.selectedSemester(), a.selectedBranch()) {
			a.status = "Hand over the data. Both semester and branch are required."
		}
		a.applySnapshot(a.session.Snapshot())
	}
	return nil
}

func (a *App) cycle(delta int) {
	if a.field == fieldSemester {
		a.semesterIdx = wrap(a.semesterIdx, delta, len(domain.Semesters()))
		return
	}
	a.branchIdx = wrap(a.branchIdx, delta, len(domain.Branches()))
}

func wrap(idx, delta, n int) int {
	if idx < 0 {
		if delta < 0 {
			return n - 1
		}
		return 0
	}
	return ((idx+delta)%n + n) % n
}

func (a *App) selectedSemester() domain.Semester {
	if a.semesterIdx < 0 {
		return domain.SemesterUnset
	}
	return domain.Semesters()[a.semesterIdx]
}

func (a *App) selectedBranch() domain.Branch {
	if a.branchIdx < 0 {
		return domain.BranchUnset
	}
	return domain.Branches()[a.branchIdx]
}

func (a *App) handleUploadKey(msg tea.KeyMsg) tea.Cmd {
	if msg.Type == tea.KeyEnter {
		path := strings.TrimSpace(a.input.Value())
		if path == "" || a.snap.Busy.Upload {
			return nil
		}
		a.status = "Analyzing the data..."
		return a.uploadCmd(path)
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return cmd
}

func (a *App) uploadCmd(path string) tea.Cmd {
	ctx, session := a.ctx, a.session
	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			// Routed through the session so the failure notice is recorded.
			ok, err := session.Upload(ctx, filepath.Base(path), failingReader{err: err})
			return actionDoneMsg{action: "upload", ok: ok, err: err}
		}
		defer f.Close()
		ok, err := session.Upload(ctx, filepath.Base(path), f)
		return actionDoneMsg{action: "upload", ok: ok, err: err}
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func (a *App) handleChoiceKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "up", "k", "down", "j", "tab":
		a.choiceIdx = 1 - a.choiceIdx
	case "1":
		a.choiceIdx = 0
		return a.chooseCmd()
	case "2":
		a.choiceIdx = 1
		return a.chooseCmd()
	case "enter":
		return a.chooseCmd()
	}
	return nil
}

func (a *App) chooseCmd() tea.Cmd {
	if a.choiceIdx == 1 {
		a.session.StartIllumination()
		a.applySnapshot(a.session.Snapshot())
		return nil
	}
	if a.snap.Busy.Quiz {
		return nil
	}
	a.status = "Constructing the interrogation..."
	ctx, session := a.ctx, a.session
	return func() tea.Msg {
		return actionDoneMsg{action: "quiz", ok: session.StartQuiz(ctx)}
	}
}

func (a *App) handleQuizKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	switch key {
	case "1", "2", "3", "4":
		a.session.Answer(int(key[0] - '1'))
	case "a", "b", "c", "d":
		a.session.Answer(int(key[0] - 'a'))
	case "enter", "n", " ":
		a.session.Advance()
	}
	a.applySnapshot(a.session.Snapshot())
	return nil
}

func (a *App) handleIlluminationKey(msg tea.KeyMsg) tea.Cmd {
	if msg.Type == tea.KeyTab {
		if a.focus == focusTopics {
			a.focus = focusDoubt
			return a.input.Focus()
		}
		a.focus = focusTopics
		a.input.Blur()
		return nil
	}

	if a.focus == focusDoubt {
		if msg.Type == tea.KeyEnter {
			question := strings.TrimSpace(a.input.Value())
			if question == "" || a.snap.Busy.Doubt {
				return nil
			}
			ctx, session := a.ctx, a.session
			return func() tea.Msg {
				return actionDoneMsg{action: "doubt", ok: session.SubmitDoubt(ctx, question)}
			}
		}
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return cmd
	}

	topics := a.snap.Topics
	switch msg.String() {
	case "up", "k":
		if a.topicIdx > 0 {
			a.topicIdx--
		}
	case "down", "j":
		if a.topicIdx < len(topics)-1 {
			a.topicIdx++
		}
	case "enter":
		if len(topics) == 0 || a.snap.Busy.Explain {
			return nil
		}
		topic := topics[a.topicIdx]
		ctx, session := a.ctx, a.session
		return func() tea.Msg {
			return actionDoneMsg{action: "explain", ok: session.SelectTopic(ctx, topic)}
		}
	}
	return nil
}

func (a *App) handleSummaryKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "enter", "t":
		a.session.ReturnToChoice()
		a.applySnapshot(a.session.Snapshot())
	case "q":
		return tea.Quit
	}
	return nil
}

func (a *App) View() string {
	var body string
	switch a.snap.Phase {
	case domain.PhaseSetup:
		body = a.viewSetup()
	case domain.PhaseUpload:
		body = a.viewUpload()
	case domain.PhaseChoice:
		body = a.viewChoice()
	case domain.PhaseQuiz:
		body = a.viewQuiz()
	case domain.PhaseIllumination:
		body = a.viewIllumination()
	case domain.PhaseSummary:
		body = a.viewSummary()
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("L I G H T"))
	b.WriteString(labelStyle.Render("  ·  " + a.snap.Phase.String()))
	b.WriteString("\n\n")
	b.WriteString(body)
	if a.snap.Busy.Any() {
		b.WriteString("\n\n" + a.spinner.View() + labelStyle.Render(" Light is calculating..."))
	}
	if a.snap.Notice != "" {
		b.WriteString("\n\n" + noticeStyle.Render(a.snap.Notice))
	} else if a.status != "" && !a.snap.Busy.Any() {
		b.WriteString("\n\n" + noticeStyle.Render(a.status))
	}
	b.WriteString("\n\n" + labelStyle.Render(a.help()))

	width := 80
	if a.width > 0 {
		width = max(40, a.width-4)
	}
	return boxStyle.Width(width).Render(b.String())
}

func (a *App) viewSetup() string {
	var b strings.Builder
	b.WriteString(textStyle.Render("State your position. I need to know what I am working with."))
	b.WriteString("\n\n")
	b.WriteString(a.selector("Semester", a.field == fieldSemester, a.selectedSemester().String()))
	b.WriteString("\n")
	b.WriteString(a.selector("Branch  ", a.field == fieldBranch, a.selectedBranch().String()))
	return b.String()
}

func (a *App) selector(label string, focused bool, value string) string {
	if value == "" {
		value = "—"
	}
	style := textStyle
	marker := "  "
	if focused {
		style = selected
		marker = "▸ "
	}
	return marker + labelStyle.Render(label) + "  " + style.Render("‹ "+value+" ›")
}

func (a *App) viewUpload() string {
	ctx := a.snap.Context
	return textStyle.Render(fmt.Sprintf("Semester %s, %s. Hand over the data (PDF or text).", ctx.Semester, ctx.Branch)) +
		"\n\n" + a.input.View()
}

func (a *App) viewChoice() string {
	var b strings.Builder
	b.WriteString(textStyle.Render(fmt.Sprintf("Data acquired: %s. Choose your tactic.", a.snap.Context.FileName)))
	b.WriteString("\n\n")
	for i, option := range []string{"1. Interrogation (10-question quiz)", "2. Illumination (topics and doubts)"} {
		if i == a.choiceIdx {
			b.WriteString(selected.Render("▸ " + option))
		} else {
			b.WriteString(textStyle.Render("  " + option))
		}
		b.WriteString("\n")
	}
	if len(a.snap.Topics) > 0 {
		b.WriteString("\n" + labelStyle.Render("Topics: "+strings.Join(a.snap.Topics, " · ")))
	}
	return b.String()
}

func (a *App) viewQuiz() string {
	q, ok := a.snap.CurrentQuestion()
	if !ok {
		return ""
	}
	progress := a.snap.Progress
	var b strings.Builder
	b.WriteString(labelStyle.Render(fmt.Sprintf("Question %d/%d  ·  Score %d", progress.CurrentIndex+1, a.snap.Total(), progress.Score)))
	b.WriteString("\n\n" + textStyle.Render(q.Question) + "\n\n")
	for i, option := range q.Options {
		line := fmt.Sprintf("%c) %s", 'A'+i, option)
		switch {
		case progress.Revealed && i == q.CorrectAnswerIndex:
			b.WriteString(correctStyle.Render("✓ " + line))
		case progress.Revealed && progress.SelectedAnswer != nil && *progress.SelectedAnswer == i:
			b.WriteString(selected.Render("✗ " + line))
		default:
			b.WriteString(textStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}
	if progress.Revealed {
		b.WriteString("\n" + labelStyle.Render(q.Explanation))
	}
	return b.String()
}

func (a *App) viewIllumination() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Topics") + "\n")
	for i, topic := range a.snap.Topics {
		if a.focus == focusTopics && i == a.topicIdx {
			b.WriteString(selected.Render("▸ " + topic))
		} else {
			b.WriteString(textStyle.Render("  " + topic))
		}
		b.WriteString("\n")
	}
	if a.snap.Explanation != "" {
		b.WriteString("\n" + titleStyle.Render(a.snap.Topic) + "\n")
		b.WriteString(textStyle.Render(a.snap.Explanation) + "\n")
	}
	b.WriteString("\n" + labelStyle.Render("Doubt") + "\n" + a.input.View())
	if a.snap.DoubtAnswer != "" {
		b.WriteString("\n\n" + labelStyle.Render("Q: "+a.snap.DoubtQuestion) + "\n")
		b.WriteString(textStyle.Render(a.snap.DoubtAnswer))
	}
	return b.String()
}

func (a *App) viewSummary() string {
	return titleStyle.Render(fmt.Sprintf("Final score: %d/%d", a.snap.Progress.Score, a.snap.Total())) +
		"\n\n" + textStyle.Render(a.snap.Verdict.Message())
}

func (a *App) help() string {
	common := "ctrl+r new session · ctrl+c quit"
	switch a.snap.Phase {
	case domain.PhaseSetup:
		return "←/→ change · ↑/↓ field · enter confirm · " + common
	case domain.PhaseUpload:
		return "type a file path · enter analyze · " + common
	case domain.PhaseChoice:
		return "1/2 or ↑/↓ + enter · " + common
	case domain.PhaseQuiz:
		return "1-4 or a-d answer · enter next · " + common
	case domain.PhaseIllumination:
		return "↑/↓ topic · enter explain · tab switch to doubt · " + common
	case domain.PhaseSummary:
		return "enter return to tactics · " + common
	}
	return common
}
